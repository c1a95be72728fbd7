package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/verdant/pkg/types"
)

// Collection names
const (
	CollectionGoals         = "goals"
	CollectionEvents        = "events"
	CollectionWeeklyReviews = "weekly_reviews"
	CollectionBrainDump     = "brain_dump"
	CollectionBodyDouble    = "body_double"
	CollectionProfiles      = "profiles"
)

// MongoBackend stores each kind of record in its own collection, keyed by
// user
type MongoBackend struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// NewMongoBackend connects to uri and uses database
func NewMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	b := NewMongoBackendWithDatabase(client.Database(database))
	b.client = client
	return b, nil
}

// NewMongoBackendWithDatabase uses an existing database handle
func NewMongoBackendWithDatabase(db *mongo.Database) *MongoBackend {
	return &MongoBackend{
		client: db.Client(),
		db:     db,
		now:    time.Now,
	}
}

// EnsureIndexes creates the user_id indexes used by LoadAll and SaveAll
func (m *MongoBackend) EnsureIndexes(ctx context.Context) error {
	for _, name := range []string{CollectionGoals, CollectionEvents, CollectionWeeklyReviews, CollectionBrainDump, CollectionBodyDouble} {
		_, err := m.db.Collection(name).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "user_id", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("create index on %s: %w", name, err)
		}
	}
	return nil
}

// Close disconnects the client
func (m *MongoBackend) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *MongoBackend) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func findAll[D any](ctx context.Context, coll *mongo.Collection, userID string) ([]D, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	var docs []D
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return docs, nil
}

// LoadAll fetches every collection in parallel. It returns nil when the user
// has neither a profile nor any records.
func (m *MongoBackend) LoadAll(ctx context.Context, userID string) (*types.AppData, error) {
	var (
		profile    *profileDoc
		goals      []goalDoc
		events     []eventDoc
		reviews    []reviewDoc
		brainDump  []brainDumpDoc
		bodyDouble []bodyDoubleDoc
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var doc profileDoc
		err := m.db.Collection(CollectionProfiles).FindOne(gctx, bson.M{"_id": userID}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("find profile: %w", err)
		}
		profile = &doc
		return nil
	})
	g.Go(func() (err error) {
		goals, err = findAll[goalDoc](gctx, m.db.Collection(CollectionGoals), userID)
		return err
	})
	g.Go(func() (err error) {
		events, err = findAll[eventDoc](gctx, m.db.Collection(CollectionEvents), userID)
		return err
	})
	g.Go(func() (err error) {
		reviews, err = findAll[reviewDoc](gctx, m.db.Collection(CollectionWeeklyReviews), userID)
		return err
	})
	g.Go(func() (err error) {
		brainDump, err = findAll[brainDumpDoc](gctx, m.db.Collection(CollectionBrainDump), userID)
		return err
	})
	g.Go(func() (err error) {
		bodyDouble, err = findAll[bodyDoubleDoc](gctx, m.db.Collection(CollectionBodyDouble), userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if profile == nil && len(goals)+len(events)+len(reviews)+len(brainDump)+len(bodyDouble) == 0 {
		return nil, nil
	}

	data := &types.AppData{Version: types.CurrentVersion}
	if profile != nil {
		data.Preferences = profile.Preferences
		data.Analytics = profile.Analytics
		data.Streak = profile.Streak
		data.Achievements = profile.Achievements
		data.CreatedAt = profile.CreatedAt
		if profile.Version > 0 {
			data.Version = profile.Version
		}
	}
	for _, d := range goals {
		data.Goals = append(data.Goals, d.toGoal())
	}
	for _, d := range events {
		data.Events = append(data.Events, d.toEvent())
	}
	for _, d := range reviews {
		data.WeeklyReviews = append(data.WeeklyReviews, d.toReview())
	}
	for _, d := range brainDump {
		data.BrainDump = append(data.BrainDump, d.toEntry())
	}
	for _, d := range bodyDouble {
		data.BodyDoubleHistory = append(data.BodyDoubleHistory, d.toSession())
	}
	return data, nil
}

// replaceAll upserts docs and deletes the user's documents not among them
func replaceAll(ctx context.Context, coll *mongo.Collection, userID string, ids []string, docs []any) error {
	if len(docs) > 0 {
		models := make([]mongo.WriteModel, len(docs))
		for i, doc := range docs {
			models[i] = mongo.NewReplaceOneModel().
				SetFilter(bson.M{"_id": ids[i]}).
				SetReplacement(doc).
				SetUpsert(true)
		}
		if _, err := coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(false)); err != nil {
			return fmt.Errorf("write %s: %w", coll.Name(), err)
		}
	}

	filter := bson.M{"user_id": userID, "_id": bson.M{"$nin": ids}}
	if _, err := coll.DeleteMany(ctx, filter); err != nil {
		return fmt.Errorf("prune %s: %w", coll.Name(), err)
	}
	return nil
}

// SaveAll makes the remote copy equal to data
func (m *MongoBackend) SaveAll(ctx context.Context, userID string, data *types.AppData) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		doc := toProfileDoc(userID, data, m.now())
		_, err := m.db.Collection(CollectionProfiles).ReplaceOne(gctx, bson.M{"_id": userID}, doc, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("write profile: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		ids, docs := make([]string, 0, len(data.Goals)), make([]any, 0, len(data.Goals))
		for i := range data.Goals {
			doc := toGoalDoc(userID, &data.Goals[i])
			ids, docs = append(ids, doc.ID), append(docs, doc)
		}
		return replaceAll(gctx, m.db.Collection(CollectionGoals), userID, ids, docs)
	})
	g.Go(func() error {
		ids, docs := make([]string, 0, len(data.Events)), make([]any, 0, len(data.Events))
		for i := range data.Events {
			doc := toEventDoc(userID, &data.Events[i])
			ids, docs = append(ids, doc.ID), append(docs, doc)
		}
		return replaceAll(gctx, m.db.Collection(CollectionEvents), userID, ids, docs)
	})
	g.Go(func() error {
		ids, docs := make([]string, 0, len(data.WeeklyReviews)), make([]any, 0, len(data.WeeklyReviews))
		for i := range data.WeeklyReviews {
			doc := toReviewDoc(userID, &data.WeeklyReviews[i])
			ids, docs = append(ids, doc.ID), append(docs, doc)
		}
		return replaceAll(gctx, m.db.Collection(CollectionWeeklyReviews), userID, ids, docs)
	})
	g.Go(func() error {
		ids, docs := make([]string, 0, len(data.BrainDump)), make([]any, 0, len(data.BrainDump))
		for i := range data.BrainDump {
			doc := toBrainDumpDoc(userID, &data.BrainDump[i])
			ids, docs = append(ids, doc.ID), append(docs, doc)
		}
		return replaceAll(gctx, m.db.Collection(CollectionBrainDump), userID, ids, docs)
	})
	g.Go(func() error {
		ids, docs := make([]string, 0, len(data.BodyDoubleHistory)), make([]any, 0, len(data.BodyDoubleHistory))
		for i := range data.BodyDoubleHistory {
			doc := toBodyDoubleDoc(userID, &data.BodyDoubleHistory[i])
			ids, docs = append(ids, doc.ID), append(docs, doc)
		}
		return replaceAll(gctx, m.db.Collection(CollectionBodyDouble), userID, ids, docs)
	})

	return g.Wait()
}

// SavePreferences updates only the preferences, analytics and streak of the
// profile
func (m *MongoBackend) SavePreferences(ctx context.Context, userID string, bundle types.PreferencesBundle) error {
	update := bson.M{
		"$set": bson.M{
			"preferences": bundle.Preferences,
			"analytics":   bundle.Analytics,
			"streak":      bundle.Streak,
			"updated_at":  m.now(),
		},
		"$setOnInsert": bson.M{"version": types.CurrentVersion},
	}
	_, err := m.db.Collection(CollectionProfiles).UpdateOne(ctx, bson.M{"_id": userID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}
	return nil
}

func (m *MongoBackend) SaveGoal(ctx context.Context, userID string, goal *types.Goal) error {
	doc := toGoalDoc(userID, goal)
	_, err := m.db.Collection(CollectionGoals).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save goal: %w", err)
	}
	return nil
}

func (m *MongoBackend) DeleteGoal(ctx context.Context, userID, goalID string) error {
	_, err := m.db.Collection(CollectionGoals).DeleteOne(ctx, bson.M{"_id": docID(userID, goalID)})
	if err != nil {
		return fmt.Errorf("delete goal: %w", err)
	}
	return nil
}

func (m *MongoBackend) SaveBrainDump(ctx context.Context, userID string, entry *types.BrainDumpEntry) error {
	doc := toBrainDumpDoc(userID, entry)
	_, err := m.db.Collection(CollectionBrainDump).ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save brain dump entry: %w", err)
	}
	return nil
}

func (m *MongoBackend) DeleteBrainDump(ctx context.Context, userID, entryID string) error {
	_, err := m.db.Collection(CollectionBrainDump).DeleteOne(ctx, bson.M{"_id": docID(userID, entryID)})
	if err != nil {
		return fmt.Errorf("delete brain dump entry: %w", err)
	}
	return nil
}
