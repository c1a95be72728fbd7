package entitysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/remote"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/types"
)

const (
	DefaultGoalDebounce        = 2 * time.Second
	DefaultBrainDumpDebounce   = 1 * time.Second
	DefaultPreferencesThrottle = 1 * time.Second
	DefaultRequestTimeout      = 10 * time.Second
)

var (
	// ErrNoSession is returned by Replay when nobody is signed in
	ErrNoSession = errors.New("no authenticated session")
	// ErrOtherUser is returned by Replay for an item queued by another
	// account. The item stays queued until that account signs in again.
	ErrOtherUser = errors.New("queued for another user")
)

// Connectivity reports whether remote writes can be attempted and for whom
type Connectivity interface {
	IsOffline() bool
	// UserID returns "" when there is no session
	UserID() string
}

// Config holds the timing of the sync helpers
type Config struct {
	GoalDebounce        time.Duration
	BrainDumpDebounce   time.Duration
	PreferencesThrottle time.Duration
	RequestTimeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.GoalDebounce <= 0 {
		c.GoalDebounce = DefaultGoalDebounce
	}
	if c.BrainDumpDebounce <= 0 {
		c.BrainDumpDebounce = DefaultBrainDumpDebounce
	}
	if c.PreferencesThrottle <= 0 {
		c.PreferencesThrottle = DefaultPreferencesThrottle
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// Deps are the collaborators of a Syncer. Backend may be nil when no remote is
// configured; Errors and Broker are optional.
type Deps struct {
	Backend remote.Backend
	Conn    Connectivity
	Queue   storage.Queue
	Dirty   storage.DirtyTracker
	Errors  *apperr.Handler
	Broker  *events.Broker
	Clock   clockwork.Clock
}

// Syncer writes single entities to the remote, collapsing bursts of edits.
// Successful writes mark the entity clean; failed writes go to the queue.
type Syncer struct {
	deps    Deps
	timeout time.Duration
	logger  zerolog.Logger

	goals     *KeyedDebouncer[types.Goal]
	brainDump *KeyedDebouncer[types.BrainDumpEntry]
	prefs     *Throttler[types.PreferencesBundle]
}

// New creates a Syncer
func New(deps Deps, cfg Config) *Syncer {
	cfg = cfg.withDefaults()
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	s := &Syncer{
		deps:    deps,
		timeout: cfg.RequestTimeout,
		logger:  log.WithComponent("entitysync"),
	}
	s.goals = NewKeyedDebouncer(deps.Clock, cfg.GoalDebounce, func(_ string, g types.Goal) {
		s.report(s.pushGoal(&g), storage.OpGoalSave, g.ID)
	})
	s.brainDump = NewKeyedDebouncer(deps.Clock, cfg.BrainDumpDebounce, func(_ string, e types.BrainDumpEntry) {
		s.report(s.pushBrainDump(&e), storage.OpBrainDumpSave, e.ID)
	})
	s.prefs = NewThrottler(deps.Clock, cfg.PreferencesThrottle, func(b types.PreferencesBundle) {
		s.report(s.pushPreferences(b), storage.OpPreferencesSave, storage.PreferencesID)
	})
	return s
}

// SaveGoal schedules a remote save of goal after the debounce delay
func (s *Syncer) SaveGoal(goal types.Goal) {
	s.markDirty(storage.KindGoal, goal.ID)
	s.goals.Call(goal.ID, goal)
}

// SaveBrainDump schedules a remote save of entry after the debounce delay
func (s *Syncer) SaveBrainDump(entry types.BrainDumpEntry) {
	s.markDirty(storage.KindBrainDump, entry.ID)
	s.brainDump.Call(entry.ID, entry)
}

// SavePreferences sends bundle now, or at the end of the current throttle
// window when one is open
func (s *Syncer) SavePreferences(bundle types.PreferencesBundle) {
	s.markDirty(storage.KindPreferences, storage.PreferencesID)
	s.prefs.Call(bundle)
}

// DeleteGoal drops any pending save for id and deletes it remotely
func (s *Syncer) DeleteGoal(ctx context.Context, id string) {
	s.goals.Cancel(id)
	s.markDirty(storage.KindGoal, id)
	s.report(s.run(ctx, storage.OpGoalDelete, storage.KindGoal, id, nil, func(ctx context.Context, userID string) error {
		return s.deps.Backend.DeleteGoal(ctx, userID, id)
	}), storage.OpGoalDelete, id)
}

// DeleteBrainDump drops any pending save for id and deletes it remotely
func (s *Syncer) DeleteBrainDump(ctx context.Context, id string) {
	s.brainDump.Cancel(id)
	s.markDirty(storage.KindBrainDump, id)
	s.report(s.run(ctx, storage.OpBrainDumpDelete, storage.KindBrainDump, id, nil, func(ctx context.Context, userID string) error {
		return s.deps.Backend.DeleteBrainDump(ctx, userID, id)
	}), storage.OpBrainDumpDelete, id)
}

// ForceSaveGoal saves goal immediately, replacing any pending debounced save.
// The remote error is returned; the write is still queued for replay.
func (s *Syncer) ForceSaveGoal(ctx context.Context, goal types.Goal) error {
	s.goals.Cancel(goal.ID)
	s.markDirty(storage.KindGoal, goal.ID)
	return s.pushGoalCtx(ctx, &goal)
}

// ForceSaveBrainDump saves entry immediately
func (s *Syncer) ForceSaveBrainDump(ctx context.Context, entry types.BrainDumpEntry) error {
	s.brainDump.Cancel(entry.ID)
	s.markDirty(storage.KindBrainDump, entry.ID)
	return s.pushBrainDumpCtx(ctx, &entry)
}

// ForceSavePreferences saves bundle immediately
func (s *Syncer) ForceSavePreferences(ctx context.Context, bundle types.PreferencesBundle) error {
	s.prefs.Cancel()
	s.markDirty(storage.KindPreferences, storage.PreferencesID)
	return s.pushPreferencesCtx(ctx, bundle)
}

// Flush runs every pending debounced or throttled write now
func (s *Syncer) Flush() int {
	n := s.goals.Flush() + s.brainDump.Flush()
	if s.prefs.Flush() {
		n++
	}
	return n
}

// Pending returns the number of writes waiting on a timer
func (s *Syncer) Pending() int {
	n := s.goals.Pending() + s.brainDump.Pending()
	if s.prefs.Pending() {
		n++
	}
	return n
}

// Stop drops all pending writes and their timers. Entities stay marked dirty.
func (s *Syncer) Stop() {
	s.goals.Stop()
	s.brainDump.Stop()
	s.prefs.Cancel()
}

// Replay performs the remote write recorded in item. It does not enqueue
// on failure; the caller owns the item's retry accounting.
func (s *Syncer) Replay(ctx context.Context, item *storage.QueueItem) error {
	if s.deps.Backend == nil {
		return nil
	}
	if s.deps.Conn.IsOffline() {
		return apperr.ErrOffline
	}
	userID := s.deps.Conn.UserID()
	if userID == "" {
		return ErrNoSession
	}
	if item.UserID != "" && item.UserID != userID {
		return ErrOtherUser
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var err error
	switch item.Type {
	case storage.OpGoalSave:
		var g types.Goal
		if err = json.Unmarshal(item.Data, &g); err == nil {
			err = s.deps.Backend.SaveGoal(ctx, userID, &g)
		}
	case storage.OpGoalDelete:
		err = s.deps.Backend.DeleteGoal(ctx, userID, item.EntityID)
	case storage.OpBrainDumpSave:
		var e types.BrainDumpEntry
		if err = json.Unmarshal(item.Data, &e); err == nil {
			err = s.deps.Backend.SaveBrainDump(ctx, userID, &e)
		}
	case storage.OpBrainDumpDelete:
		err = s.deps.Backend.DeleteBrainDump(ctx, userID, item.EntityID)
	case storage.OpPreferencesSave:
		var b types.PreferencesBundle
		if err = json.Unmarshal(item.Data, &b); err == nil {
			err = s.deps.Backend.SavePreferences(ctx, userID, b)
		}
	case storage.OpSnapshotSave:
		var d types.AppData
		if err = json.Unmarshal(item.Data, &d); err == nil {
			err = s.deps.Backend.SaveAll(ctx, userID, &d)
		}
	default:
		return fmt.Errorf("unknown queue operation %q", item.Type)
	}

	metrics.TrackSync("replay."+string(item.Type), err)
	if err != nil {
		return err
	}
	if item.EntityID != "" {
		s.markClean(item.Kind, item.EntityID)
	}
	return nil
}

func (s *Syncer) pushGoal(g *types.Goal) error {
	return s.pushGoalCtx(context.Background(), g)
}

func (s *Syncer) pushGoalCtx(ctx context.Context, g *types.Goal) error {
	return s.run(ctx, storage.OpGoalSave, storage.KindGoal, g.ID, g, func(ctx context.Context, userID string) error {
		return s.deps.Backend.SaveGoal(ctx, userID, g)
	})
}

func (s *Syncer) pushBrainDump(e *types.BrainDumpEntry) error {
	return s.pushBrainDumpCtx(context.Background(), e)
}

func (s *Syncer) pushBrainDumpCtx(ctx context.Context, e *types.BrainDumpEntry) error {
	return s.run(ctx, storage.OpBrainDumpSave, storage.KindBrainDump, e.ID, e, func(ctx context.Context, userID string) error {
		return s.deps.Backend.SaveBrainDump(ctx, userID, e)
	})
}

func (s *Syncer) pushPreferences(b types.PreferencesBundle) error {
	return s.pushPreferencesCtx(context.Background(), b)
}

func (s *Syncer) pushPreferencesCtx(ctx context.Context, b types.PreferencesBundle) error {
	return s.run(ctx, storage.OpPreferencesSave, storage.KindPreferences, storage.PreferencesID, b, func(ctx context.Context, userID string) error {
		return s.deps.Backend.SavePreferences(ctx, userID, b)
	})
}

// run performs one remote write. Without a backend or a session there is
// nothing to do and the entity stays dirty. Offline or failed writes are
// queued and the error is returned.
func (s *Syncer) run(ctx context.Context, op storage.QueueOp, kind, id string, data any, call func(context.Context, string) error) error {
	if s.deps.Backend == nil {
		return nil
	}
	userID := s.deps.Conn.UserID()
	if userID == "" {
		return nil
	}

	if s.deps.Conn.IsOffline() {
		s.enqueue(op, kind, id, data, apperr.ErrOffline)
		return apperr.Network(string(op), apperr.ErrOffline)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := call(ctx, userID)
	metrics.TrackSync(string(op), err)
	if err != nil {
		s.enqueue(op, kind, id, data, err)
		return apperr.Sync(string(op), err)
	}

	s.markClean(kind, id)
	elog := log.WithEntity(s.logger, kind, id)
	elog.Debug().Str("op", string(op)).Msg("Entity synced")
	return nil
}

func (s *Syncer) enqueue(op storage.QueueOp, kind, id string, data any, cause error) {
	item := &storage.QueueItem{
		Type:      op,
		Kind:      kind,
		EntityID:  id,
		UserID:    s.deps.Conn.UserID(),
		LastError: cause.Error(),
		CreatedAt: s.deps.Clock.Now(),
		UpdatedAt: s.deps.Clock.Now(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			s.logger.Error().Err(err).Str("op", string(op)).Msg("Failed to encode queue item")
			return
		}
		item.Data = raw
	}

	if err := s.deps.Queue.Enqueue(item); err != nil {
		s.logger.Error().Err(err).Str("op", string(op)).Str("entity_id", id).Msg("Failed to queue write")
		return
	}

	if s.deps.Broker != nil {
		s.deps.Broker.Publish(&events.Event{
			Type:     events.EventQueueEnqueued,
			Message:  fmt.Sprintf("Queued %s for %s", op, id),
			Metadata: map[string]string{"op": string(op), "entity_id": id},
			Payload:  item,
		})
	}
}

// report hands a background write failure to the error handler
func (s *Syncer) report(err error, op storage.QueueOp, id string) {
	if err == nil {
		return
	}
	if s.deps.Errors != nil {
		s.deps.Errors.Handle(err, map[string]string{"op": string(op), "entity_id": id})
		return
	}
	s.logger.Warn().Err(err).Str("op", string(op)).Str("entity_id", id).Msg("Entity sync failed")
}

func (s *Syncer) markDirty(kind, id string) {
	// Local-only installs have nothing to reconcile against
	if s.deps.Backend == nil {
		return
	}
	if err := s.deps.Dirty.MarkDirty(kind, id); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Str("entity_id", id).Msg("Failed to mark entity dirty")
	}
}

func (s *Syncer) markClean(kind, id string) {
	if err := s.deps.Dirty.MarkClean(kind, id); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Str("entity_id", id).Msg("Failed to mark entity clean")
	}
}
