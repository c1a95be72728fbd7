package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/remote"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/types"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// countingStore records how often the local snapshot is written
type countingStore struct {
	storage.SnapshotStore
	mu    sync.Mutex
	saves int
}

func (c *countingStore) SaveSnapshot(d *types.AppData) error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.SnapshotStore.SaveSnapshot(d)
}

func (c *countingStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}

type recordingPrefs struct {
	mu      sync.Mutex
	bundles []types.PreferencesBundle
}

func (r *recordingPrefs) SavePreferences(b types.PreferencesBundle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bundles = append(r.bundles, b)
}

type fixture struct {
	svc     *Service
	local   *countingStore
	db      *storage.BoltStore
	backend *remote.MemoryBackend
	session *remote.StaticSession
	broker  *events.Broker
	clock   *clockwork.FakeClock
}

func newFixture(t *testing.T, withRemote bool) *fixture {
	t.Helper()

	db, err := storage.NewBoltStore(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	f := &fixture{
		local:  &countingStore{SnapshotStore: db},
		db:     db,
		broker: broker,
		clock:  clockwork.NewFakeClockAt(testNow),
	}
	deps := Deps{Local: f.local, Queue: db, Broker: broker, Clock: f.clock}
	if withRemote {
		f.backend = remote.NewMemoryBackend()
		f.session = &remote.StaticSession{User: &types.User{ID: "u1"}}
		deps.Backend = f.backend
		deps.Sessions = f.session
	}
	f.svc = New(deps)
	return f
}

func snapshot(title string) *types.AppData {
	return &types.AppData{
		Goals: []types.Goal{{
			ID: "g1", Title: title, Level: types.GoalLevelVision, Status: types.GoalStatusNotStarted,
			Priority: types.PriorityHigh, Year: 2025, CreatedAt: "2025-03-01",
		}},
		CreatedAt: "2025-03-01T00:00:00Z",
		Version:   types.CurrentVersion,
	}
}

func waitFor(t *testing.T, sub events.Subscriber, typ events.EventType) *events.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub:
			if e.Type == typ {
				return e
			}
		case <-deadline:
			t.Fatalf("no %s event", typ)
			return nil
		}
	}
}

func TestLoadWithoutRemoteReturnsLocal(t *testing.T) {
	f := newFixture(t, false)
	require.NoError(t, f.db.SaveSnapshot(snapshot("Local")))

	res, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshot("Local"), res.Data)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, StatusLocal, f.svc.State().Status)
	assert.False(t, f.svc.RemoteEnabled())
}

func TestLoadFromRemote(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Put("u1", snapshot("Remote"))
	require.NoError(t, f.db.SaveSnapshot(snapshot("Local")))

	res, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceRemote, res.Source)
	assert.Equal(t, "Remote", res.Data.Goals[0].Title)

	st := f.svc.State()
	assert.Equal(t, StatusSynced, st.Status)
	assert.Equal(t, testNow, st.LastSync)
	assert.Equal(t, "u1", f.svc.UserID())

	// The remote copy becomes the local backup
	stored, err := f.db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "Remote", stored.Goals[0].Title)
}

func TestLoadRemoteEmptyFallsBackToLocal(t *testing.T) {
	f := newFixture(t, true)
	require.NoError(t, f.db.SaveSnapshot(snapshot("Local")))

	res, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	assert.True(t, res.RemoteEmpty)
	assert.Equal(t, SourceLocal, res.Source)
	assert.Equal(t, "Local", res.Data.Goals[0].Title)
	assert.Equal(t, StatusLocal, f.svc.State().Status)
}

func TestLoadRemoteFailureKeepsLastSync(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Put("u1", snapshot("Remote"))

	_, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	f.backend.Fail(errors.New("service unavailable"))

	res, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Remote", res.Data.Goals[0].Title, "local backup from the previous sync")

	st := f.svc.State()
	assert.Equal(t, StatusError, st.Status)
	assert.Equal(t, "service unavailable", st.Error)
	assert.Equal(t, testNow, st.LastSync)
}

func TestLoadWithoutSessionIsLocal(t *testing.T) {
	f := newFixture(t, true)
	f.session.User = nil

	res, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Data)
	assert.Equal(t, StatusLocal, f.svc.State().Status)
	assert.Equal(t, 0, f.backend.TotalCalls())
}

func TestSaveOptionsSelectSides(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.svc.SaveData(ctx, snapshot("Cloud"), SaveOptions{CloudOnly: true}))
	assert.Equal(t, 0, f.local.count())
	assert.Equal(t, 1, f.backend.Calls("save_all"))
	assert.Equal(t, StatusSynced, f.svc.State().Status)

	require.NoError(t, f.svc.SaveData(ctx, snapshot("Local"), SaveOptions{LocalOnly: true}))
	assert.Equal(t, 1, f.local.count())
	assert.Equal(t, 1, f.backend.TotalCalls())

	require.NoError(t, f.svc.SaveData(ctx, snapshot("Both"), SaveOptions{}))
	assert.Equal(t, 2, f.local.count())
	assert.Equal(t, "Both", f.backend.Get("u1").Goals[0].Title)
}

func TestSaveFailureQueuesLatestSnapshot(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.backend.Fail(errors.New("timeout"))

	require.NoError(t, f.svc.SaveData(ctx, snapshot("First"), SaveOptions{}))
	require.NoError(t, f.svc.SaveData(ctx, snapshot("Second"), SaveOptions{}))

	assert.Equal(t, StatusError, f.svc.State().Status)

	stored, err := f.db.LoadSnapshot()
	require.NoError(t, err)
	assert.Equal(t, "Second", stored.Goals[0].Title)

	items, err := f.db.ListQueue()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, storage.OpSnapshotSave, items[0].Type)
	assert.Contains(t, string(items[0].Data), "Second")
}

func TestOfflineSavesAreQueued(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	sub := f.broker.Subscribe()

	_, err := f.svc.LoadData(ctx)
	require.NoError(t, err)

	f.svc.SetOffline()
	assert.True(t, f.svc.IsOffline())
	waitFor(t, sub, events.EventConnectionOffline)

	calls := f.backend.TotalCalls()
	require.NoError(t, f.svc.SaveData(ctx, snapshot("Offline"), SaveOptions{}))
	require.NoError(t, f.svc.SaveData(ctx, snapshot("Offline"), SaveOptions{PreferencesOnly: true}))
	assert.Equal(t, calls, f.backend.TotalCalls())
	assert.Equal(t, StatusOffline, f.svc.State().Status)

	n, err := f.db.QueueLen()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = f.svc.ForceSync(ctx)
	assert.True(t, apperr.IsOffline(err))

	f.svc.SetOnline()
	waitFor(t, sub, events.EventConnectionOnline)
	assert.Equal(t, StatusLocal, f.svc.State().Status)
}

func TestPreferencesOnlyUsesSaver(t *testing.T) {
	f := newFixture(t, true)
	prefs := &recordingPrefs{}
	f.svc.SetPreferencesSaver(prefs)

	data := snapshot("Prefs")
	data.Analytics = &types.Analytics{GoalsCreated: 3}
	require.NoError(t, f.svc.SaveData(context.Background(), data, SaveOptions{PreferencesOnly: true}))

	assert.Equal(t, 0, f.backend.Calls("save_all"))
	require.Len(t, prefs.bundles, 1)
	assert.Equal(t, 3, prefs.bundles[0].Analytics.GoalsCreated)
	assert.Equal(t, 1, f.local.count())
}

func TestForceSyncPublishesSnapshot(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Put("u1", snapshot("Fresh"))
	sub := f.broker.Subscribe()

	data, err := f.svc.ForceSync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fresh", data.Goals[0].Title)

	e := waitFor(t, sub, events.EventSyncForceComplete)
	payload, ok := e.Payload.(*types.AppData)
	require.True(t, ok)
	assert.Equal(t, "Fresh", payload.Goals[0].Title)

	f.backend.Fail(errors.New("down"))
	_, err = f.svc.ForceSync(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperr.CategorySync, apperr.Classify(err).Category)
}

func TestStatusEventsCarryState(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Put("u1", snapshot("x"))
	sub := f.broker.Subscribe()

	_, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)

	seen := []Status{}
	for len(seen) < 2 {
		e := waitFor(t, sub, events.EventSyncStatus)
		seen = append(seen, e.Payload.(State).Status)
	}
	assert.Equal(t, []Status{StatusSyncing, StatusSynced}, seen)

	f.svc.Reset()
	assert.Equal(t, "", f.svc.UserID())
	assert.Equal(t, State{Status: StatusLocal}, f.svc.State())
}

func TestConcurrentStatusChangesKeepLastSync(t *testing.T) {
	f := newFixture(t, true)
	f.backend.Put("u1", snapshot("x"))
	_, err := f.svc.LoadData(context.Background())
	require.NoError(t, err)
	require.Equal(t, testNow, f.svc.State().LastSync)

	f.clock.Advance(time.Minute)
	later := testNow.Add(time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.svc.setStatus(StatusSynced, "")
		}()
		go func() {
			defer wg.Done()
			f.svc.setStatus(StatusSyncing, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, later, f.svc.State().LastSync, "a status change never rolls LastSync back")
}
