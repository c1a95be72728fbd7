package reconciler

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
	"github.com/cuemby/verdant/pkg/entitysync"
	"github.com/cuemby/verdant/pkg/storage"
)

// scriptedReplayer returns a fixed error per entity id
type scriptedReplayer struct {
	mu     sync.Mutex
	errs   map[string]error
	replay []string
}

func (s *scriptedReplayer) Replay(ctx context.Context, item *storage.QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replay = append(s.replay, item.EntityID)
	return s.errs[item.EntityID]
}

func (s *scriptedReplayer) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.replay...)
}

type offlineFlag struct{ offline bool }

func (o *offlineFlag) IsOffline() bool { return o.offline }

func setup(t *testing.T, errs map[string]error, ids ...string) (*Reconciler, *storage.BoltStore, *scriptedReplayer, *offlineFlag) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	for _, id := range ids {
		require.NoError(t, store.Enqueue(&storage.QueueItem{Type: storage.OpGoalSave, Kind: storage.KindGoal, EntityID: id}))
	}

	rep := &scriptedReplayer{errs: errs}
	conn := &offlineFlag{}
	r := NewReconciler(Config{MaxAttempts: 2}, Deps{
		Queue:    store,
		Replayer: rep,
		Conn:     conn,
		Clock:    clockwork.NewFakeClock(),
	})
	return r, store, rep, conn
}

func TestProcessQueueReplaysInOrder(t *testing.T) {
	r, store, rep, _ := setup(t, nil, "a", "b", "c")

	res, err := r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 3, Succeeded: 3}, res)
	assert.Equal(t, []string{"a", "b", "c"}, rep.calls())

	n, err := store.QueueLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailingItemIsDroppedAfterMaxAttempts(t *testing.T) {
	r, store, _, _ := setup(t, map[string]error{"bad": errors.New("rejected")}, "good", "bad")

	res, err := r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 2, Succeeded: 1, Failed: 1, Remaining: 1}, res)

	items, err := store.ListQueue()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Attempts)
	assert.Equal(t, "rejected", items[0].LastError)

	res, err = r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Dropped: 1}, res)
}

func TestDroppedItemIsReported(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir(), "")
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Enqueue(&storage.QueueItem{Type: storage.OpGoalDelete, EntityID: "x", Attempts: 4}))

	var reported []apperr.Entry
	handler := apperr.NewHandler(apperr.HandlerOptions{
		Reporter: apperr.ReporterFunc(func(e apperr.Entry) { reported = append(reported, e) }),
	})

	r := NewReconciler(Config{MaxAttempts: 5}, Deps{
		Queue:    store,
		Replayer: &scriptedReplayer{errs: map[string]error{"x": errors.New("gone")}},
		Errors:   handler,
	})

	res, err := r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, reported, 1)
	assert.Equal(t, apperr.CategorySync, reported[0].Category)
	assert.Equal(t, "x", reported[0].Context["entity_id"])
}

func TestOfflineHaltsWithoutChargingAttempts(t *testing.T) {
	r, store, rep, conn := setup(t, map[string]error{"a": apperr.ErrOffline}, "a", "b")

	res, err := r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, []string{"a"}, rep.calls())

	items, err := store.ListQueue()
	require.NoError(t, err)
	assert.Zero(t, items[0].Attempts)

	rep.errs = map[string]error{"a": entitysync.ErrNoSession}
	res, err = r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Halted)

	conn.offline = true
	rep.errs = nil
	res, err = r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Halted)
	assert.Zero(t, res.Processed)
}

func TestLoopRunsOnTickAndTrigger(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir(), "")
	require.NoError(t, err)
	defer store.Close()

	clock := clockwork.NewFakeClock()
	rep := &scriptedReplayer{}
	r := NewReconciler(Config{Interval: time.Minute}, Deps{Queue: store, Replayer: rep, Clock: clock})
	r.Start()
	defer r.Stop()

	require.NoError(t, store.Enqueue(&storage.QueueItem{Type: storage.OpGoalSave, EntityID: "tick"}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return len(rep.calls()) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, store.Enqueue(&storage.QueueItem{Type: storage.OpGoalSave, EntityID: "trigger"}))
	r.Trigger()
	require.Eventually(t, func() bool { return len(rep.calls()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"tick", "trigger"}, rep.calls())
}

func TestStopWithoutStart(t *testing.T) {
	r, _, _, _ := setup(t, nil)
	r.Stop()
	r.Stop()
}

func TestRestartAfterStop(t *testing.T) {
	r, store, rep, _ := setup(t, nil)

	r.Start()
	assert.True(t, r.Running())
	r.Stop()
	assert.False(t, r.Running())

	r.Start()
	defer r.Stop()
	assert.True(t, r.Running())

	require.NoError(t, store.Enqueue(&storage.QueueItem{Type: storage.OpGoalSave, EntityID: "after-restart"}))
	r.Trigger()
	require.Eventually(t, func() bool { return len(rep.calls()) == 1 }, time.Second, 5*time.Millisecond)

	n, err := store.QueueLen()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestItemsOfAnotherUserAreSkipped(t *testing.T) {
	r, store, rep, _ := setup(t, map[string]error{"theirs": entitysync.ErrOtherUser}, "theirs", "mine")

	res, err := r.ProcessQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Processed: 1, Succeeded: 1, Skipped: 1, Remaining: 1}, res)
	assert.Equal(t, []string{"theirs", "mine"}, rep.calls())

	items, err := store.ListQueue()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "theirs", items[0].EntityID)
	assert.Zero(t, items[0].Attempts, "skipping is not a failed attempt")
}
