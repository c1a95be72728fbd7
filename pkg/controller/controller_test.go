package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/cache"
	"github.com/cuemby/verdant/pkg/datastore"
	"github.com/cuemby/verdant/pkg/entitysync"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/reconciler"
	"github.com/cuemby/verdant/pkg/remote"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/syncer"
	"github.com/cuemby/verdant/pkg/types"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

type harness struct {
	ctrl     *Controller
	db       *storage.BoltStore
	backend  *remote.MemoryBackend
	svc      *syncer.Service
	entities *entitysync.Syncer
	cache    *cache.Cache
	broker   *events.Broker
	clock    *clockwork.FakeClock
}

func newHarness(t *testing.T, withRemote bool) *harness {
	t.Helper()

	db, err := storage.NewBoltStore(t.TempDir(), "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	broker := events.NewBroker()
	broker.Start()
	t.Cleanup(broker.Stop)

	h := &harness{
		db:     db,
		broker: broker,
		clock:  clockwork.NewFakeClockAt(testNow),
	}
	h.cache = cache.New(cache.WithClock(h.clock))

	deps := syncer.Deps{Local: db, Queue: db, Broker: broker, Clock: h.clock}
	if withRemote {
		h.backend = remote.NewMemoryBackend()
		deps.Backend = h.backend
		deps.Sessions = &remote.StaticSession{User: &types.User{ID: "u1"}}
	}
	h.svc = syncer.New(deps)

	entityDeps := entitysync.Deps{Conn: h.svc, Queue: db, Dirty: db, Broker: broker, Clock: h.clock}
	if withRemote {
		entityDeps.Backend = h.backend
	}
	h.entities = entitysync.New(entityDeps, entitysync.Config{})

	rec := reconciler.NewReconciler(reconciler.Config{}, reconciler.Deps{
		Queue:    db,
		Replayer: h.entities,
		Conn:     h.svc,
		Broker:   broker,
		Clock:    h.clock,
	})

	h.ctrl = New(Deps{
		Store:      datastore.New(datastore.WithClock(h.clock)),
		Sync:       h.svc,
		Entities:   h.entities,
		Cache:      h.cache,
		Reconciler: rec,
		Queue:      db,
		Dirty:      db,
		Broker:     broker,
		Clock:      h.clock,
	})
	t.Cleanup(h.ctrl.Cleanup)
	return h
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Init(context.Background()))
}

func (h *harness) queueLen(t *testing.T) int {
	t.Helper()
	n, err := h.db.QueueLen()
	require.NoError(t, err)
	return n
}

func focusGoal(title string) types.Goal {
	return types.Goal{
		Title:    title,
		Level:    types.GoalLevelFocus,
		Status:   types.GoalStatusInProgress,
		Priority: types.PriorityMedium,
		Month:    2,
		Year:     2025,
	}
}

func remoteSnapshot(titles ...string) *types.AppData {
	d := datastore.CreateDefaultData(testNow)
	for i, title := range titles {
		g := focusGoal(title)
		g.ID = "r" + string(rune('1'+i))
		g.CreatedAt = "2025-03-01"
		d.Goals = append(d.Goals, g)
	}
	return d
}

func TestInitLocalOnlyStartsFromDefaults(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	data := h.ctrl.Data()
	require.NotNil(t, data)
	assert.Empty(t, data.Goals)
	assert.Equal(t, types.CurrentVersion, data.Version)
	assert.Equal(t, syncer.StatusLocal, h.ctrl.SyncState().Status)

	stored, err := h.db.LoadSnapshot()
	require.NoError(t, err)
	require.NotNil(t, stored, "fresh defaults are written locally")

	ui := h.ctrl.UI()
	assert.Equal(t, types.ViewMonth, ui.View)
	assert.Equal(t, 2025, ui.Year)
	assert.Equal(t, 2, ui.Month)
	assert.Equal(t, 11, ui.Week)
	assert.Equal(t, DefaultZoom, ui.Zoom)
}

func TestInitPrefersRemoteSnapshot(t *testing.T) {
	h := newHarness(t, true)
	h.backend.Put("u1", remoteSnapshot("From the cloud"))
	h.init(t)

	data := h.ctrl.Data()
	require.Len(t, data.Goals, 1)
	assert.Equal(t, "From the cloud", data.Goals[0].Title)
	assert.Equal(t, syncer.StatusSynced, h.ctrl.SyncState().Status)
	assert.True(t, h.cache.Has("goals:2025-03"), "current month is warmed")
	assert.True(t, h.cache.Has(statsKey))
}

func TestInitUploadsLocalWhenRemoteEmpty(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)

	assert.Equal(t, 1, h.backend.Calls("save_all"))
	require.NotNil(t, h.backend.Get("u1"))
	assert.Equal(t, syncer.StatusSynced, h.ctrl.SyncState().Status)
}

func TestUpdateDataPreferencesTakeCheapPath(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	prefs := *h.ctrl.Data().Preferences
	prefs.Theme = types.ThemeDark
	require.NoError(t, h.ctrl.UpdateData(ctx, types.Patch{Preferences: &prefs}))

	assert.Equal(t, types.ThemeDark, h.ctrl.Data().Preferences.Theme)
	assert.Equal(t, 1, h.backend.Calls("save_preferences"))
	assert.Equal(t, 1, h.backend.Calls("save_all"), "only the initial upload")

	achievements := []string{"first-goal"}
	require.NoError(t, h.ctrl.UpdateData(ctx, types.Patch{Achievements: &achievements}))
	assert.Equal(t, 2, h.backend.Calls("save_all"))
	assert.Equal(t, []string{"first-goal"}, h.backend.Get("u1").Achievements)
}

func TestUpdateDataRejectsInvalidSnapshot(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	goals := []types.Goal{{ID: "x"}}
	err := h.ctrl.UpdateData(context.Background(), types.Patch{Goals: &goals})
	require.Error(t, err)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CategoryValidation, ae.Category)
	assert.Empty(t, h.ctrl.Data().Goals, "nothing committed")

	assert.NoError(t, h.ctrl.UpdateData(context.Background(), types.Patch{}))
}

func TestUpdateDataRefreshesStats(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	ctx := context.Background()
	assert.Zero(t, h.ctrl.Stats().FocusSessions)

	t.Run("focus sessions", func(t *testing.T) {
		history := []types.BodyDoubleSession{{ID: "bd1", StartedAt: "2025-03-14", DurationMinutes: 25, Completed: true}}
		require.NoError(t, h.ctrl.UpdateData(ctx, types.Patch{BodyDoubleHistory: &history}))

		stats := h.ctrl.Stats()
		assert.Equal(t, 1, stats.FocusSessions)
		assert.Equal(t, 25, stats.FocusMinutes)
	})

	t.Run("brain dump", func(t *testing.T) {
		entries := []types.BrainDumpEntry{{ID: "b1", Text: "renew passport", CreatedAt: "2025-03-14"}}
		require.NoError(t, h.ctrl.UpdateData(ctx, types.Patch{BrainDump: &entries}))
		assert.Equal(t, 1, h.ctrl.Stats().OpenBrainDump)
	})
}

func TestStatsMapsAreCopies(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	_, err := h.ctrl.SaveGoal(context.Background(), focusGoal("Stretch"))
	require.NoError(t, err)

	first := h.ctrl.Stats()
	require.Equal(t, 1, first.ByStatus[types.GoalStatusInProgress])
	first.ByStatus[types.GoalStatusInProgress] = 99
	delete(first.ByLevel, types.GoalLevelFocus)

	second := h.ctrl.Stats()
	assert.Equal(t, 1, second.ByStatus[types.GoalStatusInProgress])
	assert.Equal(t, 1, second.ByLevel[types.GoalLevelFocus])
}

func TestSaveGoalDebouncesRemoteWrite(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	assert.Empty(t, h.ctrl.GoalsForMonth(2025, 2))

	saved, err := h.ctrl.SaveGoal(ctx, focusGoal("  Ship v1  "))
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Ship v1", saved.Title)
	assert.Equal(t, types.FormatTimestamp(testNow), saved.CreatedAt)

	data := h.ctrl.Data()
	require.Len(t, data.Goals, 1)
	assert.Equal(t, 1, data.Analytics.GoalsCreated)
	assert.Len(t, h.ctrl.GoalsForMonth(2025, 2), 1, "month cache invalidated")

	assert.Equal(t, 1, h.backend.Calls("save_preferences"), "analytics pushed on the leading edge")
	assert.Zero(t, h.backend.Calls("save_goal"))

	h.clock.Advance(entitysync.DefaultGoalDebounce)
	assert.Eventually(t, func() bool { return h.backend.Calls("save_goal") == 1 }, time.Second, 5*time.Millisecond)
}

func TestSaveGoalCompletionUpdatesAnalytics(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	ctx := context.Background()

	g, err := h.ctrl.SaveGoal(ctx, focusGoal("Write tests"))
	require.NoError(t, err)
	_, err = h.ctrl.SaveGoal(ctx, focusGoal("Write docs"))
	require.NoError(t, err)

	g.Status = types.GoalStatusDone
	g.Progress = 100
	done, err := h.ctrl.SaveGoal(ctx, g)
	require.NoError(t, err)
	assert.NotEmpty(t, done.CompletedAt)

	s := h.ctrl.Stats()
	assert.Equal(t, 2, s.TotalGoals)
	assert.Equal(t, 1, s.ByStatus[types.GoalStatusDone])
	assert.InDelta(t, 50.0, s.CompletionRate, 0.001)
	assert.InDelta(t, 50.0, s.AverageProgress, 0.001)
	assert.Equal(t, 2, s.Analytics.GoalsCreated)
	assert.Equal(t, 1, s.Analytics.GoalsCompleted)

	// Saving a done goal again is not a second completion
	_, err = h.ctrl.SaveGoal(ctx, done)
	require.NoError(t, err)
	assert.Equal(t, 1, h.ctrl.Data().Analytics.GoalsCompleted)
}

func TestSaveGoalValidation(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	g := focusGoal("Bad month")
	g.Month = 12
	_, err := h.ctrl.SaveGoal(context.Background(), g)
	require.Error(t, err)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CategoryValidation, ae.Category)
	assert.Contains(t, err.Error(), "month")
	assert.Empty(t, h.ctrl.Data().Goals)
	assert.Zero(t, h.ctrl.Data().Analytics.GoalsCreated)
}

func TestSaveGoalRejectsLegacyStatus(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	g := focusGoal("Old client")
	g.Status = types.GoalStatusLegacyCompleted
	_, err := h.ctrl.SaveGoal(context.Background(), g)

	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, apperr.CategoryValidation, ae.Category)
	assert.Empty(t, h.ctrl.Data().Goals)
}

func TestUpdateDataNormalisesLegacyStatus(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	g := focusGoal("Bulk edit")
	g.ID = "g1"
	g.CreatedAt = "2025-03-01"
	g.Status = types.GoalStatusLegacyCompleted
	goals := []types.Goal{g}
	require.NoError(t, h.ctrl.UpdateData(context.Background(), types.Patch{Goals: &goals}))
	assert.Equal(t, types.GoalStatusDone, h.ctrl.Data().Goals[0].Status)
}

func TestForceSaveGoalReturnsRemoteError(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)

	h.backend.Fail(errors.New("connection reset"))
	saved, err := h.ctrl.ForceSaveGoal(context.Background(), focusGoal("Urgent"))
	require.Error(t, err)

	assert.Equal(t, 0, h.ctrl.Data().FindGoal(saved.ID), "kept locally")
	assert.GreaterOrEqual(t, h.queueLen(t), 1)
	dirty, err := h.db.IsDirty(storage.KindGoal, saved.ID)
	require.NoError(t, err)
	assert.True(t, dirty)
}

func TestDeleteGoalRemovesChildren(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	parent, err := h.ctrl.SaveGoal(ctx, focusGoal("Parent"))
	require.NoError(t, err)
	child := focusGoal("Child")
	child.ParentID = parent.ID
	_, err = h.ctrl.SaveGoal(ctx, child)
	require.NoError(t, err)
	other, err := h.ctrl.SaveGoal(ctx, focusGoal("Other"))
	require.NoError(t, err)

	require.NoError(t, h.ctrl.DeleteGoal(ctx, parent.ID))

	goals := h.ctrl.Data().Goals
	require.Len(t, goals, 1)
	assert.Equal(t, other.ID, goals[0].ID)
	assert.Equal(t, 2, h.backend.Calls("delete_goal"))

	err = h.ctrl.DeleteGoal(ctx, "missing")
	assert.ErrorIs(t, err, ErrGoalNotFound)
}

func TestAddBrainDump(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	entry, err := h.ctrl.AddBrainDump(ctx, "  call the dentist ")
	require.NoError(t, err)
	assert.Equal(t, "call the dentist", entry.Text)
	assert.Equal(t, 1, h.ctrl.Stats().OpenBrainDump)

	h.clock.Advance(entitysync.DefaultBrainDumpDebounce)
	assert.Eventually(t, func() bool { return h.backend.Calls("save_brain_dump") == 1 }, time.Second, 5*time.Millisecond)

	_, err = h.ctrl.AddBrainDump(ctx, "   ")
	assert.Error(t, err)
	assert.Len(t, h.ctrl.Data().BrainDump, 1)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newHarness(t, false)
	src.init(t)
	ctx := context.Background()

	_, err := src.ctrl.SaveGoal(ctx, focusGoal("Portable"))
	require.NoError(t, err)
	raw, err := src.ctrl.Export()
	require.NoError(t, err)

	dst := newHarness(t, false)
	dst.init(t)
	dst.ctrl.GoalsForMonth(2025, 2)

	res, err := dst.ctrl.Import(ctx, raw)
	require.NoError(t, err)
	assert.False(t, res.Salvaged)
	require.Len(t, dst.ctrl.Data().Goals, 1)
	assert.Equal(t, "Portable", dst.ctrl.Data().Goals[0].Title)
	assert.Len(t, dst.ctrl.GoalsForMonth(2025, 2), 1)

	_, err = dst.ctrl.Import(ctx, []byte("not json"))
	assert.Error(t, err)
}

func TestNavigation(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	h.ctrl.GoToDate(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	h.ctrl.Navigate(1)
	ui := h.ctrl.UI()
	assert.Equal(t, 2025, ui.Year)
	assert.Equal(t, 1, ui.Month, "February")

	h.ctrl.Navigate(-2)
	ui = h.ctrl.UI()
	assert.Equal(t, 2024, ui.Year)
	assert.Equal(t, 11, ui.Month)

	require.NoError(t, h.ctrl.SetView(types.ViewWeek))
	before := h.ctrl.UI().ViewingDate
	h.ctrl.Navigate(1)
	assert.Equal(t, before.AddDate(0, 0, 7), h.ctrl.UI().ViewingDate)

	assert.Error(t, h.ctrl.SetView("decade"))
	assert.Equal(t, types.ViewWeek, h.ctrl.UI().View)

	assert.Equal(t, MaxZoom, h.ctrl.SetZoom(500))
	assert.Equal(t, MinZoom, h.ctrl.SetZoom(10))
	assert.Equal(t, 120, h.ctrl.SetZoom(120))

	h.ctrl.Today()
	assert.Equal(t, testNow, h.ctrl.UI().ViewingDate)
}

func TestViewChangesArePublished(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub)

	h.ctrl.Select("g1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub:
			if e.Type != events.EventViewChanged {
				continue
			}
			ui, ok := e.Payload.(UIState)
			require.True(t, ok)
			if ui.Selected == "g1" {
				assert.Equal(t, types.ViewMonth, ui.View)
				return
			}
		case <-deadline:
			t.Fatal("no view event")
		}
	}
}

func TestDataChangesArePublished(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	sub := h.broker.Subscribe()
	defer h.broker.Unsubscribe(sub)

	_, err := h.ctrl.SaveGoal(context.Background(), focusGoal("Announced"))
	require.NoError(t, err)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub:
			if e.Type != events.EventDataChanged {
				continue
			}
			data, ok := e.Payload.(*types.AppData)
			require.True(t, ok)
			if len(data.Goals) == 1 {
				assert.Equal(t, "Announced", data.Goals[0].Title)
				assert.Equal(t, "1", e.Metadata["goals"])
				return
			}
		case <-deadline:
			t.Fatal("no data event")
		}
	}
}

func TestToggleFocusModePersists(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)

	on, err := h.ctrl.ToggleFocusMode(context.Background())
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.ctrl.UI().FocusMode)
	assert.True(t, h.ctrl.Data().Preferences.FocusMode)

	stored, err := h.db.LoadSnapshot()
	require.NoError(t, err)
	assert.True(t, stored.Preferences.FocusMode)
}

func TestForceSyncFromElsewhereIsApplied(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)

	h.backend.Put("u1", remoteSnapshot("Edited on phone"))
	_, err := h.svc.ForceSync(context.Background())
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		d := h.ctrl.Data()
		return len(d.Goals) == 1 && d.Goals[0].Title == "Edited on phone"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestForceSyncAppliesEachSnapshotOnce(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	var mu sync.Mutex
	commits := 0
	unsubscribe := h.ctrl.SubscribeData(func(d *types.AppData) {
		mu.Lock()
		commits++
		mu.Unlock()
	})
	defer unsubscribe()
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return commits
	}

	const rounds = 20
	for i := 0; i < rounds; i++ {
		h.backend.Put("u1", remoteSnapshot(fmt.Sprintf("Round %d", i)))
		require.NoError(t, h.ctrl.ForceSync(ctx))
		assert.Equal(t, fmt.Sprintf("Round %d", i), h.ctrl.Data().Goals[0].Title)
	}

	assert.Never(t, func() bool { return count() > rounds }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, rounds, count())
}

func TestOfflineThenReconnect(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	ctx := context.Background()

	h.ctrl.GoOffline()
	assert.Equal(t, syncer.StatusOffline, h.ctrl.SyncState().Status)

	achievements := []string{"offline-win"}
	require.NoError(t, h.ctrl.UpdateData(ctx, types.Patch{Achievements: &achievements}))
	assert.Equal(t, 1, h.queueLen(t))
	assert.Equal(t, 1, h.backend.Calls("save_all"), "no remote write while offline")

	require.NoError(t, h.ctrl.Reconnect(ctx))
	assert.Equal(t, syncer.StatusSynced, h.ctrl.SyncState().Status)
	assert.Eventually(t, func() bool { return h.queueLen(t) == 0 }, 2*time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(h.backend.Get("u1").Achievements) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCleanupFlushesPendingWrites(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)

	_, err := h.ctrl.SaveGoal(context.Background(), focusGoal("Unsynced"))
	require.NoError(t, err)
	assert.Equal(t, 1, h.entities.Pending())

	h.ctrl.Cleanup()
	assert.Equal(t, 1, h.backend.Calls("save_goal"))
	assert.Zero(t, h.entities.Pending())
	assert.Zero(t, h.cache.Size())
}

func TestLogoutKeepsLocalSnapshot(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)

	h.ctrl.Logout()
	assert.Nil(t, h.ctrl.Data())

	stored, err := h.db.LoadSnapshot()
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestQueueDrainsAfterLogoutAndSignInAgain(t *testing.T) {
	h := newHarness(t, true)
	h.init(t)
	h.ctrl.Logout()
	h.init(t)
	ctx := context.Background()

	h.backend.Fail(errors.New("connection reset"))
	_, err := h.ctrl.ForceSaveGoal(ctx, focusGoal("Second session"))
	require.Error(t, err)
	require.GreaterOrEqual(t, h.queueLen(t), 1)

	h.backend.Fail(nil)
	assert.Eventually(t, func() bool {
		h.clock.Advance(reconciler.DefaultInterval)
		return h.queueLen(t) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(h.backend.Get("u1").Goals) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestMetricsSample(t *testing.T) {
	h := newHarness(t, false)
	h.init(t)
	h.ctrl.Stats()

	s := h.ctrl.MetricsSample()
	assert.Equal(t, "local", s.SyncStatus)
	assert.Zero(t, s.QueueDepth)
	assert.Zero(t, s.DirtyEntities)
	assert.Equal(t, 1, s.CacheEntries)
}
