package controller

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/cache"
	"github.com/cuemby/verdant/pkg/datastore"
	"github.com/cuemby/verdant/pkg/entitysync"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/reconciler"
	"github.com/cuemby/verdant/pkg/schema"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/syncer"
	"github.com/cuemby/verdant/pkg/types"
)

var (
	// ErrGoalNotFound is returned when a goal id is unknown
	ErrGoalNotFound = errors.New("goal not found")

	goalKeys = regexp.MustCompile(`^goals:`)
)

const statsKey = "stats:summary"

// Deps are the collaborators of a Controller. Store, Sync, Entities and
// Cache are required; the rest are optional.
type Deps struct {
	Store      *datastore.Store
	Sync       *syncer.Service
	Entities   *entitysync.Syncer
	Cache      *cache.Cache
	Reconciler *reconciler.Reconciler
	Queue      storage.Queue
	Dirty      storage.DirtyTracker
	Broker     *events.Broker
	Errors     *apperr.Handler
	Validator  *schema.Validator
	Clock      clockwork.Clock
}

// Controller is the single entry point for reading and changing the user's
// data. Every mutation goes through it so the cache, the local snapshot and
// the remote stay consistent.
type Controller struct {
	deps   Deps
	logger zerolog.Logger

	mu       sync.RWMutex
	ui       UIState
	running  bool
	forceSub events.Subscriber

	// applyMu serializes remote snapshot swaps. claimed holds snapshots
	// ForceSync applied itself whose broker event the watcher has not seen.
	applyMu sync.Mutex
	claimed map[*types.AppData]struct{}
}

// New creates a controller. Call Init before using it.
func New(deps Deps) *Controller {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Validator == nil {
		deps.Validator = schema.Default
	}
	if deps.Sync != nil && deps.Entities != nil {
		deps.Sync.SetPreferencesSaver(deps.Entities)
	}

	c := &Controller{
		deps:   deps,
		logger: log.WithComponent("controller"),
		ui:     newUIState(deps.Clock.Now()),
	}
	if deps.Broker != nil {
		deps.Store.Subscribe(c.publishData)
	}
	return c
}

// publishData mirrors every committed snapshot onto the broker
func (c *Controller) publishData(data *types.AppData) {
	if data == nil {
		return
	}
	c.deps.Broker.Publish(&events.Event{
		Type:     events.EventDataChanged,
		Message:  "Data changed",
		Metadata: map[string]string{"goals": strconv.Itoa(len(data.Goals))},
		Payload:  data,
	})
}

// Init loads the freshest snapshot, repairs it and derives the initial UI
// state. Background services start only for a signed-in user.
func (c *Controller) Init(ctx context.Context) error {
	res, err := c.deps.Sync.LoadData(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Local snapshot unreadable, starting from loaded or default data")
	}

	data := res.Data
	fresh := data == nil
	if fresh {
		data = datastore.CreateDefaultData(c.deps.Clock.Now())
	}
	c.deps.Store.SetData(data)

	authenticated := c.deps.Sync.UserID() != ""
	if authenticated {
		c.startBackground()
	}

	migrated := c.deps.Store.MigrateDataIfNeeded()
	repaired := c.deps.Store.EnsureDataShape()
	current := c.deps.Store.Data()

	switch {
	case res.RemoteEmpty && authenticated:
		// First sync for this account: seed the remote from this device
		c.logger.Info().
			Str("user_id", c.deps.Sync.UserID()).
			Bool("fresh", fresh).
			Int("goals", len(current.Goals)).
			Msg("Remote is empty, uploading local snapshot")
		c.save(ctx, current, syncer.SaveOptions{})
	case migrated || repaired:
		opts := syncer.SaveOptions{LocalOnly: true}
		if authenticated {
			opts = syncer.SaveOptions{PreferencesOnly: true}
		}
		c.logger.Info().Bool("migrated", migrated).Bool("repaired", repaired).Msg("Snapshot repaired on load")
		c.save(ctx, current, opts)
	case fresh:
		c.save(ctx, current, syncer.SaveOptions{LocalOnly: true})
	}

	c.mu.Lock()
	c.ui = deriveUIState(current.Preferences, c.deps.Clock.Now())
	ui := c.ui
	c.mu.Unlock()

	if authenticated {
		c.GoalsForMonth(ui.Year, ui.Month)
		c.Stats()
	}
	c.publishView(ui)

	c.logger.Info().
		Str("source", string(res.Source)).
		Str("status", string(c.deps.Sync.State().Status)).
		Int("goals", len(current.Goals)).
		Msg("Controller initialized")
	return nil
}

func (c *Controller) startBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true

	c.deps.Cache.Start()
	if c.deps.Reconciler != nil {
		c.deps.Reconciler.Start()
		c.deps.Reconciler.Trigger()
	}
	if c.deps.Broker != nil {
		c.forceSub = c.deps.Broker.Subscribe()
		go c.watchForceSync(c.forceSub)
	}
}

// watchForceSync hot-swaps snapshots published by a force sync started
// elsewhere, such as a reconnect
func (c *Controller) watchForceSync(sub events.Subscriber) {
	for e := range sub {
		if e.Type != events.EventSyncForceComplete {
			continue
		}
		data, ok := e.Payload.(*types.AppData)
		if !ok || data == nil {
			continue
		}

		c.applyMu.Lock()
		if _, mine := c.claimed[data]; mine {
			delete(c.claimed, data)
		} else {
			c.applyRemote(data)
		}
		c.applyMu.Unlock()
	}
}

// applyRemote swaps data in. Callers must hold applyMu.
func (c *Controller) applyRemote(data *types.AppData) {
	c.deps.Store.SetData(data)
	c.deps.Store.MigrateDataIfNeeded()
	c.deps.Store.EnsureDataShape()
	c.deps.Cache.Clear()
	c.logger.Info().Int("goals", len(data.Goals)).Msg("Applied remote snapshot")
}

// Data returns a copy of the current snapshot, or nil before Init
func (c *Controller) Data() *types.AppData {
	return c.deps.Store.Data()
}

// SubscribeData registers fn for every committed change
func (c *Controller) SubscribeData(fn datastore.Listener) (unsubscribe func()) {
	return c.deps.Store.Subscribe(fn)
}

// UpdateData merges patch into the snapshot after validating the result. A
// patch limited to preferences, analytics or streak takes the cheap
// preferences-only sync path.
func (c *Controller) UpdateData(ctx context.Context, patch types.Patch) error {
	if patch.IsEmpty() {
		return nil
	}

	err := c.deps.Store.Update(func(d *types.AppData) error {
		datastore.ApplyPatch(d, patch)
		datastore.NormalizeGoalStatuses(d)
		if errs := schema.CheckAppData(c.deps.Validator, d); len(errs) > 0 {
			return apperr.Validation("update_data", errs)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if patch.Goals != nil {
		c.deps.Cache.InvalidatePattern(goalKeys)
	}
	if patch.TouchesEntities() || patch.Analytics != nil || patch.Streak != nil {
		c.deps.Cache.Invalidate(statsKey)
	}
	if patch.Preferences != nil {
		c.deps.Cache.Invalidate("preferences")
	}

	opts := syncer.SaveOptions{}
	if !patch.TouchesEntities() {
		opts.PreferencesOnly = true
	}
	return c.save(ctx, c.deps.Store.Data(), opts)
}

// SaveGoal validates and stores goal locally, then syncs it after the
// debounce delay
func (c *Controller) SaveGoal(ctx context.Context, goal types.Goal) (types.Goal, error) {
	saved, analytics, err := c.upsertGoal(goal)
	if err != nil {
		return saved, err
	}
	c.deps.Entities.SaveGoal(saved)
	if analytics {
		c.deps.Entities.SavePreferences(c.deps.Store.Data().PreferencesBundle())
	}
	return saved, nil
}

// ForceSaveGoal stores goal and writes it to the remote immediately,
// returning the remote error
func (c *Controller) ForceSaveGoal(ctx context.Context, goal types.Goal) (types.Goal, error) {
	saved, analytics, err := c.upsertGoal(goal)
	if err != nil {
		return saved, err
	}
	if err := c.deps.Entities.ForceSaveGoal(ctx, saved); err != nil {
		return saved, err
	}
	if analytics {
		return saved, c.deps.Entities.ForceSavePreferences(ctx, c.deps.Store.Data().PreferencesBundle())
	}
	return saved, nil
}

// upsertGoal commits goal and the analytics it affects, and writes the
// local snapshot. It reports whether analytics changed.
func (c *Controller) upsertGoal(goal types.Goal) (types.Goal, bool, error) {
	now := c.deps.Clock.Now()
	goal.Title = strings.TrimSpace(goal.Title)
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.CreatedAt == "" {
		goal.CreatedAt = types.FormatTimestamp(now)
	}
	goal.UpdatedAt = types.FormatTimestamp(now)

	analytics := false
	err := c.deps.Store.Update(func(d *types.AppData) error {
		var prev *types.Goal
		i := d.FindGoal(goal.ID)
		if i >= 0 {
			prev = &d.Goals[i]
		}

		if goal.Status == types.GoalStatusDone && (prev == nil || prev.Status != types.GoalStatusDone) {
			if goal.CompletedAt == "" {
				goal.CompletedAt = types.FormatTimestamp(now)
			}
			if d.Analytics != nil {
				d.Analytics.GoalsCompleted++
				analytics = true
			}
		}
		if prev == nil && d.Analytics != nil {
			d.Analytics.GoalsCreated++
			analytics = true
		}

		if errs := schema.CheckGoal(c.deps.Validator, &goal); len(errs) > 0 {
			return apperr.Validation("save_goal", errs)
		}

		if i >= 0 {
			d.Goals[i] = goal
		} else {
			d.Goals = append(d.Goals, goal)
		}
		return nil
	})
	if err != nil {
		return goal, false, err
	}

	c.invalidateGoals()
	c.save(context.Background(), c.deps.Store.Data(), syncer.SaveOptions{LocalOnly: true})
	return goal, analytics, nil
}

// DeleteGoal removes a goal and its children locally and remotely
func (c *Controller) DeleteGoal(ctx context.Context, id string) error {
	var removed []string
	err := c.deps.Store.Update(func(d *types.AppData) error {
		if d.FindGoal(id) < 0 {
			return fmt.Errorf("%w: %s", ErrGoalNotFound, id)
		}
		kept := d.Goals[:0:0]
		for _, g := range d.Goals {
			if g.ID == id || g.ParentID == id {
				removed = append(removed, g.ID)
				continue
			}
			kept = append(kept, g)
		}
		d.Goals = kept
		return nil
	})
	if err != nil {
		return err
	}

	c.invalidateGoals()
	c.save(ctx, c.deps.Store.Data(), syncer.SaveOptions{LocalOnly: true})
	for _, gid := range removed {
		c.deps.Entities.DeleteGoal(ctx, gid)
	}
	return nil
}

// AddBrainDump captures a thought and syncs it after the debounce delay
func (c *Controller) AddBrainDump(ctx context.Context, text string) (types.BrainDumpEntry, error) {
	entry := types.BrainDumpEntry{
		ID:        uuid.NewString(),
		Text:      strings.TrimSpace(text),
		CreatedAt: types.FormatTimestamp(c.deps.Clock.Now()),
	}
	if errs := c.deps.Validator.Check(&entry); len(errs) > 0 {
		return entry, apperr.Validation("add_brain_dump", errs)
	}

	err := c.deps.Store.Update(func(d *types.AppData) error {
		d.BrainDump = append(d.BrainDump, entry)
		return nil
	})
	if err != nil {
		return entry, err
	}

	c.deps.Cache.Invalidate(statsKey)
	c.save(ctx, c.deps.Store.Data(), syncer.SaveOptions{LocalOnly: true})
	c.deps.Entities.SaveBrainDump(entry)
	return entry, nil
}

// Export renders the snapshot as a backup file
func (c *Controller) Export() ([]byte, error) {
	return c.deps.Store.ExportData()
}

// Import validates and commits a backup, salvaging what it can, then saves
// the result everywhere
func (c *Controller) Import(ctx context.Context, raw []byte) (datastore.ImportResult, error) {
	res, err := c.deps.Store.ImportData(raw)
	if err != nil {
		return res, apperr.Validation("import", err)
	}

	c.deps.Cache.Clear()
	if res.Salvaged {
		c.logger.Warn().Int("dropped", res.Dropped).Strs("fields", res.SalvagedFields).Msg("Imported backup with errors")
	}
	return res, c.save(ctx, c.deps.Store.Data(), syncer.SaveOptions{})
}

// ForceSync pulls the remote snapshot and swaps it in. The watcher is held
// off until the swap is done and then skips the matching event.
func (c *Controller) ForceSync(ctx context.Context) error {
	c.applyMu.Lock()
	defer c.applyMu.Unlock()

	data, err := c.deps.Sync.ForceSync(ctx)
	if err != nil {
		return err
	}
	if data != nil && c.deps.Sync.State().Status == syncer.StatusSynced {
		if c.claimed == nil {
			c.claimed = make(map[*types.AppData]struct{})
		}
		c.claimed[data] = struct{}{}
		c.applyRemote(data)
	}
	return nil
}

// Reconnect leaves offline mode, pulls fresh data and replays the queue
func (c *Controller) Reconnect(ctx context.Context) error {
	c.deps.Sync.SetOnline()
	err := c.ForceSync(ctx)
	if c.deps.Reconciler != nil {
		c.deps.Reconciler.Trigger()
	}
	return err
}

// GoOffline switches to offline mode; saves are queued until Reconnect
func (c *Controller) GoOffline() {
	c.deps.Sync.SetOffline()
}

// SyncState returns the current sync status
func (c *Controller) SyncState() syncer.State {
	return c.deps.Sync.State()
}

// Cleanup flushes pending writes and stops background services. The cache
// is cleared so nothing leaks into the next session.
func (c *Controller) Cleanup() {
	c.deps.Entities.Flush()
	c.deps.Entities.Stop()

	c.mu.Lock()
	running := c.running
	c.running = false
	sub := c.forceSub
	c.forceSub = nil
	c.mu.Unlock()

	if running {
		c.deps.Cache.Stop()
		if c.deps.Reconciler != nil {
			c.deps.Reconciler.Stop()
		}
	}
	if sub != nil {
		c.deps.Broker.Unsubscribe(sub)
	}
	c.deps.Cache.Clear()

	c.applyMu.Lock()
	c.claimed = nil
	c.applyMu.Unlock()
}

// Logout ends the session. The local snapshot stays on disk.
func (c *Controller) Logout() {
	c.Cleanup()
	c.deps.Store.Clear()
	c.deps.Sync.Reset()

	c.mu.Lock()
	c.ui = newUIState(c.deps.Clock.Now())
	c.mu.Unlock()
}

// MetricsSample reports the gauges kept by the metrics collector
func (c *Controller) MetricsSample() metrics.Sample {
	s := metrics.Sample{
		CacheEntries: c.deps.Cache.Size(),
		SyncStatus:   string(c.deps.Sync.State().Status),
	}
	if c.deps.Queue != nil {
		if n, err := c.deps.Queue.QueueLen(); err == nil {
			s.QueueDepth = n
		}
	}
	if c.deps.Dirty != nil {
		if keys, err := c.deps.Dirty.ListDirty(); err == nil {
			s.DirtyEntities = len(keys)
		}
	}
	return s
}

func (c *Controller) invalidateGoals() {
	c.deps.Cache.InvalidatePattern(goalKeys)
	c.deps.Cache.Invalidate(statsKey)
}

// save persists data and records a local write failure
func (c *Controller) save(ctx context.Context, data *types.AppData, opts syncer.SaveOptions) error {
	err := c.deps.Sync.SaveData(ctx, data, opts)
	if err != nil && c.deps.Errors != nil {
		c.deps.Errors.Handle(err, map[string]string{"component": "controller"})
	}
	return err
}
