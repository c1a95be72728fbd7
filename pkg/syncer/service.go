package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
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

// Status is the sync state shown to the user
type Status string

const (
	StatusLocal   Status = "local"
	StatusSyncing Status = "syncing"
	StatusSynced  Status = "synced"
	StatusError   Status = "error"
	StatusOffline Status = "offline"
)

// State is the observable sync state. LastSync keeps the time of the last
// successful remote operation across later failures.
type State struct {
	Status   Status    `json:"status"`
	Error    string    `json:"error,omitempty"`
	LastSync time.Time `json:"lastSync,omitzero"`
}

// Source says where LoadData found its snapshot
type Source string

const (
	SourceRemote Source = "remote"
	SourceLocal  Source = "local"
)

// LoadResult is the outcome of LoadData. Data is nil when neither side has
// anything stored.
type LoadResult struct {
	Data   *types.AppData
	Source Source
	// RemoteEmpty is set when a signed-in user has no remote data
	RemoteEmpty bool
}

// SaveOptions select which side of a save runs
type SaveOptions struct {
	CloudOnly       bool
	LocalOnly       bool
	PreferencesOnly bool
}

// PreferencesSaver receives preferences-only saves, typically a throttled
// entity syncer
type PreferencesSaver interface {
	SavePreferences(bundle types.PreferencesBundle)
}

// Deps are the collaborators of a Service. Backend and Sessions are nil when
// no remote is configured.
type Deps struct {
	Local    storage.SnapshotStore
	Queue    storage.Queue
	Backend  remote.Backend
	Sessions remote.SessionSource
	Broker   *events.Broker
	Errors   *apperr.Handler
	Clock    clockwork.Clock
}

// Service decides where snapshots are read from and written to, and tracks
// the resulting sync status
type Service struct {
	deps   Deps
	logger zerolog.Logger

	mu      sync.RWMutex
	state   State
	offline bool
	user    *types.User
	prefs   PreferencesSaver
}

// New creates a sync service in the local state
func New(deps Deps) *Service {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	metrics.SetSyncStatus(string(StatusLocal))
	return &Service{
		deps:   deps,
		logger: log.WithComponent("syncer"),
		state:  State{Status: StatusLocal},
	}
}

// SetPreferencesSaver routes preferences-only saves through p
func (s *Service) SetPreferencesSaver(p PreferencesSaver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefs = p
}

// RemoteEnabled reports whether a remote backend is configured
func (s *Service) RemoteEnabled() bool {
	return s.deps.Backend != nil
}

// State returns the current sync state
func (s *Service) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsOffline reports whether the service was told the network is gone
func (s *Service) IsOffline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.offline
}

// User returns the signed-in user resolved by the last load, or nil
func (s *Service) User() *types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID returns the id of the signed-in user, or ""
func (s *Service) UserID() string {
	if u := s.User(); u != nil {
		return u.ID
	}
	return ""
}

// LoadData returns the freshest snapshot available. The local copy is the
// fallback for every remote outcome other than success, so the caller always
// gets something when anything was ever saved. The returned error is only a
// local storage failure.
func (s *Service) LoadData(ctx context.Context) (LoadResult, error) {
	local, localErr := s.loadLocal()
	fallback := LoadResult{Data: local, Source: SourceLocal}

	if s.deps.Backend == nil {
		s.setStatus(StatusLocal, "")
		return fallback, localErr
	}
	if s.IsOffline() {
		s.setStatus(StatusOffline, "")
		return fallback, localErr
	}

	s.setStatus(StatusSyncing, "")

	user, err := s.resolveUser(ctx)
	if err != nil {
		s.fail(apperr.Auth("resolve_session", err))
		return fallback, localErr
	}
	if user == nil {
		s.setStatus(StatusLocal, "")
		return fallback, localErr
	}

	timer := metrics.NewTimer()
	data, err := s.deps.Backend.LoadAll(ctx, user.ID)
	metrics.TrackSync("load_all", err)
	if err != nil {
		s.fail(apperr.Sync("load_all", err))
		return fallback, localErr
	}
	if data == nil {
		s.logger.Info().Str("user_id", user.ID).Bool("local_snapshot", local != nil).Msg("Remote has no data for user, using local snapshot")
		s.setStatus(StatusLocal, "")
		fallback.RemoteEmpty = true
		return fallback, localErr
	}

	if err := s.deps.Local.SaveSnapshot(data); err != nil {
		s.handle(apperr.Storage("save_snapshot", err))
	}
	s.setStatus(StatusSynced, "")
	s.logger.Debug().Str("user_id", user.ID).Dur("took", timer.Duration()).Int("goals", len(data.Goals)).Msg("Loaded remote snapshot")
	return LoadResult{Data: data, Source: SourceRemote}, nil
}

// SaveData writes data locally unless CloudOnly is set, then to the remote
// unless LocalOnly is set. Remote failures are reported through the status
// and the queue, never returned; the error is only a local write failure.
func (s *Service) SaveData(ctx context.Context, data *types.AppData, opts SaveOptions) error {
	if data == nil {
		return errors.New("cannot save nil data")
	}

	var localErr error
	if !opts.CloudOnly {
		if err := s.deps.Local.SaveSnapshot(data); err != nil {
			localErr = apperr.Storage("save_snapshot", err)
			s.handle(localErr)
		}
	}

	if opts.LocalOnly {
		return localErr
	}
	if s.deps.Backend == nil {
		s.setStatus(StatusLocal, "")
		return localErr
	}

	// Offline saves are queued for the last known user without touching
	// the session source
	if s.IsOffline() {
		if s.User() != nil {
			if opts.PreferencesOnly {
				s.enqueue(storage.OpPreferencesSave, storage.KindPreferences, storage.PreferencesID, data.PreferencesBundle(), apperr.ErrOffline)
			} else {
				s.enqueueSnapshot(data, apperr.ErrOffline)
			}
		}
		s.setStatus(StatusOffline, "")
		return localErr
	}

	user, err := s.currentUser(ctx)
	if err != nil {
		s.fail(apperr.Auth("resolve_session", err))
		return localErr
	}
	if user == nil {
		s.setStatus(StatusLocal, "")
		return localErr
	}

	if opts.PreferencesOnly {
		s.mu.RLock()
		prefs := s.prefs
		s.mu.RUnlock()
		if prefs != nil {
			prefs.SavePreferences(data.PreferencesBundle())
			return localErr
		}

		s.setStatus(StatusSyncing, "")
		err := s.deps.Backend.SavePreferences(ctx, user.ID, data.PreferencesBundle())
		metrics.TrackSync("save_preferences", err)
		if err != nil {
			s.fail(apperr.Sync("save_preferences", err))
			s.enqueue(storage.OpPreferencesSave, storage.KindPreferences, storage.PreferencesID, data.PreferencesBundle(), err)
			return localErr
		}
		s.setStatus(StatusSynced, "")
		return localErr
	}

	s.setStatus(StatusSyncing, "")
	err = s.deps.Backend.SaveAll(ctx, user.ID, data)
	metrics.TrackSync("save_all", err)
	if err != nil {
		s.fail(apperr.Sync("save_all", err))
		s.enqueueSnapshot(data, err)
		return localErr
	}
	s.setStatus(StatusSynced, "")
	return localErr
}

// ForceSync reloads from the remote and, on success, publishes the fresh
// snapshot as a force-sync-complete event
func (s *Service) ForceSync(ctx context.Context) (*types.AppData, error) {
	res, err := s.LoadData(ctx)

	st := s.State()
	switch st.Status {
	case StatusSynced:
		s.publish(&events.Event{
			Type:    events.EventSyncForceComplete,
			Message: "Force sync complete",
			Payload: res.Data,
		})
		return res.Data, nil
	case StatusError:
		return res.Data, apperr.Sync("force_sync", errors.New(st.Error))
	case StatusOffline:
		return res.Data, apperr.Network("force_sync", apperr.ErrOffline)
	default:
		return res.Data, err
	}
}

// SetOffline records that the network is unavailable
func (s *Service) SetOffline() {
	s.mu.Lock()
	was := s.offline
	s.offline = true
	s.mu.Unlock()

	s.setStatus(StatusOffline, "")
	if !was {
		s.logger.Warn().Msg("Remote unreachable, switching to offline mode")
		s.publish(&events.Event{Type: events.EventConnectionOffline, Message: "Connection lost"})
	}
}

// SetOnline clears the offline flag. The caller re-syncs with ForceSync.
func (s *Service) SetOnline() {
	s.mu.Lock()
	was := s.offline
	s.offline = false
	s.mu.Unlock()

	if was {
		s.setStatus(StatusLocal, "")
		s.logger.Info().Msg("Remote reachable again")
		s.publish(&events.Event{Type: events.EventConnectionOnline, Message: "Connection restored"})
	}
}

// Reset forgets the signed-in user and sync history
func (s *Service) Reset() {
	s.updateState(func(st *State) {
		s.user = nil
		*st = State{Status: StatusLocal}
	})
}

func (s *Service) loadLocal() (*types.AppData, error) {
	data, err := s.deps.Local.LoadSnapshot()
	if err != nil {
		ae := apperr.Storage("load_snapshot", err)
		s.handle(ae)
		return nil, ae
	}
	return data, nil
}

// resolveUser asks the session source again and caches the answer
func (s *Service) resolveUser(ctx context.Context) (*types.User, error) {
	if s.deps.Sessions == nil {
		return nil, nil
	}
	user, err := s.deps.Sessions.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	return user, nil
}

func (s *Service) currentUser(ctx context.Context) (*types.User, error) {
	if u := s.User(); u != nil {
		return u, nil
	}
	return s.resolveUser(ctx)
}

// enqueueSnapshot queues a full upload, replacing any older one since only
// the newest snapshot matters
func (s *Service) enqueueSnapshot(data *types.AppData, cause error) {
	if s.deps.Queue == nil {
		return
	}
	items, err := s.deps.Queue.ListQueue()
	if err != nil {
		s.handle(apperr.Storage("list_queue", err))
		return
	}
	for _, item := range items {
		if item.Type != storage.OpSnapshotSave {
			continue
		}
		if err := s.deps.Queue.DeleteQueueItem(item.ID); err != nil {
			s.logger.Warn().Err(err).Uint64("item_id", item.ID).Msg("Failed to drop superseded snapshot")
		}
	}
	s.enqueue(storage.OpSnapshotSave, storage.KindSnapshot, "", data, cause)
}

func (s *Service) enqueue(op storage.QueueOp, kind, id string, payload any, cause error) {
	if s.deps.Queue == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("op", string(op)).Msg("Failed to encode queue item")
		return
	}

	now := s.deps.Clock.Now()
	item := &storage.QueueItem{
		Type:      op,
		Kind:      kind,
		EntityID:  id,
		UserID:    s.UserID(),
		Data:      raw,
		LastError: cause.Error(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.deps.Queue.Enqueue(item); err != nil {
		s.handle(apperr.Storage("enqueue", err))
		return
	}
	s.publish(&events.Event{
		Type:     events.EventQueueEnqueued,
		Message:  fmt.Sprintf("Queued %s", op),
		Metadata: map[string]string{"op": string(op)},
		Payload:  item,
	})
}

func (s *Service) fail(err *apperr.Error) {
	s.handle(err)
	s.setStatus(StatusError, err.Err.Error())
}

func (s *Service) handle(err error) {
	if s.deps.Errors != nil {
		s.deps.Errors.Handle(err, map[string]string{"component": "syncer"})
		return
	}
	s.logger.Warn().Err(err).Msg("Sync error")
}

// setStatus moves to status. Entering synced stamps LastSync; every other
// state keeps it.
func (s *Service) setStatus(status Status, msg string) {
	s.updateState(func(st *State) {
		st.Status = status
		st.Error = msg
		if status == StatusSynced {
			st.LastSync = s.deps.Clock.Now()
		}
	})
}

// updateState applies fn to the state under mu, then reports the change
// outside the lock
func (s *Service) updateState(fn func(*State)) {
	s.mu.Lock()
	prev := s.state
	fn(&s.state)
	next := s.state
	s.mu.Unlock()

	metrics.SetSyncStatus(string(next.Status))
	if prev == next {
		return
	}

	s.logger.Debug().Str("status", string(next.Status)).Str("error", next.Error).Msg("Sync status changed")
	meta := map[string]string{"status": string(next.Status)}
	if next.Error != "" {
		meta["error"] = next.Error
	}
	s.publish(&events.Event{
		Type:     events.EventSyncStatus,
		Message:  string(next.Status),
		Metadata: meta,
		Payload:  next,
	})
}

func (s *Service) publish(e *events.Event) {
	if s.deps.Broker != nil {
		s.deps.Broker.Publish(e)
	}
}
