package datastore

import (
	"errors"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/schema"
	"github.com/cuemby/verdant/pkg/types"
)

// ErrNoData is returned by operations that need a loaded snapshot
var ErrNoData = errors.New("no data loaded")

var errUnchanged = errors.New("unchanged")

// Listener receives the committed snapshot, or nil after Clear. The snapshot
// is shared between listeners and must not be modified.
type Listener func(data *types.AppData)

// Store owns the authoritative in-memory snapshot
type Store struct {
	mu        sync.RWMutex
	data      *types.AppData
	listeners map[uint64]Listener
	nextID    uint64

	clock      clockwork.Clock
	validator  *schema.Validator
	storageKey string
	logger     zerolog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithClock sets the clock used for default timestamps and exports
func WithClock(clock clockwork.Clock) Option {
	return func(s *Store) { s.clock = clock }
}

// WithValidator sets the validator used by ImportData
func WithValidator(v *schema.Validator) Option {
	return func(s *Store) { s.validator = v }
}

// WithStorageKey sets the key recorded in export envelopes
func WithStorageKey(key string) Option {
	return func(s *Store) { s.storageKey = key }
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		listeners:  make(map[uint64]Listener),
		clock:      clockwork.NewRealClock(),
		validator:  schema.Default,
		storageKey: types.StorageKey,
		logger:     log.WithComponent("datastore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for every commit and returns a function that
// removes it. Listeners are called in no particular order.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	metrics.DataSubscribers.Set(float64(len(s.listeners)))

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.listeners, id)
			metrics.DataSubscribers.Set(float64(len(s.listeners)))
		})
	}
}

// Data returns a deep copy of the snapshot, or nil when none is loaded
func (s *Store) Data() *types.AppData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// HasData reports whether a snapshot is loaded
func (s *Store) HasData() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data != nil
}

// SetData replaces the snapshot with a copy of data and notifies listeners
func (s *Store) SetData(data *types.AppData) {
	s.commit(data.Clone())
}

// Update applies fn to a working copy of the snapshot and commits it. If fn
// returns an error nothing is committed. fn runs under the write lock and must
// not call back into the store.
func (s *Store) Update(fn func(data *types.AppData) error) error {
	s.mu.Lock()
	working := s.data.Clone()
	if working == nil {
		s.mu.Unlock()
		return ErrNoData
	}
	if err := fn(working); err != nil {
		s.mu.Unlock()
		return err
	}
	s.notify(s.swapLocked(working))
	return nil
}

// Apply merges a patch into the snapshot
func (s *Store) Apply(p types.Patch) error {
	return s.Update(func(d *types.AppData) error {
		ApplyPatch(d, p)
		return nil
	})
}

// Clear drops the snapshot and notifies listeners with nil
func (s *Store) Clear() {
	s.commit(nil)
}

// commit swaps in data and notifies listeners after releasing the lock, so
// listeners may call back into the store
func (s *Store) commit(data *types.AppData) {
	s.mu.Lock()
	s.notify(s.swapLocked(data))
}

// swapLocked installs data, releases mu and returns the snapshot and
// listeners to notify. Callers must hold mu.
func (s *Store) swapLocked(data *types.AppData) (*types.AppData, []Listener) {
	s.data = data
	listeners := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	snapshot := data.Clone()
	s.mu.Unlock()
	return snapshot, listeners
}

func (s *Store) notify(snapshot *types.AppData, listeners []Listener) {
	metrics.DataCommits.Inc()
	for _, fn := range listeners {
		fn(snapshot)
	}
}

// ApplyPatch copies every non-nil field of p into d
func ApplyPatch(d *types.AppData, p types.Patch) {
	if p.Goals != nil {
		d.Goals = *p.Goals
	}
	if p.Events != nil {
		d.Events = *p.Events
	}
	if p.Streak != nil {
		d.Streak = p.Streak
	}
	if p.Achievements != nil {
		d.Achievements = *p.Achievements
	}
	if p.WeeklyReviews != nil {
		d.WeeklyReviews = *p.WeeklyReviews
	}
	if p.BrainDump != nil {
		d.BrainDump = *p.BrainDump
	}
	if p.BodyDoubleHistory != nil {
		d.BodyDoubleHistory = *p.BodyDoubleHistory
	}
	if p.Preferences != nil {
		d.Preferences = p.Preferences
	}
	if p.Analytics != nil {
		d.Analytics = p.Analytics
	}
}

// EnsureDataShape repairs the loaded snapshot in place and reports whether
// anything changed. Listeners are notified only on change.
func (s *Store) EnsureDataShape() bool {
	return s.repair(func(d *types.AppData) bool {
		return EnsureShape(d, s.clock.Now())
	})
}

// MigrateDataIfNeeded upgrades the loaded snapshot to the current version and
// reports whether anything changed
func (s *Store) MigrateDataIfNeeded() bool {
	return s.repair(Migrate)
}

func (s *Store) repair(fn func(*types.AppData) bool) bool {
	changed := false
	err := s.Update(func(d *types.AppData) error {
		if !fn(d) {
			return errUnchanged
		}
		changed = true
		return nil
	})
	return err == nil && changed
}
