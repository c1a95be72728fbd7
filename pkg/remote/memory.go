package remote

import (
	"context"
	"sync"

	"github.com/cuemby/verdant/pkg/types"
)

// MemoryBackend keeps remote data in process. It backs the "memory" driver
// and tests; Fail makes every call return an error until cleared.
type MemoryBackend struct {
	mu    sync.Mutex
	users map[string]*types.AppData
	calls map[string]int
	err   error
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		users: make(map[string]*types.AppData),
		calls: make(map[string]int),
	}
}

// Fail makes subsequent calls return err; nil restores normal operation
func (m *MemoryBackend) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times op was invoked
func (m *MemoryBackend) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of calls across all operations
func (m *MemoryBackend) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

// Put replaces the stored data of userID
func (m *MemoryBackend) Put(userID string, data *types.AppData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = data.Clone()
}

// Get returns a copy of the stored data of userID
func (m *MemoryBackend) Get(userID string) *types.AppData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.users[userID].Clone()
}

// begin counts op and returns the injected error. Callers must hold mu.
func (m *MemoryBackend) begin(op string) error {
	m.calls[op]++
	return m.err
}

// user returns the stored data of userID, creating it. Callers must hold mu.
func (m *MemoryBackend) user(userID string) *types.AppData {
	d, ok := m.users[userID]
	if !ok {
		d = &types.AppData{Version: types.CurrentVersion}
		m.users[userID] = d
	}
	return d
}

func (m *MemoryBackend) LoadAll(ctx context.Context, userID string) (*types.AppData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("load_all"); err != nil {
		return nil, err
	}
	return m.users[userID].Clone(), nil
}

func (m *MemoryBackend) SaveAll(ctx context.Context, userID string, data *types.AppData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("save_all"); err != nil {
		return err
	}
	m.users[userID] = data.Clone()
	return nil
}

func (m *MemoryBackend) SavePreferences(ctx context.Context, userID string, bundle types.PreferencesBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("save_preferences"); err != nil {
		return err
	}
	d := m.user(userID)
	b := (&types.AppData{Preferences: bundle.Preferences, Analytics: bundle.Analytics, Streak: bundle.Streak}).Clone()
	d.Preferences, d.Analytics, d.Streak = b.Preferences, b.Analytics, b.Streak
	return nil
}

func (m *MemoryBackend) SaveGoal(ctx context.Context, userID string, goal *types.Goal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("save_goal"); err != nil {
		return err
	}
	d := m.user(userID)
	if i := d.FindGoal(goal.ID); i >= 0 {
		d.Goals[i] = *goal
	} else {
		d.Goals = append(d.Goals, *goal)
	}
	return nil
}

func (m *MemoryBackend) DeleteGoal(ctx context.Context, userID, goalID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_goal"); err != nil {
		return err
	}
	d := m.user(userID)
	if i := d.FindGoal(goalID); i >= 0 {
		d.Goals = append(d.Goals[:i], d.Goals[i+1:]...)
	}
	return nil
}

func (m *MemoryBackend) SaveBrainDump(ctx context.Context, userID string, entry *types.BrainDumpEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("save_brain_dump"); err != nil {
		return err
	}
	d := m.user(userID)
	for i := range d.BrainDump {
		if d.BrainDump[i].ID == entry.ID {
			d.BrainDump[i] = *entry
			return nil
		}
	}
	d.BrainDump = append(d.BrainDump, *entry)
	return nil
}

func (m *MemoryBackend) DeleteBrainDump(ctx context.Context, userID, entryID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin("delete_brain_dump"); err != nil {
		return err
	}
	d := m.user(userID)
	for i := range d.BrainDump {
		if d.BrainDump[i].ID == entryID {
			d.BrainDump = append(d.BrainDump[:i], d.BrainDump[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.begin("ping")
}
