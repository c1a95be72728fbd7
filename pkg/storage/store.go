package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/cuemby/verdant/pkg/types"
)

// ErrQueueItemNotFound is returned when a queue item id is unknown
var ErrQueueItemNotFound = errors.New("queue item not found")

// SnapshotStore is the local durable copy of AppData, stored under one key
type SnapshotStore interface {
	// LoadSnapshot returns nil with no error when nothing has been saved
	LoadSnapshot() (*types.AppData, error)
	SaveSnapshot(data *types.AppData) error
	ClearSnapshot() error
}

// Queue is the durable log of remote writes awaiting replay
type Queue interface {
	Enqueue(item *QueueItem) error
	ListQueue() ([]*QueueItem, error)
	UpdateQueueItem(item *QueueItem) error
	DeleteQueueItem(id uint64) error
	QueueLen() (int, error)
}

// DirtyTracker records entities with local changes the remote has not seen
type DirtyTracker interface {
	MarkDirty(kind, id string) error
	MarkClean(kind, id string) error
	IsDirty(kind, id string) (bool, error)
	ListDirty() ([]DirtyKey, error)
}

// Store is everything kept in the local database
type Store interface {
	SnapshotStore
	Queue
	DirtyTracker
	Close() error
}

// QueueOp names the remote write a queue item replays
type QueueOp string

const (
	OpGoalSave        QueueOp = "goal.save"
	OpGoalDelete      QueueOp = "goal.delete"
	OpBrainDumpSave   QueueOp = "braindump.save"
	OpBrainDumpDelete QueueOp = "braindump.delete"
	OpPreferencesSave QueueOp = "preferences.save"
	OpSnapshotSave    QueueOp = "snapshot.save"
)

// Entity kinds used by the dirty tracker and queue items
const (
	KindGoal        = "goal"
	KindBrainDump   = "braindump"
	KindPreferences = "preferences"
	KindSnapshot    = "snapshot"

	// PreferencesID is the entity id of the single preferences record
	PreferencesID = "profile"
)

// QueueItem is one failed remote write, owned by the user who made it
type QueueItem struct {
	ID        uint64          `json:"id"`
	Type      QueueOp         `json:"type"`
	Kind      string          `json:"kind"`
	EntityID  string          `json:"entityId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"lastError,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// DirtyKey identifies a dirty entity
type DirtyKey struct {
	Kind string    `json:"kind"`
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
}
