package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/verdant/pkg/types"
)

// DBFile is the database file name inside the data directory
const DBFile = "verdant.db"

var (
	// Bucket names
	bucketSnapshot  = []byte("snapshot")
	bucketSyncQueue = []byte("sync_queue")
	bucketDirty     = []byte("dirty")
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db          *bolt.DB
	path        string
	snapshotKey []byte
}

// NewBoltStore opens or creates <dataDir>/verdant.db. The snapshot is kept
// under storageKey, or types.StorageKey when empty.
func NewBoltStore(dataDir, storageKey string) (*BoltStore, error) {
	if storageKey == "" {
		storageKey = types.StorageKey
	}
	dbPath := filepath.Join(dataDir, DBFile)

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSnapshot, bucketSyncQueue, bucketDirty} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, path: dbPath, snapshotKey: []byte(storageKey)}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *BoltStore) Path() string {
	return s.path
}

// Snapshot operations

// LoadSnapshot decodes the stored snapshot. Fields that no longer decode are
// left unset for shape repair to fill from defaults.
func (s *BoltStore) LoadSnapshot() (*types.AppData, error) {
	var data *types.AppData
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSnapshot).Get(s.snapshotKey)
		if raw == nil {
			return nil
		}
		decoded, _, err := types.UnmarshalLenient(raw)
		if err != nil {
			return fmt.Errorf("failed to decode snapshot: %w", err)
		}
		data = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *BoltStore) SaveSnapshot(data *types.AppData) error {
	if data == nil {
		return s.ClearSnapshot()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Put(s.snapshotKey, raw)
	})
}

func (s *BoltStore) ClearSnapshot() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Delete(s.snapshotKey)
	})
}

// Queue operations

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func (s *BoltStore) Enqueue(item *QueueItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		item.ID = id
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		item.UpdatedAt = item.CreatedAt

		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put(itob(id), data)
	})
}

// ListQueue returns the queue oldest first
func (s *BoltStore) ListQueue() ([]*QueueItem, error) {
	var items []*QueueItem
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).ForEach(func(k, v []byte) error {
			var item QueueItem
			if err := json.Unmarshal(v, &item); err != nil {
				return err
			}
			items = append(items, &item)
			return nil
		})
	})
	return items, err
}

func (s *BoltStore) UpdateQueueItem(item *QueueItem) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		if b.Get(itob(item.ID)) == nil {
			return fmt.Errorf("%w: %d", ErrQueueItemNotFound, item.ID)
		}
		item.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(item)
		if err != nil {
			return err
		}
		return b.Put(itob(item.ID), data)
	})
}

func (s *BoltStore) DeleteQueueItem(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncQueue).Delete(itob(id))
	})
}

func (s *BoltStore) QueueLen() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSyncQueue).Stats().KeyN
		return nil
	})
	return n, err
}

// Dirty tracker operations

func dirtyKey(kind, id string) []byte {
	return []byte(kind + ":" + id)
}

func (s *BoltStore) MarkDirty(kind, id string) error {
	data, err := json.Marshal(DirtyKey{Kind: kind, ID: id, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirty).Put(dirtyKey(kind, id), data)
	})
}

func (s *BoltStore) MarkClean(kind, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirty).Delete(dirtyKey(kind, id))
	})
}

func (s *BoltStore) IsDirty(kind, id string) (bool, error) {
	var dirty bool
	err := s.db.View(func(tx *bolt.Tx) error {
		dirty = tx.Bucket(bucketDirty).Get(dirtyKey(kind, id)) != nil
		return nil
	})
	return dirty, err
}

// ListDirty returns dirty entities ordered by kind then id
func (s *BoltStore) ListDirty() ([]DirtyKey, error) {
	var keys []DirtyKey
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketDirty).ForEach(func(k, v []byte) error {
			var key DirtyKey
			if err := json.Unmarshal(v, &key); err != nil {
				kind, id, _ := strings.Cut(string(k), ":")
				key = DirtyKey{Kind: kind, ID: id}
			}
			keys = append(keys, key)
			return nil
		})
	})
	return keys, err
}
