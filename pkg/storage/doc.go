/*
Package storage provides the local durable state of a Verdant installation,
backed by BoltDB.

One database file, <dataDir>/verdant.db, holds three buckets:

	┌──────────────────── verdant.db ──────────────────────────┐
	│                                                            │
	│  snapshot     <storage key>  → AppData JSON                │
	│  sync_queue   big-endian seq → QueueItem JSON              │
	│  dirty        kind:id        → DirtyKey JSON               │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

The snapshot bucket is the local copy written on every save that is not
cloud-only. It holds exactly one value under a fixed key, shaped like
types.AppData, so the last write always wins.

The sync_queue bucket is the replay log for remote writes that failed. Ids
come from the bucket sequence, so ListQueue returns items oldest first and the
reconciler replays them in the order they failed.

The dirty bucket records entities edited locally and not yet confirmed by the
remote. Entity sync marks an entity dirty when a save is scheduled and clean
when the remote write succeeds.

All reads use db.View and all writes db.Update, so each call is its own
transaction. BoltStore satisfies SnapshotStore, Queue and DirtyTracker; callers
depend on the narrow interface they need.
*/
package storage
