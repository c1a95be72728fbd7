/*
Package datastore owns the single authoritative in-memory AppData snapshot.

Every other component reads copies and writes through Store: SetData and
Update commit a new snapshot, Clear drops it on logout. After each commit the
store notifies its listeners synchronously, outside the lock, with the new
snapshot or nil. Listeners form an unordered set; none may depend on running
before another.

# Lifecycle

	load (remote → local → CreateDefaultData)
	      │
	      ▼
	SetData ──► MigrateDataIfNeeded ──► EnsureDataShape ──► Update/Apply ... ──► Clear

MigrateDataIfNeeded runs version-gated one-way upgrades:

	v1 → v2  ensure weeklyReviews and analytics exist
	v2 → v3  rename goal status "completed" to "done"

EnsureDataShape fills anything missing from the defaults with one explicit
merge function per preference group. Values present in the snapshot win.
Both report whether they changed the snapshot so the caller can decide
whether to persist.

# Import and Export

ExportData writes the backup envelope {exportedAt, storageKey, data}.
ImportData accepts that envelope or a bare snapshot. A document that passes
validation is migrated, merged over defaults and committed. One that fails is
salvaged rather than rejected:

  - each top-level field is decoded strictly and validated on its own; fields
    that pass replace the default
  - goals are validated one by one and only the valid ones kept
  - everything left out is listed in ImportResult with its field, goal index
    and messages

Only input that is not a JSON object is refused without a commit.
*/
package datastore
