/*
Package controller is the application core. It owns the in-memory snapshot
and routes every read and write through the cache, the local store and the
sync layers.

# Startup

	Init
	 │
	 ├─ syncer.LoadData ──▶ remote snapshot, else local, else defaults
	 ├─ datastore.SetData
	 ├─ signed in? ──▶ start cache sweeper, reconciler, force-sync watcher
	 ├─ migrate + repair shape
	 ├─ save:
	 │     remote empty + signed in  ──▶ full upload
	 │     migrated or repaired      ──▶ preferences-only (local-only when anonymous)
	 │     fresh defaults            ──▶ local-only
	 ├─ derive UI state from preferences
	 └─ warm cache (current month, stats)

# Writes

UpdateData validates the merged snapshot before committing. A patch that only
touches preferences, analytics or streak is synced on the throttled
preferences path; any other patch triggers a full save.

SaveGoal and AddBrainDump commit locally, write the local snapshot and hand
the entity to entitysync, which pushes it after the debounce delay. The
Force variants push immediately and return the remote error. DeleteGoal also
deletes goals whose ParentID is the removed goal.

# Reads

GoalsForMonth and Stats are cached under "goals:YYYY-MM" and "stats:summary".
Every goal mutation drops both.

# Sessions

Cleanup flushes pending entity writes, stops background services and clears
the cache. Logout also drops the in-memory snapshot and the cached user; the
local snapshot stays on disk for the next start.
*/
package controller
