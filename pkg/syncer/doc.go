/*
Package syncer moves whole snapshots between the local bbolt copy and the
remote backend and tracks the sync status shown to the user.

# Status

	         load/save with remote configured
	local ────────────────────────────────▶ syncing
	  ▲                                      │  │
	  │ no remote, no session, remote empty  │  │ remote ok
	  └──────────────────────────────────────┘  ▼
	                                   error ◀── synced
	                                (remote failed;
	                                 LastSync kept)

	any ──SetOffline──▶ offline ──SetOnline──▶ local ──ForceSync──▶ synced

Every transition publishes a sync.status event carrying the new State and
updates the verdant_sync_status gauge.

# Loading

LoadData always reads the local snapshot first. It is returned whenever the
remote cannot answer, so a failed or unauthenticated load still yields data.
A successful remote load overwrites the local copy.

# Saving

SaveData writes locally unless CloudOnly is set and remotely unless LocalOnly
is set. PreferencesOnly sends only preferences, analytics and streak, through
the PreferencesSaver when one is installed. A failed or offline full save
queues a snapshot.save item; only the newest queued snapshot is kept.
*/
package syncer
