/*
Package entitysync writes individual goals, brain-dump entries and the
preferences bundle to the remote without sending the whole snapshot.

Edits arrive in bursts (typing a title, dragging a progress slider), so each
write path is rate limited:

	SaveGoal(g)         ──▶ KeyedDebouncer  2s per goal id  ──┐
	SaveBrainDump(e)    ──▶ KeyedDebouncer  1s per entry id ──┼──▶ run ──▶ remote.Backend
	SavePreferences(b)  ──▶ Throttler       leading+trailing ─┘      │
	                                                                   ├─ ok:   dirty.MarkClean
	                                                                   └─ fail: queue.Enqueue

A debouncer delivers only the last call after the delay has passed with no
new call. A throttler runs the first call immediately and folds every call
made during the window into one trailing call carrying the newest value.

Timers come from a clockwork.Clock so tests drive time with a fake clock.
Timer callbacks run on their own goroutines.

# Durability

Every scheduled write marks its entity dirty in the local store before the
timer starts. A successful write marks it clean. A failed or offline write is
appended to the sync queue and replayed later by the reconciler through
Replay, which never re-queues.

The Force variants skip the timers, cancel any pending write for the same
entity and return the remote error to the caller.
*/
package entitysync
