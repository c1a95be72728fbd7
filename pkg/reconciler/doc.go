/*
Package reconciler drains the offline sync queue.

Remote writes that fail, or that are attempted while offline, are stored in
the local sync queue. The reconciler replays them in insertion order on a
fixed interval and whenever Trigger is called (reconnect, an explicit
"process queue" command).

# Architecture

	┌────────────────────────────────────────────────────────────┐
	│                  Reconciliation Loop                       │
	│          (every Interval, or on Trigger)                   │
	└────────────────┬───────────────────────────────────────────┘
	                 │
	                 ▼
	         ┌───────────────┐
	         │  ListQueue    │  oldest first
	         └──────┬────────┘
	                │  for each item
	                ▼
	         ┌───────────────┐      offline / no session
	         │   Replay      │ ───────────────────────────▶ stop pass
	         └──────┬────────┘
	          ok    │    failed
	     ┌──────────┴──────────┐
	     ▼                     ▼
	  delete item         attempts++
	                           │
	              attempts < MaxAttempts ──▶ update item
	              attempts = MaxAttempts ──▶ delete, report, queue.dropped

An offline or no-session failure ends the pass without charging an attempt,
so a long outage never exhausts an item's retries.

# Usage

	rec := reconciler.NewReconciler(reconciler.Config{
		Interval:    30 * time.Second,
		MaxAttempts: 5,
	}, reconciler.Deps{
		Queue:    store,
		Replayer: entitySyncer,
		Conn:     syncService,
		Errors:   errHandler,
		Broker:   broker,
	})
	rec.Start()
	defer rec.Stop()

	// After reconnecting
	rec.Trigger()

ProcessQueue runs a single pass synchronously and returns a Result; it is
what the CLI's "queue process" command calls.
*/
package reconciler
