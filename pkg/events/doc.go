/*
Package events provides an in-memory event broker for Verdant's status and
view notifications.

Components that change state the UI cares about (the sync service, the
controller's view state, the replay queue) publish events here instead of
holding references to their listeners.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────────┐
	│                                                            │
	│  Publisher → Event Channel (buffer: 100)                   │
	│       ↓                                                    │
	│  Broadcast Loop (Start/Stop)                               │
	│       ↓                                                    │
	│  Subscriber Channels (buffer: 50 each)                     │
	│                                                            │
	└────────────────────────────────────────────────────────────┘

# Event Types

	sync.status          sync status changed; Payload is the new status string
	sync.force_complete  a forced sync finished
	data.changed         a snapshot was committed
	view.changed         view mode, date, zoom or selection changed
	queue.enqueued       a failed write was queued for replay
	queue.replayed       a queued write was delivered
	queue.dropped        a queued write exceeded its attempts
	connection.online    the remote became reachable
	connection.offline   the remote became unreachable
	error.reported       an error passed the reporter's severity filter

# Delivery

Publish never blocks. If the broker queue is full, or the broker has been
stopped, the event is dropped. During broadcast a subscriber whose buffer is
full misses the event; other subscribers are unaffected. Events carry a UUID
and a timestamp, filled in by Publish when unset.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			if ev.Type == events.EventSyncStatus {
				fmt.Println("sync:", ev.Payload)
			}
		}
	}()

	broker.Publish(&events.Event{
		Type:    events.EventSyncStatus,
		Message: "synced",
		Payload: "synced",
	})
*/
package events
