package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/entitysync"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/storage"
)

const (
	DefaultInterval    = 30 * time.Second
	DefaultMaxAttempts = 5
	cycleTimeout       = 2 * time.Minute
)

// Replayer performs the remote write recorded in a queue item
type Replayer interface {
	Replay(ctx context.Context, item *storage.QueueItem) error
}

// Connectivity reports whether the remote is reachable
type Connectivity interface {
	IsOffline() bool
}

// Config controls the replay loop
type Config struct {
	Interval    time.Duration
	MaxAttempts int
}

// Deps are the collaborators of a Reconciler. Errors and Broker are optional.
type Deps struct {
	Queue    storage.Queue
	Replayer Replayer
	Conn     Connectivity
	Errors   *apperr.Handler
	Broker   *events.Broker
	Clock    clockwork.Clock
}

// Result summarizes one pass over the queue
type Result struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Dropped   int `json:"dropped"`
	// Skipped counts items left queued for a user other than the current one
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
	// Halted is set when the pass stopped early because the remote became
	// unreachable or the session ended
	Halted bool `json:"halted"`
}

// Reconciler replays queued remote writes until the queue drains
type Reconciler struct {
	deps        Deps
	interval    time.Duration
	maxAttempts int
	logger      zerolog.Logger

	mu        sync.Mutex
	triggerCh chan struct{}

	// loopMu guards stopCh and done, which are nil while the loop is not
	// running
	loopMu sync.Mutex
	stopCh chan struct{}
	done   chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config, deps Deps) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	return &Reconciler{
		deps:        deps,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		logger:      log.WithComponent("reconciler"),
		triggerCh:   make(chan struct{}, 1),
	}
}

// Start begins the reconciliation loop. A stopped reconciler can be started
// again.
func (r *Reconciler) Start() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.run(r.stopCh, r.done)
}

// Stop stops the reconciler and waits for the current pass to finish
func (r *Reconciler) Stop() {
	r.loopMu.Lock()
	stopCh, done := r.stopCh, r.done
	r.stopCh, r.done = nil, nil
	r.loopMu.Unlock()

	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

// Running reports whether the loop is active
func (r *Reconciler) Running() bool {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	return r.stopCh != nil
}

// Trigger asks the loop to run a pass now. Triggers made while a pass is
// already pending are merged.
func (r *Reconciler) Trigger() {
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

// run is the main reconciliation loop
func (r *Reconciler) run(stopCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := r.deps.Clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.reconcile()
		case <-r.triggerCh:
			r.reconcile()
		case <-stopCh:
			return
		}
	}
}

// reconcile performs one reconciliation cycle
func (r *Reconciler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), cycleTimeout)
	defer cancel()

	timer := metrics.NewTimer()
	res, err := r.ProcessQueue(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("Queue replay failed")
		return
	}
	if res.Processed > 0 {
		r.logger.Info().
			Int("succeeded", res.Succeeded).
			Int("failed", res.Failed).
			Int("dropped", res.Dropped).
			Int("skipped", res.Skipped).
			Int("remaining", res.Remaining).
			Dur("took", timer.Duration()).
			Msg("Replayed sync queue")
	}
}

// ProcessQueue replays every queued write in order. Items that keep failing
// are dropped after MaxAttempts and reported. A pass stops at the first
// offline or no-session failure without charging an attempt.
func (r *Reconciler) ProcessQueue(ctx context.Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res Result

	items, err := r.deps.Queue.ListQueue()
	if err != nil {
		return res, fmt.Errorf("failed to list queue: %w", err)
	}

	for _, item := range items {
		if r.deps.Conn != nil && r.deps.Conn.IsOffline() {
			res.Halted = true
			break
		}
		if ctx.Err() != nil {
			res.Halted = true
			break
		}

		err := r.deps.Replayer.Replay(ctx, item)
		if errors.Is(err, apperr.ErrOffline) || errors.Is(err, entitysync.ErrNoSession) {
			res.Halted = true
			break
		}
		if errors.Is(err, entitysync.ErrOtherUser) {
			res.Skipped++
			continue
		}
		res.Processed++

		if err == nil {
			if err := r.deps.Queue.DeleteQueueItem(item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
				return res, fmt.Errorf("failed to delete queue item %d: %w", item.ID, err)
			}
			res.Succeeded++
			metrics.QueueReplayed.WithLabelValues("success").Inc()
			r.publish(events.EventQueueReplayed, item, "Replayed "+string(item.Type))
			continue
		}

		item.Attempts++
		item.LastError = err.Error()
		item.UpdatedAt = r.deps.Clock.Now()

		if item.Attempts >= r.maxAttempts {
			if err := r.drop(item, err); err != nil {
				return res, err
			}
			res.Dropped++
			continue
		}

		if err := r.deps.Queue.UpdateQueueItem(item); err != nil {
			return res, fmt.Errorf("failed to update queue item %d: %w", item.ID, err)
		}
		res.Failed++
		metrics.QueueReplayed.WithLabelValues("failure").Inc()
	}

	n, err := r.deps.Queue.QueueLen()
	if err != nil {
		return res, fmt.Errorf("failed to count queue: %w", err)
	}
	res.Remaining = n
	metrics.QueueDepth.Set(float64(n))
	return res, nil
}

// drop removes an item that exhausted its attempts. The entity stays dirty
// so the next full save carries the change.
func (r *Reconciler) drop(item *storage.QueueItem, cause error) error {
	if err := r.deps.Queue.DeleteQueueItem(item.ID); err != nil && !errors.Is(err, storage.ErrQueueItemNotFound) {
		return fmt.Errorf("failed to drop queue item %d: %w", item.ID, err)
	}
	metrics.QueueReplayed.WithLabelValues("dropped").Inc()

	r.logger.Warn().
		Err(cause).
		Uint64("item_id", item.ID).
		Str("op", string(item.Type)).
		Str("entity_id", item.EntityID).
		Int("attempts", item.Attempts).
		Msg("Dropping queued write after repeated failures")

	if r.deps.Errors != nil {
		r.deps.Errors.Handle(apperr.Sync("replay."+string(item.Type), cause), map[string]string{
			"entity_id": item.EntityID,
			"attempts":  fmt.Sprintf("%d", item.Attempts),
		})
	}
	r.publish(events.EventQueueDropped, item, "Dropped "+string(item.Type))
	return nil
}

func (r *Reconciler) publish(typ events.EventType, item *storage.QueueItem, msg string) {
	if r.deps.Broker == nil {
		return
	}
	r.deps.Broker.Publish(&events.Event{
		Type:    typ,
		Message: msg,
		Metadata: map[string]string{
			"op":        string(item.Type),
			"entity_id": item.EntityID,
		},
		Payload: item,
	})
}
