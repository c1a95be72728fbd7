package entitysync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttler runs fn at most once per window. The first call in a quiet period
// runs immediately in the caller's goroutine; calls made during the window are
// coalesced into one trailing call at the window boundary with the latest
// arguments.
type Throttler[T any] struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	window   time.Duration
	fn       func(T)
	timer    clockwork.Timer
	active   bool
	trailing bool
	pending  T
	gen      uint64
}

// NewThrottler creates a leading and trailing edge throttler
func NewThrottler[T any](clock clockwork.Clock, window time.Duration, fn func(T)) *Throttler[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Throttler[T]{clock: clock, window: window, fn: fn}
}

// Call runs fn now or schedules it for the end of the current window
func (t *Throttler[T]) Call(v T) {
	t.mu.Lock()
	if t.active {
		t.pending = v
		t.trailing = true
		t.mu.Unlock()
		return
	}
	t.openWindow()
	t.mu.Unlock()

	t.fn(v)
}

// openWindow starts a new window. Caller holds mu.
func (t *Throttler[T]) openWindow() {
	t.active = true
	t.gen++
	gen := t.gen
	t.timer = t.clock.AfterFunc(t.window, func() { t.windowEnd(gen) })
}

func (t *Throttler[T]) windowEnd(gen uint64) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	if !t.trailing {
		t.active = false
		t.timer = nil
		t.mu.Unlock()
		return
	}

	v := t.takePending()
	// The trailing call opens the next window
	t.openWindow()
	t.mu.Unlock()

	t.fn(v)
}

// takePending clears the trailing call. Caller holds mu.
func (t *Throttler[T]) takePending() T {
	v := t.pending
	var zero T
	t.pending = zero
	t.trailing = false
	return v
}

// Flush runs the trailing call now, if there is one, and closes the window
func (t *Throttler[T]) Flush() bool {
	t.mu.Lock()
	if !t.trailing {
		t.mu.Unlock()
		return false
	}
	v := t.takePending()
	t.reset()
	t.mu.Unlock()

	t.fn(v)
	return true
}

// Cancel drops the trailing call and closes the window
func (t *Throttler[T]) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.takePending()
	t.reset()
}

// reset stops the window timer. Caller holds mu.
func (t *Throttler[T]) reset() {
	t.gen++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.active = false
}

// Pending reports whether a trailing call is scheduled
func (t *Throttler[T]) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trailing
}
