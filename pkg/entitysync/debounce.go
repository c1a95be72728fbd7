package entitysync

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Debouncer delays calls to fn until delay has passed without a new call.
// Only the arguments of the last call are delivered.
type Debouncer[T any] struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	delay   time.Duration
	fn      func(T)
	timer   clockwork.Timer
	pending T
	has     bool
	gen     uint64
}

// NewDebouncer creates a trailing-edge debouncer
func NewDebouncer[T any](clock clockwork.Clock, delay time.Duration, fn func(T)) *Debouncer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Debouncer[T]{clock: clock, delay: delay, fn: fn}
}

// Call records v and restarts the timer
func (d *Debouncer[T]) Call(v T) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = v
	d.has = true
	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = d.clock.AfterFunc(d.delay, func() { d.fire(gen) })
}

func (d *Debouncer[T]) fire(gen uint64) {
	d.mu.Lock()
	// A newer Call, Flush or Cancel owns the pending value
	if gen != d.gen || !d.has {
		d.mu.Unlock()
		return
	}
	v := d.take()
	d.mu.Unlock()

	d.fn(v)
}

// take clears the pending value. Caller holds mu.
func (d *Debouncer[T]) take() T {
	v := d.pending
	var zero T
	d.pending = zero
	d.has = false
	d.timer = nil
	return v
}

// Flush runs the pending call now, if there is one. It reports whether fn ran.
func (d *Debouncer[T]) Flush() bool {
	d.mu.Lock()
	if !d.has {
		d.mu.Unlock()
		return false
	}
	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	v := d.take()
	d.mu.Unlock()

	d.fn(v)
	return true
}

// Cancel drops the pending call
func (d *Debouncer[T]) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
	}
	d.take()
}

// Pending reports whether a call is waiting for its timer
func (d *Debouncer[T]) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.has
}

// KeyedDebouncer keeps an independent Debouncer per key, so edits to one
// entity never delay or swallow edits to another
type KeyedDebouncer[T any] struct {
	mu    sync.Mutex
	clock clockwork.Clock
	delay time.Duration
	fn    func(key string, v T)
	byKey map[string]*Debouncer[T]
}

// NewKeyedDebouncer creates a per-key debouncer
func NewKeyedDebouncer[T any](clock clockwork.Clock, delay time.Duration, fn func(key string, v T)) *KeyedDebouncer[T] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &KeyedDebouncer[T]{
		clock: clock,
		delay: delay,
		fn:    fn,
		byKey: make(map[string]*Debouncer[T]),
	}
}

// Call debounces v under key
func (k *KeyedDebouncer[T]) Call(key string, v T) {
	k.mu.Lock()
	d, ok := k.byKey[key]
	if !ok {
		d = NewDebouncer(k.clock, k.delay, func(v T) { k.fn(key, v) })
		k.byKey[key] = d
	}
	k.mu.Unlock()

	d.Call(v)
}

func (k *KeyedDebouncer[T]) get(key string) *Debouncer[T] {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.byKey[key]
}

func (k *KeyedDebouncer[T]) all() []*Debouncer[T] {
	k.mu.Lock()
	defer k.mu.Unlock()

	out := make([]*Debouncer[T], 0, len(k.byKey))
	for _, d := range k.byKey {
		out = append(out, d)
	}
	return out
}

// Cancel drops the pending call for key
func (k *KeyedDebouncer[T]) Cancel(key string) {
	if d := k.get(key); d != nil {
		d.Cancel()
	}
}

// FlushKey runs the pending call for key now
func (k *KeyedDebouncer[T]) FlushKey(key string) bool {
	if d := k.get(key); d != nil {
		return d.Flush()
	}
	return false
}

// Flush runs every pending call now and returns how many ran
func (k *KeyedDebouncer[T]) Flush() int {
	n := 0
	for _, d := range k.all() {
		if d.Flush() {
			n++
		}
	}
	return n
}

// Pending returns the number of keys with a call waiting
func (k *KeyedDebouncer[T]) Pending() int {
	n := 0
	for _, d := range k.all() {
		if d.Pending() {
			n++
		}
	}
	return n
}

// Stop drops every pending call and forgets all keys
func (k *KeyedDebouncer[T]) Stop() {
	for _, d := range k.all() {
		d.Cancel()
	}

	k.mu.Lock()
	k.byKey = make(map[string]*Debouncer[T])
	k.mu.Unlock()
}
