package cache

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
)

// Default TTLs by key prefix. The prefix is the part of the key before the
// first ':' ("goals:2025-03" uses the goals TTL).
var DefaultTTLs = map[string]time.Duration{
	"goals":        5 * time.Minute,
	"preferences":  30 * time.Minute,
	"achievements": 60 * time.Minute,
	"braindump":    2 * time.Minute,
	"reviews":      15 * time.Minute,
	"stats":        10 * time.Minute,
	"short":        time.Minute,
	"long":         2 * time.Hour,
}

const (
	// DefaultTTL applies to keys with an unknown prefix
	DefaultTTL = 5 * time.Minute

	// DefaultSweepInterval is how often Start evicts expired entries
	DefaultSweepInterval = 5 * time.Minute
)

type entry struct {
	data      any
	timestamp time.Time
	ttl       time.Duration
}

func (e *entry) expired(now time.Time) bool {
	return now.Sub(e.timestamp) > e.ttl
}

// Stats are the cache counters since creation or the last Clear
type Stats struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Invalidations int64
	Evictions     int64
	Size          int
}

// HitRate returns hits as a percentage of lookups, or 0 with no lookups
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Cache is a TTL key/value store for derived reads
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   Stats

	clock         clockwork.Clock
	sweepInterval time.Duration
	stopCh        chan struct{}
	logger        zerolog.Logger
}

// Option configures a Cache
type Option func(*Cache)

// WithClock sets the clock used for timestamps and the sweeper
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) { c.clock = clock }
}

// WithSweepInterval sets the interval of the periodic sweep
func WithSweepInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// New creates an empty cache
func New(opts ...Option) *Cache {
	c := &Cache{
		entries:       make(map[string]*entry),
		clock:         clockwork.NewRealClock(),
		sweepInterval: DefaultSweepInterval,
		logger:        log.WithComponent("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTLFor returns the default TTL of key
func TTLFor(key string) time.Duration {
	prefix, _, _ := strings.Cut(key, ":")
	if ttl, ok := DefaultTTLs[prefix]; ok {
		return ttl
	}
	return DefaultTTL
}

// Set stores value under key. A ttl of zero or less selects the default for
// the key's prefix.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTLFor(key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &entry{data: value, timestamp: c.clock.Now(), ttl: ttl}
	c.stats.Sets++
	metrics.CacheSets.Inc()
}

// Get returns the value under key. An expired entry is deleted and reported
// as missing.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		c.stats.Misses++
		metrics.CacheMisses.Inc()
		return nil, false
	}

	c.stats.Hits++
	metrics.CacheHits.Inc()
	return e.data, true
}

// GetAs returns the value under key if it is present and of type T
func GetAs[T any](c *Cache, key string) (T, bool) {
	var zero T
	v, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	if !ok {
		return zero, false
	}
	return t, true
}

// Has reports whether key holds a live entry without counting a lookup
func (c *Cache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.lookup(key)
	return ok
}

// lookup returns the live entry for key, evicting it if expired. Callers
// must hold mu.
func (c *Cache) lookup(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(c.clock.Now()) {
		delete(c.entries, key)
		c.stats.Evictions++
		metrics.CacheEvictions.Inc()
		return nil, false
	}
	return e, true
}

// Invalidate removes key
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.stats.Invalidations++
		metrics.CacheInvalidations.Inc()
	}
}

// InvalidatePattern removes every key matching pattern and returns how many
// were removed
func (c *Cache) InvalidatePattern(pattern *regexp.Regexp) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if pattern.MatchString(key) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Invalidations += int64(removed)
	metrics.CacheInvalidations.Add(float64(removed))
	return removed
}

// Clear removes every entry and resets the counters
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.stats = Stats{}
}

// Refresh restarts the TTL of a live entry without changing its data
func (c *Cache) Refresh(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return false
	}
	e.timestamp = c.clock.Now()
	return true
}

// Age returns how long ago key was set or refreshed
func (c *Cache) Age(key string) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookup(key)
	if !ok {
		return 0, false
	}
	return c.clock.Since(e.timestamp), true
}

// Size returns the number of stored entries, including expired ones not yet
// swept
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a copy of the counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.entries)
	return s
}

// Sweep evicts every expired entry and returns how many were removed
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Evictions += int64(removed)
	metrics.CacheEvictions.Add(float64(removed))
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed
}

// Start runs Sweep every sweep interval until Stop
func (c *Cache) Start() {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.mu.Unlock()

	ticker := c.clock.NewTicker(c.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if n := c.Sweep(); n > 0 {
					c.logger.Debug().Int("evicted", n).Msg("Swept expired cache entries")
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts the sweeper. The cache remains usable.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}
