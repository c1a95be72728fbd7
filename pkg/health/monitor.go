package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
)

// Pinger is anything that can answer a cheap round trip, such as a remote
// backend
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes the remote through its own client
type PingChecker struct {
	Pinger Pinger
}

// Check calls Ping
func (p PingChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if err := p.Pinger.Ping(ctx); err != nil {
		return Result{Message: "ping failed: " + err.Error(), CheckedAt: start, Duration: time.Since(start)}
	}
	return Result{Healthy: true, Message: "ping ok", CheckedAt: start, Duration: time.Since(start)}
}

// Type returns the probe type
func (p PingChecker) Type() CheckType {
	return CheckTypePing
}

// Hooks are called when the remote changes reachability. Either may be nil.
type Hooks struct {
	OnOffline func(Result)
	OnOnline  func(Result)
}

// Monitor probes the remote on an interval and reports transitions
type Monitor struct {
	checker Checker
	config  Config
	hooks   Hooks
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu     sync.Mutex
	status *Status

	started  atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewMonitor creates a monitor. A nil clock uses the real clock.
func NewMonitor(checker Checker, config Config, hooks Hooks, clock clockwork.Clock) *Monitor {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Retries <= 0 {
		config.Retries = def.Retries
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Monitor{
		checker: checker,
		config:  config,
		hooks:   hooks,
		clock:   clock,
		logger:  log.WithComponent("health"),
		status:  NewStatus(),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins probing in the background
func (m *Monitor) Start() {
	if m.started.CompareAndSwap(false, true) {
		go m.run()
	}
}

// Stop stops probing and waits for an in-flight probe
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.started.Load() {
			<-m.done
		}
	})
}

func (m *Monitor) run() {
	defer close(m.done)

	ticker := m.clock.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.CheckNow(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// CheckNow runs one probe, updates the status and fires hooks on a
// transition
func (m *Monitor) CheckNow(ctx context.Context) Result {
	ctx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	result := m.checker.Check(ctx)

	m.mu.Lock()
	changed := m.status.Update(result, m.config)
	healthy := m.status.Healthy
	failures := m.status.ConsecutiveFailures
	m.mu.Unlock()

	// Local writes keep working without the remote
	if healthy {
		metrics.RegisterComponent(metrics.ComponentRemote, true, result.Message)
	} else {
		metrics.MarkDegraded(metrics.ComponentRemote, result.Message)
	}

	if !result.Healthy {
		m.logger.Debug().Str("type", string(m.checker.Type())).Int("failures", failures).Str("message", result.Message).Msg("Remote probe failed")
	}
	if !changed {
		return result
	}

	if healthy {
		m.logger.Info().Str("message", result.Message).Msg("Remote is reachable")
		if m.hooks.OnOnline != nil {
			m.hooks.OnOnline(result)
		}
	} else {
		m.logger.Warn().Str("message", result.Message).Int("failures", failures).Msg("Remote is unreachable")
		if m.hooks.OnOffline != nil {
			m.hooks.OnOffline(result)
		}
	}
	return result
}

// Healthy reports whether the remote currently counts as reachable
func (m *Monitor) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Healthy
}

// Status returns a copy of the current status
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.status
}
