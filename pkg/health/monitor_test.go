package health

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type togglePinger struct {
	mu  sync.Mutex
	err error
}

func (p *togglePinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *togglePinger) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus()

	assert.False(t, s.Update(Result{Healthy: false}, cfg))
	assert.True(t, s.Healthy)
	assert.True(t, s.Update(Result{Healthy: false}, cfg))
	assert.False(t, s.Healthy)
	assert.Equal(t, 2, s.ConsecutiveFailures)

	assert.True(t, s.Update(Result{Healthy: true}, cfg))
	assert.True(t, s.Healthy)
	assert.Zero(t, s.ConsecutiveFailures)
	assert.False(t, s.Update(Result{Healthy: true}, cfg))
	assert.Equal(t, 2, s.ConsecutiveSuccesses)
}

func TestMonitorHooks(t *testing.T) {
	pinger := &togglePinger{}
	var offline, online atomic.Int32
	m := NewMonitor(PingChecker{Pinger: pinger}, Config{Retries: 2}, Hooks{
		OnOffline: func(Result) { offline.Add(1) },
		OnOnline:  func(Result) { online.Add(1) },
	}, nil)
	ctx := context.Background()

	assert.True(t, m.CheckNow(ctx).Healthy)
	assert.Zero(t, online.Load(), "already online")

	pinger.set(errors.New("connection refused"))
	m.CheckNow(ctx)
	assert.True(t, m.Healthy())
	res := m.CheckNow(ctx)
	assert.Equal(t, "ping failed: connection refused", res.Message)
	assert.False(t, m.Healthy())
	assert.Equal(t, int32(1), offline.Load())

	m.CheckNow(ctx)
	assert.Equal(t, int32(1), offline.Load())
	assert.Equal(t, 3, m.Status().ConsecutiveFailures)

	pinger.set(nil)
	m.CheckNow(ctx)
	assert.True(t, m.Healthy())
	assert.Equal(t, int32(1), online.Load())
}

func TestMonitorPollsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	pinger := &togglePinger{err: errors.New("down")}
	var offline atomic.Int32
	m := NewMonitor(PingChecker{Pinger: pinger}, Config{Interval: 10 * time.Second, Retries: 1}, Hooks{
		OnOffline: func(Result) { offline.Add(1) },
	}, clock)
	m.Start()
	defer m.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return offline.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.False(t, m.Healthy())
}
