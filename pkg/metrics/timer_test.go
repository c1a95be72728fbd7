package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(20 * time.Millisecond)

	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first)
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "test_remote_duration_seconds",
			Help:    "Test duration histogram vec",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	NewTimer().ObserveDurationVec(vec, "load_all")
	NewTimer().ObserveDurationVec(vec, "load_all")

	assert.Equal(t, 1, testutil.CollectAndCount(vec))
}

func TestSetSyncStatus(t *testing.T) {
	SetSyncStatus("offline")

	for _, s := range SyncStatuses {
		want := 0.0
		if s == "offline" {
			want = 1
		}
		assert.Equal(t, want, testutil.ToFloat64(SyncStatus.WithLabelValues(s)), s)
	}
}

type fixedSource Sample

func (f fixedSource) MetricsSample() Sample { return Sample(f) }

func TestCollectorCollect(t *testing.T) {
	c := NewCollector(fixedSource{QueueDepth: 3, DirtyEntities: 2, CacheEntries: 7, SyncStatus: "synced"}, 0)
	c.Collect()

	assert.Equal(t, 3.0, testutil.ToFloat64(QueueDepth))
	assert.Equal(t, 2.0, testutil.ToFloat64(DirtyEntities))
	assert.Equal(t, 7.0, testutil.ToFloat64(CacheEntries))
	assert.Equal(t, 1.0, testutil.ToFloat64(SyncStatus.WithLabelValues("synced")))
}
