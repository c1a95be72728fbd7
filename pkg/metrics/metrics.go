package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncStatuses are the label values of the SyncStatus gauge
var SyncStatuses = []string{"local", "syncing", "synced", "error", "offline"}

var (
	// Cache metrics
	CacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_cache_hits_total",
			Help: "Total number of cache lookups that returned a live entry",
		},
	)

	CacheMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_cache_misses_total",
			Help: "Total number of cache lookups that found nothing or an expired entry",
		},
	)

	CacheSets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_cache_sets_total",
			Help: "Total number of cache writes",
		},
	)

	CacheInvalidations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_cache_invalidations_total",
			Help: "Total number of cache entries removed by invalidation",
		},
	)

	CacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_cache_evictions_total",
			Help: "Total number of expired cache entries removed",
		},
	)

	CacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdant_cache_entries",
			Help: "Current number of cache entries",
		},
	)

	// Data store metrics
	DataCommits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verdant_datastore_commits_total",
			Help: "Total number of snapshot commits",
		},
	)

	DataSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdant_datastore_subscribers",
			Help: "Current number of data-changed subscribers",
		},
	)

	// Sync metrics
	SyncOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_sync_operations_total",
			Help: "Total number of sync operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	SyncStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "verdant_sync_status",
			Help: "Current sync status (1 for the active status, 0 otherwise)",
		},
		[]string{"status"},
	)

	RemoteRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verdant_remote_request_duration_seconds",
			Help:    "Remote backend request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdant_sync_queue_depth",
			Help: "Number of failed writes waiting for replay",
		},
	)

	QueueReplayed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_sync_queue_replayed_total",
			Help: "Total number of queue items replayed by result",
		},
		[]string{"result"},
	)

	DirtyEntities = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "verdant_dirty_entities",
			Help: "Number of entities with unsynced local changes",
		},
	)

	// Error metrics
	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verdant_errors_total",
			Help: "Total number of handled errors by category and severity",
		},
		[]string{"category", "severity"},
	)
)

func init() {
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(CacheSets)
	prometheus.MustRegister(CacheInvalidations)
	prometheus.MustRegister(CacheEvictions)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(DataCommits)
	prometheus.MustRegister(DataSubscribers)
	prometheus.MustRegister(SyncOperations)
	prometheus.MustRegister(SyncStatus)
	prometheus.MustRegister(RemoteRequestDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueReplayed)
	prometheus.MustRegister(DirtyEntities)
	prometheus.MustRegister(ErrorsTotal)
}

// SetSyncStatus marks status as the active sync status
func SetSyncStatus(status string) {
	for _, s := range SyncStatuses {
		if s == status {
			SyncStatus.WithLabelValues(s).Set(1)
		} else {
			SyncStatus.WithLabelValues(s).Set(0)
		}
	}
}

// TrackSync increments the sync operation counter
func TrackSync(operation string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	SyncOperations.WithLabelValues(operation, result).Inc()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
