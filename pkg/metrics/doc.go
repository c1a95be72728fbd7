/*
Package metrics provides Prometheus metrics and health endpoints for Verdant.

All collectors are created as package variables and registered with the
default registry in init, so importing the package is enough to expose them
through Handler.

# Metric Families

	verdant_cache_*                    hits, misses, sets, invalidations, evictions, entries
	verdant_datastore_commits_total    snapshot commits
	verdant_datastore_subscribers      live data-changed listeners
	verdant_sync_operations_total      {operation, result}
	verdant_sync_status                {status} one-hot gauge
	verdant_remote_request_duration_*  {operation} histogram
	verdant_sync_queue_depth           failed writes awaiting replay
	verdant_sync_queue_replayed_total  {result}
	verdant_dirty_entities             entities with unsynced changes
	verdant_errors_total               {category, severity}

Counters are incremented inline by the package that owns the event. Gauges
that describe state held elsewhere (queue depth, dirty entities, cache size)
are refreshed by a Collector polling a Source:

	collector := metrics.NewCollector(source, 15*time.Second)
	collector.Start()
	defer collector.Stop()

# Timing

	timer := metrics.NewTimer()
	data, err := backend.LoadAll(ctx, userID)
	timer.ObserveDurationVec(metrics.RemoteRequestDuration, "load_all")

# Health

RegisterComponent and MarkDegraded record component state. HealthHandler
reports "healthy", "degraded" or "unhealthy"; ReadyHandler only looks at the
local store and the data store; an unreachable remote only marks the process
degraded.
*/
package metrics
