/*
Package cache provides a TTL key/value cache for derived reads such as the
goals of one month or aggregated statistics.

The cache is independent of the data store: it holds possibly stale copies,
never mutates the snapshot and is never read through by it. Writers that
change the snapshot invalidate the affected keys.

Keys are namespaced by prefix, and the prefix picks the default TTL:

	goals:*         5m
	preferences:*   30m
	achievements:*  60m
	braindump:*     2m
	reviews:*       15m
	stats:*         10m
	short:*         1m
	long:*          2h

Expiry is lazy on Get and proactive through Sweep, which Start runs on an
interval so keys nobody reads again do not accumulate.

	c := cache.New()
	c.Start()
	defer c.Stop()

	c.Set("goals:2025-03", goals, 0)
	if goals, ok := cache.GetAs[[]types.Goal](c, "goals:2025-03"); ok {
		...
	}
	c.InvalidatePattern(regexp.MustCompile(`^goals:`))
*/
package cache
