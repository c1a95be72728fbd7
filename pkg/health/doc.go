/*
Package health detects whether the remote backend is reachable.

Network loss is observed from outside the sync core: a Monitor probes the
remote on a fixed interval and, when reachability flips, calls the hooks the
application wired to the sync service (SetOffline / SetOnline plus a queue
replay on reconnect).

# Probes

Three Checker implementations are provided:

  - PingChecker: calls Ping on the configured backend (MongoDB server ping,
    or a no-op for the in-memory driver). This is the default.
  - HTTPChecker: GET against a status URL with an accepted status code range.
  - TCPChecker: dials host:port, useful for a plain database endpoint.

# State Machine

	           success                  Retries failures in a row
	┌──────────┐ ──────▶ ┌────────┐ ─────────────────────────────▶ ┌─────────┐
	│ start    │         │ online │                                │ offline │
	└──────────┘         └────────┘ ◀───────────────────────────── └─────────┘
	                                         one success

The monitor starts in the online state so the first failures do not flap
the UI. Status.Update reports whether a probe changed the state; hooks run
only on those transitions.

Every probe also updates the "remote" component of the process health
report served on /health. An unreachable remote is reported as degraded, not
unhealthy, since local writes keep working.

# Usage

	mon := health.NewMonitor(
		health.PingChecker{Pinger: backend},
		health.Config{Interval: 30 * time.Second, Timeout: 5 * time.Second, Retries: 3},
		health.Hooks{
			OnOffline: func(health.Result) { svc.SetOffline() },
			OnOnline: func(health.Result) {
				svc.SetOnline()
				rec.Trigger()
			},
		},
		nil,
	)
	mon.Start()
	defer mon.Stop()
*/
package health
