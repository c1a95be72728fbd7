/*
Package log provides structured logging for Verdant using zerolog.

The log package wraps zerolog with a package-level Logger, a single Init
function driven by configuration, and helpers that derive child loggers for
components and synced entities. Every long-lived Verdant component (cache,
data store, sync service, entity syncer, reconciler, connectivity monitor,
controller) holds its own child logger created once at construction time.

# Configuration

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})

JSON output is meant for the long-running `verdant serve` process; the console
writer (RFC3339 timestamps) is the default for interactive commands. Output
defaults to stderr so command output on stdout stays machine-readable.

# Context Loggers

	syncLog := log.WithComponent("syncer")
	syncLog.Info().Str("status", "synced").Msg("Remote load succeeded")

	goalLog := log.WithEntity(syncLog, "goal", goal.ID)
	goalLog.Warn().Err(err).Msg("Goal save failed, queued for replay")

# Levels

  - debug: status transitions, cache sweeps, debounce scheduling
  - info: lifecycle (init, cleanup, reconnect), completed syncs
  - warn: remote failures that degraded to local-only operation
  - error: local storage failures and dropped queue items
*/
package log
