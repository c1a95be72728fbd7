package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/verdant/pkg/config"
	"github.com/cuemby/verdant/pkg/health"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync loop with health and metrics endpoints",
	Long: `Run Verdant in the foreground.

The remote is probed on the configured interval. When it becomes
unreachable saves are queued locally; when it comes back the remote
snapshot is pulled and the queue is replayed. Prometheus metrics are served
on /metrics and health on /health and /ready.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Listen address for /metrics, /health and /ready (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		cfg.Metrics.Addr = addr
	}
	logger := log.WithComponent("serve")
	metrics.SetVersion(Version)

	fmt.Println("Starting Verdant...")
	fmt.Printf("  Data Directory: %s\n", cfg.DataDir)
	fmt.Printf("  Remote Driver: %s\n", cfg.Remote.Driver)
	fmt.Printf("  Sync Status: %s\n", a.ctrl.SyncState().Status)
	fmt.Println()

	// Also started without a session so an old queue drains once one appears
	a.rec.Start()
	defer a.rec.Stop()
	fmt.Println("✓ Reconciler started")

	if mon := newMonitor(a, cfg); mon != nil {
		mon.Start()
		defer mon.Stop()
		fmt.Println("✓ Remote monitor started")
	}

	collector := metrics.NewCollector(a.ctrl, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server error: %w", err)
		}
	}()
	fmt.Printf("✓ Metrics listening on %s\n", cfg.Metrics.Addr)
	fmt.Println()
	fmt.Println("Verdant is running. Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-cmd.Context().Done():
		fmt.Println("\nShutting down...")
	case runErr = <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", runErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("Metrics server shutdown failed")
	}

	fmt.Println("✓ Shutdown complete")
	return runErr
}

// newMonitor picks the probe for the configured remote: an explicit HTTP
// URL, then a TCP address, then a backend ping. It returns nil without a
// remote.
func newMonitor(a *app, cfg *config.Config) *health.Monitor {
	var checker health.Checker
	switch {
	case cfg.Health.URL != "":
		checker = health.NewHTTPChecker(cfg.Health.URL).WithTimeout(cfg.Health.Timeout)
	case cfg.Health.Address != "":
		checker = health.NewTCPChecker(cfg.Health.Address).WithTimeout(cfg.Health.Timeout)
	case a.pinger != nil:
		checker = health.PingChecker{Pinger: a.pinger}
	default:
		return nil
	}

	logger := log.WithComponent("serve")
	return health.NewMonitor(checker, health.Config{
		Interval: cfg.Health.Interval,
		Timeout:  cfg.Health.Timeout,
		Retries:  cfg.Health.Retries,
	}, health.Hooks{
		OnOffline: func(health.Result) {
			a.ctrl.GoOffline()
		},
		OnOnline: func(health.Result) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Health.Timeout*2)
			defer cancel()
			if err := a.ctrl.Reconnect(ctx); err != nil {
				logger.Warn().Err(err).Msg("Reconnect sync failed")
			}
		},
	}, nil)
}
