package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/verdant/pkg/apperr"
	"github.com/cuemby/verdant/pkg/cache"
	"github.com/cuemby/verdant/pkg/config"
	"github.com/cuemby/verdant/pkg/controller"
	"github.com/cuemby/verdant/pkg/datastore"
	"github.com/cuemby/verdant/pkg/entitysync"
	"github.com/cuemby/verdant/pkg/events"
	"github.com/cuemby/verdant/pkg/log"
	"github.com/cuemby/verdant/pkg/metrics"
	"github.com/cuemby/verdant/pkg/reconciler"
	"github.com/cuemby/verdant/pkg/remote"
	"github.com/cuemby/verdant/pkg/storage"
	"github.com/cuemby/verdant/pkg/syncer"
	"github.com/cuemby/verdant/pkg/types"
)

// app is one fully wired controller and everything it owns
type app struct {
	cfg      *config.Config
	db       *storage.BoltStore
	backend  remote.Backend
	pinger   remote.Backend
	broker   *events.Broker
	errors   *apperr.Handler
	sync     *syncer.Service
	entities *entitysync.Syncer
	rec      *reconciler.Reconciler
	ctrl     *controller.Controller

	closers []func()
}

// loadConfig reads the config file named by --config and applies the
// command line overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}

	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
		Output:     os.Stderr,
	})
	return cfg, nil
}

// openApp wires the controller from configuration and runs Init
func openApp(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()

	a := &app{cfg: cfg}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context) error {
	cfg := a.cfg

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := storage.NewBoltStore(cfg.DataDir, cfg.StorageKey)
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentLocalStore, false, err.Error())
		return err
	}
	a.db = db
	a.closers = append(a.closers, func() { db.Close() })
	metrics.RegisterComponent(metrics.ComponentLocalStore, true, "")

	a.broker = events.NewBroker()
	a.broker.Start()
	a.closers = append(a.closers, a.broker.Stop)

	a.errors = apperr.NewHandler(apperr.HandlerOptions{
		Reporter: apperr.ReporterFunc(func(e apperr.Entry) {
			logger := log.WithComponent("reporter")
			logger.Warn().
				Str("category", string(e.Category)).
				Str("severity", e.Severity.String()).
				Interface("context", e.Context).
				Msg(e.Message)
		}),
		MinSeverity: apperr.SeverityHigh,
		Broker:      a.broker,
	})

	sessions, err := a.openRemote(ctx)
	if err != nil {
		metrics.RegisterComponent(metrics.ComponentRemote, false, err.Error())
		return err
	}

	a.sync = syncer.New(syncer.Deps{
		Local:    db,
		Queue:    db,
		Backend:  a.backend,
		Sessions: sessions,
		Broker:   a.broker,
		Errors:   a.errors,
	})
	a.entities = entitysync.New(entitysync.Deps{
		Backend: a.backend,
		Conn:    a.sync,
		Queue:   db,
		Dirty:   db,
		Errors:  a.errors,
		Broker:  a.broker,
	}, entitysync.Config{
		GoalDebounce:        cfg.Sync.GoalDebounce,
		BrainDumpDebounce:   cfg.Sync.BrainDumpDebounce,
		PreferencesThrottle: cfg.Sync.PreferencesThrottle,
	})
	a.rec = reconciler.NewReconciler(reconciler.Config{
		Interval:    cfg.Sync.QueueInterval,
		MaxAttempts: cfg.Sync.MaxAttempts,
	}, reconciler.Deps{
		Queue:    db,
		Replayer: a.entities,
		Conn:     a.sync,
		Errors:   a.errors,
		Broker:   a.broker,
	})

	a.ctrl = controller.New(controller.Deps{
		Store:      datastore.New(datastore.WithStorageKey(cfg.StorageKey)),
		Sync:       a.sync,
		Entities:   a.entities,
		Cache:      cache.New(cache.WithSweepInterval(cfg.Cache.SweepInterval)),
		Reconciler: a.rec,
		Queue:      db,
		Dirty:      db,
		Broker:     a.broker,
		Errors:     a.errors,
	})
	a.closers = append(a.closers, a.ctrl.Cleanup)

	if err := a.ctrl.Init(ctx); err != nil {
		metrics.RegisterComponent(metrics.ComponentDataStore, false, err.Error())
		return err
	}
	metrics.RegisterComponent(metrics.ComponentDataStore, true, "")
	metrics.RegisterComponent(metrics.ComponentCache, true, "")
	return nil
}

// openRemote builds the backend and session source for the configured
// driver. Both stay nil for the none driver.
func (a *app) openRemote(ctx context.Context) (remote.SessionSource, error) {
	cfg := a.cfg.Remote
	logger := log.WithComponent("remote")

	var sessions remote.SessionSource
	switch cfg.Driver {
	case config.DriverNone:
		return nil, nil

	case config.DriverMemory:
		a.pinger = remote.NewMemoryBackend()
		userID := cfg.UserID
		if userID == "" {
			userID = "local"
		}
		sessions = remote.StaticSession{User: &types.User{ID: userID}}

	case config.DriverMongo:
		mb, err := remote.NewMongoBackend(ctx, cfg.MongoURI, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { mb.Close(context.Background()) })
		if err := mb.EnsureIndexes(ctx); err != nil {
			logger.Warn().Err(err).Msg("Failed to ensure indexes")
		}
		a.pinger = mb

		switch {
		case cfg.RedisURL != "":
			rs, err := remote.NewRedisSessions(cfg.RedisURL, cfg.SessionToken)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, func() { rs.Close() })
			sessions = rs
		case cfg.UserID != "":
			sessions = remote.StaticSession{User: &types.User{ID: cfg.UserID}}
		default:
			logger.Warn().Msg("No session configured, remote writes are disabled")
		}

	default:
		return nil, fmt.Errorf("unknown remote driver: %q", cfg.Driver)
	}

	a.backend = remote.Instrument(a.pinger)
	logger.Info().Str("driver", cfg.Driver).Bool("session", sessions != nil).Msg("Remote backend configured")
	return sessions, nil
}

// Close flushes pending writes and releases resources in reverse order
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
