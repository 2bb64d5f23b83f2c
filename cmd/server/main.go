// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/homevault/internal/api"
	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/database"
	"github.com/tomtom215/homevault/internal/engine"
	"github.com/tomtom215/homevault/internal/events"
	"github.com/tomtom215/homevault/internal/jobs"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/notify"
	"github.com/tomtom215/homevault/internal/plugin/builtin"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/runs"
	"github.com/tomtom215/homevault/internal/scheduler"
	"github.com/tomtom215/homevault/internal/supervisor"
	"github.com/tomtom215/homevault/internal/supervisor/services"
	"github.com/tomtom215/homevault/internal/tags"
)

const (
	// httpShutdownTimeout bounds draining in-flight API requests
	httpShutdownTimeout = 10 * time.Second
	// schedulerDrainTimeout bounds waiting for running jobs on shutdown
	schedulerDrainTimeout = 5 * time.Minute
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("artifacts_dir", cfg.Artifacts.BaseDir).
		Str("events_backend", cfg.Events.Backend).
		Str("timezone", cfg.Location().String()).
		Msg("Starting Homevault with supervisor tree")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Homevault exited with error")
	}
	logging.Info().Msg("Homevault stopped")
}

// run wires every component and blocks until a shutdown signal arrives.
// Deferred closes run after the supervisor tree has stopped.
func run(cfg *config.Config) error {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	registry, err := builtin.NewRegistry(&cfg.Artifacts)
	if err != nil {
		return err
	}
	store := artifact.NewStore(cfg.Artifacts.BaseDir, cfg.Location())
	eng := engine.New(tags.NewResolver(db), nil, cfg.Engine)

	bus, err := events.NewBus(cfg.Events)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()

	dispatcher, err := notify.FromConfig(cfg.Notify)
	if err != nil {
		return err
	}
	defer func() {
		if err := dispatcher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing notification sinks")
		}
	}()
	logging.Info().Int("sinks", dispatcher.Len()).Msg("Notification sinks configured")

	// Failures reach the sinks through the bus so the run path never blocks
	// on a slow webhook or broker.
	mgr, err := runs.NewManager(runs.Config{
		Store:     db,
		Executor:  eng,
		Plugins:   registry,
		Artifacts: store,
		Publisher: bus,
	})
	if err != nil {
		return err
	}

	sweeper := retention.NewSweeper(db, store, cfg.Location(), cfg.Retention.SweepConcurrency)
	sched := scheduler.New(scheduler.Config{
		Store:             db,
		Runner:            mgr,
		Sweeper:           sweeper,
		Location:          cfg.SchedulerLocation(),
		RetentionSchedule: cfg.Scheduler.RetentionSweepSchedule,
	})

	prometheus.MustRegister(metrics.NewRunStatsCollector(db))

	// Job writes through the API move triggers in the live scheduler
	handler := api.NewHandler(db, sched, sweeper)
	handler.SetJobs(jobs.NewService(db, sched))
	handler.SetRunner(mgr)
	if cfg.Server.APIToken == "" {
		logging.Warn().Msg("server.api_token is not set; API write endpoints are disabled")
	}

	router := api.NewRouter(handler, api.RouterConfig{
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		Timeout:            cfg.Server.Timeout,
		APIToken:           cfg.Server.APIToken,
	})
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		return err
	}
	tree.AddDataService(services.NewSchedulerService(sched, schedulerDrainTimeout))
	tree.AddMessagingService(events.NewNotifierService(bus, dispatcher))
	tree.AddAPIService(services.NewHTTPServerService(server, httpShutdownTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", server.Addr).Msg("Supervisor tree starting")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport() //nolint:errcheck // report is best-effort on shutdown
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
