// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"context"
	"errors"
	"io"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/database"
	"github.com/tomtom215/homevault/internal/engine"
	"github.com/tomtom215/homevault/internal/jobs"
	"github.com/tomtom215/homevault/internal/notify"
	"github.com/tomtom215/homevault/internal/plugin/builtin"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/runs"
	"github.com/tomtom215/homevault/internal/scheduler"
	"github.com/tomtom215/homevault/internal/tags"
)

// app is the in-process wiring shared by every command
type app struct {
	cfg        *config.Config
	db         *database.DB
	manager    *runs.Manager
	sweeper    *retention.Sweeper
	sched      *scheduler.Scheduler
	jobs       *jobs.Service
	dispatcher *notify.Dispatcher
	printer    *printer
}

func newApp(cfg *config.Config, out io.Writer, jsonOutput bool) (*app, error) {
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, db: db, printer: newPrinter(out, jsonOutput, cfg.Location())}
	if err := a.wire(); err != nil {
		_ = db.Close() //nolint:errcheck // wiring error takes precedence
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	registry, err := builtin.NewRegistry(&a.cfg.Artifacts)
	if err != nil {
		return err
	}
	dispatcher, err := notify.FromConfig(a.cfg.Notify)
	if err != nil {
		return err
	}
	a.dispatcher = dispatcher

	// Without the server's event bus, failures go to the sinks directly
	var notifier runs.Notifier
	if dispatcher.Len() > 0 {
		notifier = dispatcher
	}

	store := artifact.NewStore(a.cfg.Artifacts.BaseDir, a.cfg.Location())
	a.manager, err = runs.NewManager(runs.Config{
		Store:     a.db,
		Executor:  engine.New(tags.NewResolver(a.db), nil, a.cfg.Engine),
		Plugins:   registry,
		Artifacts: store,
		Notifier:  notifier,
	})
	if err != nil {
		return err
	}

	a.sweeper = retention.NewSweeper(a.db, store, a.cfg.Location(), a.cfg.Retention.SweepConcurrency)
	a.sched = scheduler.New(scheduler.Config{
		Store:             a.db,
		Runner:            a.manager,
		Sweeper:           a.sweeper,
		Location:          a.cfg.SchedulerLocation(),
		RetentionSchedule: a.cfg.Scheduler.RetentionSweepSchedule,
	})
	// No live scheduler in the CLI; the server reloads triggers on start
	a.jobs = jobs.NewService(a.db, nil)
	return nil
}

// targetNames maps target IDs to display names for run output
func (a *app) targetNames(ctx context.Context) map[int64]string {
	targets, err := a.db.ListTargets(ctx)
	if err != nil {
		return nil
	}
	names := make(map[int64]string, len(targets))
	for _, t := range targets {
		names[t.ID] = t.Name
	}
	return names
}

func (a *app) close() error {
	var errs []error
	if a.dispatcher != nil {
		errs = append(errs, a.dispatcher.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}
