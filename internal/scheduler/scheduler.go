// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
scheduler.go - Cron Trigger Table

The Scheduler keeps one cron entry per enabled Job and MaintenanceJob. Entry
keys are "<kind>:<id>" so the backup and maintenance id spaces never collide.

Lifecycle per key:

	unscheduled --Reschedule(enabled, valid cron)--> scheduled
	scheduled   --Reschedule(new cron)-------------> scheduled (trigger replaced)
	scheduled   --Reschedule(disabled)/Unschedule--> unscheduled

Start seeds the hidden retention maintenance job, then loads every enabled
job. A stored expression that no longer parses is skipped with event
invalid_cron instead of failing startup. Reschedule validates the
expression before touching the table, so a bad update leaves the previous
trigger in place.

Fires run on their own goroutine (robfig/cron starts one per fire). Each job
is wrapped in SkipIfStillRunning so at most one fire per key is in flight;
the engine lock is the authoritative guard for backups.
*/

//nolint:staticcheck // File documentation, not package doc
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/robfig/cron/v3"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/runs"
	"github.com/tomtom215/homevault/internal/validation"
)

// DefaultRetentionSchedule is the seeded retention sweep schedule
const DefaultRetentionSchedule = "0 3 * * *"

// Kind separates the backup and maintenance id spaces
type Kind string

const (
	KindBackup      Kind = "backup"
	KindMaintenance Kind = "maintenance"
)

// Key returns the trigger key for a job of the given kind
func Key(kind Kind, id int64) string {
	return string(kind) + ":" + strconv.FormatInt(id, 10)
}

// ParseKey splits a trigger key back into kind and id
func ParseKey(key string) (Kind, int64, error) {
	kind, raw, ok := strings.Cut(key, ":")
	if !ok {
		return "", 0, fmt.Errorf("malformed trigger key %q", key)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed trigger key %q: %w", key, err)
	}
	switch Kind(kind) {
	case KindBackup, KindMaintenance:
		return Kind(kind), id, nil
	default:
		return "", 0, fmt.Errorf("unknown trigger kind %q", kind)
	}
}

// Store is the persistence the scheduler needs
type Store interface {
	ListEnabledJobs(ctx context.Context) ([]models.Job, error)
	ListMaintenanceJobs(ctx context.Context, includeHidden bool) ([]models.MaintenanceJob, error)
	EnsureMaintenanceJob(ctx context.Context, job *models.MaintenanceJob) (*models.MaintenanceJob, error)
	GetMaintenanceJob(ctx context.Context, id int64) (*models.MaintenanceJob, error)
	CreateMaintenanceRun(ctx context.Context, run *models.MaintenanceRun) error
	FinishMaintenanceRun(ctx context.Context, run *models.MaintenanceRun) error
}

// JobRunner runs a backup job
type JobRunner interface {
	RunJob(ctx context.Context, jobID int64) (*runs.Outcome, error)
}

// Sweeper runs the system-wide retention sweep
type Sweeper interface {
	ApplyAll(ctx context.Context, dryRun bool) (*retention.SweepResult, error)
}

// Config wires a Scheduler
type Config struct {
	Store    Store
	Runner   JobRunner
	Sweeper  Sweeper
	Location *time.Location

	// RetentionSchedule is the cron used when the retention job is first
	// seeded. Later edits to the stored row win.
	RetentionSchedule string
}

// Entry is one live trigger
type Entry struct {
	Key      string    `json:"key"`
	Kind     Kind      `json:"kind"`
	ID       int64     `json:"id"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev,omitempty"`
}

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler maps enabled jobs to cron triggers
type Scheduler struct {
	cron    *cron.Cron
	log     *logging.CronLogger
	store   Store
	runner  JobRunner
	sweeper Sweeper
	loc     *time.Location
	seed    string

	mu      sync.Mutex
	entries map[string]entry
	baseCtx context.Context
	started bool

	now func() time.Time
}

// New creates a scheduler. Nothing fires until Start.
func New(cfg Config) *Scheduler {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	seed := cfg.RetentionSchedule
	if seed == "" {
		seed = DefaultRetentionSchedule
	}
	cronLog := logging.NewCronLogger()
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(validation.CronParser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
		),
		log:     cronLog,
		store:   cfg.Store,
		runner:  cfg.Runner,
		sweeper: cfg.Sweeper,
		loc:     loc,
		seed:    seed,
		entries: make(map[string]entry),
		baseCtx: context.Background(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start seeds maintenance jobs, loads every enabled job and starts the
// cron timer. ctx is the parent of every dispatched fire.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if _, err := s.store.EnsureMaintenanceJob(ctx, &models.MaintenanceJob{
		Key:         models.RetentionSweepKey,
		Name:        "Retention sweep",
		JobType:     models.MaintenanceRetention,
		Schedule:    s.seed,
		Enabled:     true,
		VisibleInUI: false,
	}); err != nil {
		return fmt.Errorf("seed retention job: %w", err)
	}

	jobs, err := s.store.ListEnabledJobs(ctx)
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	loaded := 0
	for _, job := range jobs {
		if job.IsArchive() {
			continue
		}
		if s.load(KindBackup, job.ID, job.Schedule) {
			loaded++
		}
	}

	maintenance, err := s.store.ListMaintenanceJobs(ctx, true)
	if err != nil {
		return fmt.Errorf("load maintenance jobs: %w", err)
	}
	for _, mj := range maintenance {
		if mj.Enabled && s.load(KindMaintenance, mj.ID, mj.Schedule) {
			loaded++
		}
	}

	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	s.cron.Start()

	logging.Info().
		Str("component", "scheduler").
		Int("triggers", loaded).
		Str("timezone", s.loc.String()).
		Msg("Scheduler started")
	return nil
}

// load adds a trigger at startup, logging rather than failing on a bad cron
func (s *Scheduler) load(kind Kind, id int64, spec string) bool {
	if err := s.Reschedule(kind, id, spec, true); err != nil {
		logging.Warn().
			Str("component", "scheduler").
			Str(logging.EventField, logging.EventInvalidCron).
			Str("key", Key(kind, id)).
			Str("schedule", spec).
			Err(err).
			Msg("Skipping job with invalid cron expression")
		metrics.SchedulerInvalidCron.Inc()
		return false
	}
	return true
}

// Stop halts the timer and waits for in-flight fires until ctx is done.
// The trigger table is kept, so Start may be called again.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// Reschedule brings the trigger for (kind, id) in line with the job: an
// enabled job with a valid cron gets its trigger added or replaced, a
// disabled job loses it. An invalid cron returns a models.ValidationError
// and leaves the table unchanged.
func (s *Scheduler) Reschedule(kind Kind, id int64, spec string, enabled bool) error {
	if !enabled {
		s.Unschedule(kind, id)
		return nil
	}
	if err := validation.ValidateCron(spec); err != nil {
		return err
	}
	schedule, err := validation.CronParser.Parse(spec)
	if err != nil {
		return models.NewValidationError("schedule", err.Error())
	}

	key := Key(kind, id)
	job := cron.NewChain(cron.Recover(s.log), cron.SkipIfStillRunning(s.log)).
		Then(cron.FuncJob(func() { s.dispatch(kind, id) }))

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[key]; ok {
		s.cron.Remove(old.id)
	}
	s.entries[key] = entry{id: s.cron.Schedule(schedule, job), spec: spec}
	metrics.SchedulerEntries.Set(float64(len(s.entries)))
	return nil
}

// Unschedule removes the trigger for (kind, id) if there is one
func (s *Scheduler) Unschedule(kind Kind, id int64) {
	key := Key(kind, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.entries[key]; ok {
		s.cron.Remove(old.id)
		delete(s.entries, key)
	}
	metrics.SchedulerEntries.Set(float64(len(s.entries)))
}

// Entries lists the live triggers ordered by key. Next is zero until the
// scheduler has started.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for key, e := range s.entries {
		kind, id, err := ParseKey(key)
		if err != nil {
			continue
		}
		ce := s.cron.Entry(e.id)
		next := ce.Next
		if next.IsZero() && ce.Schedule != nil {
			next = ce.Schedule.Next(s.now().In(s.loc))
		}
		out = append(out, Entry{Key: key, Kind: kind, ID: id, Schedule: e.spec, Next: next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// dispatch routes a fire by kind. It runs on the goroutine cron started for
// the fire, never on the timer goroutine.
func (s *Scheduler) dispatch(kind Kind, id int64) {
	s.mu.Lock()
	ctx := logging.ContextWithNewCorrelationID(s.baseCtx)
	s.mu.Unlock()
	metrics.RecordSchedulerFire(string(kind))

	log := logging.Ctx(ctx).With().Str("component", "scheduler").Str("key", Key(kind, id)).Logger()
	log.Debug().Msg("Trigger fired")

	switch kind {
	case KindBackup:
		out, err := s.runner.RunJob(ctx, id)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("Scheduled backup failed to run")
		case out.Started:
			log.Info().Int64("run_id", out.Run.ID).Str("status", string(out.Run.Status)).Msg("Scheduled backup finished")
		}
	case KindMaintenance:
		if _, err := s.RunMaintenance(ctx, id); err != nil {
			log.Error().Err(err).Msg("Scheduled maintenance failed")
		}
	}
}

// RunMaintenance executes one maintenance job now and records a
// MaintenanceRun with a JSON result.
func (s *Scheduler) RunMaintenance(ctx context.Context, id int64) (*models.MaintenanceRun, error) {
	mj, err := s.store.GetMaintenanceJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load maintenance job %d: %w", id, err)
	}

	run := &models.MaintenanceRun{
		MaintenanceJobID: mj.ID,
		StartedAt:        s.now(),
		Status:           models.StatusRunning,
	}
	if err := s.store.CreateMaintenanceRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create maintenance run: %w", err)
	}

	var (
		result  any
		failure error
	)
	switch mj.JobType {
	case models.MaintenanceRetention:
		sweep, err := s.sweeper.ApplyAll(ctx, false)
		switch {
		case err != nil:
			failure = err
		case len(sweep.Errors) > 0:
			failure = fmt.Errorf("retention failed for %d pair(s)", len(sweep.Errors))
		}
		if sweep != nil {
			result = sweep
		}
	default:
		failure = fmt.Errorf("unknown maintenance job type %q", mj.JobType)
	}

	run.Status = models.StatusSuccess
	if failure != nil {
		run.Status = models.StatusFailed
		result = maintenanceFailure{Error: failure.Error(), Partial: result}
	}
	if raw, err := json.Marshal(result); err == nil {
		run.Result = raw
	}
	finished := s.now()
	run.FinishedAt = &finished

	if err := s.store.FinishMaintenanceRun(context.WithoutCancel(ctx), run); err != nil {
		return run, fmt.Errorf("finish maintenance run: %w", err)
	}
	logging.Ctx(ctx).Info().
		Str("component", "scheduler").
		Str("maintenance_job", mj.Key).
		Int64("maintenance_run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("Maintenance job finished")
	return run, failure
}

type maintenanceFailure struct {
	Error   string `json:"error"`
	Partial any    `json:"partial,omitempty"`
}
