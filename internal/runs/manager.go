// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
manager.go - Run Lifecycle Manager

The Manager turns engine executions into persisted history:

  - A Run row is inserted only after the engine holds the lock and has
    resolved the tag, so an overlapping fire leaves no trace in the ledger.
  - Each target gets a TargetRun inserted when its first attempt starts and
    updated once when its last attempt ends.
  - Artifact metadata comes from the plugin result, falling back to a stat
    and hash of the file on disk.
  - The Run is finished with the aggregate status: success when every
    target succeeded (or there were none), failed when every target
    failed, partial otherwise.

Finished runs are handed to the Publisher (every run) and the Notifier
(failed or partial runs only). Both are best-effort: errors are logged and
a panic in either is recovered.

Ledger writes after the work has started use a context detached from
cancellation so a shutdown mid-run still leaves terminal rows behind.
*/

//nolint:staticcheck // File documentation, not package doc
package runs

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/engine"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/plugin"
)

// Store is the persistence the manager needs
type Store interface {
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetTag(ctx context.Context, id int64) (*models.Tag, error)
	GetTarget(ctx context.Context, id int64) (*models.Target, error)
	GetTargetRun(ctx context.Context, id int64) (*models.TargetRun, error)
	GetRun(ctx context.Context, id int64) (*models.Run, error)
	CreateRun(ctx context.Context, run *models.Run) error
	FinishRun(ctx context.Context, run *models.Run) error
	CreateTargetRun(ctx context.Context, tr *models.TargetRun) error
	FinishTargetRun(ctx context.Context, tr *models.TargetRun) error
}

// Executor fans a task out over a tag's targets under a lock
type Executor interface {
	Execute(ctx context.Context, lockKey string, tagID int64, task engine.Task, opts engine.Options) (*engine.Summary, error)
	Locker() engine.Locker
}

// Plugins looks plugins up by id
type Plugins interface {
	Get(name string) (plugin.Plugin, error)
}

// Publisher receives every finished run
type Publisher interface {
	PublishRun(ctx context.Context, report *models.RunReport) error
}

// Notifier receives finished runs that failed or partially failed
type Notifier interface {
	NotifyRun(ctx context.Context, report *models.RunReport) error
}

// Config wires a Manager. Publisher and Notifier are optional.
type Config struct {
	Store     Store
	Executor  Executor
	Plugins   Plugins
	Artifacts *artifact.Store
	Publisher Publisher
	Notifier  Notifier

	// RestoreTimeout bounds a single restore call. Zero means no limit.
	RestoreTimeout time.Duration
}

// Manager records backup and restore runs
type Manager struct {
	store     Store
	executor  Executor
	plugins   Plugins
	artifacts *artifact.Store
	publisher Publisher
	notifier  Notifier

	restoreTimeout time.Duration
	now            func() time.Time
}

// Outcome is the result of a RunJob, RunTag or Restore call. Run is nil
// when Started is false.
type Outcome struct {
	Started    bool
	Run        *models.Run
	TargetRuns []models.TargetRun
	Summary    *engine.Summary
}

// NewManager creates a run lifecycle manager
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Store == nil || cfg.Executor == nil || cfg.Plugins == nil {
		return nil, fmt.Errorf("runs: store, executor and plugins are required")
	}
	if cfg.Artifacts == nil {
		return nil, fmt.Errorf("runs: artifact store is required")
	}
	return &Manager{
		store:     cfg.Store,
		executor:  cfg.Executor,
		plugins:   cfg.Plugins,
		artifacts: cfg.Artifacts,
		publisher: cfg.Publisher,
		notifier:  cfg.Notifier,

		restoreTimeout: cfg.RestoreTimeout,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// RunJob backs up every target of the job's tag. An overlapping call
// returns Outcome{Started: false} without error.
func (m *Manager) RunJob(ctx context.Context, jobID int64) (*Outcome, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("run job %d: %w", jobID, err)
	}
	if job.IsArchive() {
		return nil, models.NewValidationError("job_id", "the archive job cannot be run")
	}

	ctx = withCorrelation(ctx)
	ctx = logging.ContextWithJobID(ctx, job.ID)
	id := job.ID
	return m.backup(ctx, engine.JobLockKey(job.ID), job.TagID, &id, job.Name)
}

// RunTag backs up every target of a tag without a job. The Run has no job
// and the lock is keyed on the tag.
func (m *Manager) RunTag(ctx context.Context, tagID int64) (*Outcome, error) {
	tag, err := m.store.GetTag(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("run tag %d: %w", tagID, err)
	}
	if tag.Slug == models.ArchivedTagSlug {
		return nil, models.NewValidationError("tag_id", "the archived tag cannot be run")
	}
	return m.backup(withCorrelation(ctx), engine.TagLockKey(tag.ID), tag.ID, nil, "tag "+tag.Name)
}

// backupRun is the mutable state shared by the engine hooks of one backup
type backupRun struct {
	mu         sync.Mutex
	run        *models.Run
	names      map[int64]string
	targetRuns map[int64]*models.TargetRun
	results    map[int64]*plugin.BackupResult
}

func (m *Manager) backup(ctx context.Context, lockKey string, tagID int64, jobID *int64, label string) (*Outcome, error) {
	log := logging.Ctx(ctx).With().Str("component", "runs").Str("lock", lockKey).Logger()
	state := &backupRun{
		names:      make(map[int64]string),
		targetRuns: make(map[int64]*models.TargetRun),
		results:    make(map[int64]*plugin.BackupResult),
	}

	opts := engine.Options{
		OnStart: func(ctx context.Context, targets []models.Target) error {
			run := &models.Run{
				JobID:     jobID,
				Operation: models.OperationBackup,
				StartedAt: m.now(),
				Status:    models.StatusRunning,
			}
			if err := m.store.CreateRun(ctx, run); err != nil {
				return fmt.Errorf("create run: %w", err)
			}
			state.run = run
			for _, t := range targets {
				state.names[t.ID] = t.Name
			}
			log.Info().Int64("run_id", run.ID).Int("targets", len(targets)).Msgf("Started backup of %s", label)
			return nil
		},
		OnTargetStart: func(ctx context.Context, target models.Target) {
			tr := &models.TargetRun{
				RunID:     state.run.ID,
				TargetID:  target.ID,
				Operation: models.OperationBackup,
				StartedAt: m.now(),
				Status:    models.StatusRunning,
			}
			if err := m.store.CreateTargetRun(context.WithoutCancel(ctx), tr); err != nil {
				log.Error().Err(err).Int64("target_id", target.ID).Msg("Failed to record target run start")
			}
			state.mu.Lock()
			state.targetRuns[target.ID] = tr
			state.mu.Unlock()
		},
		OnTargetDone: func(ctx context.Context, res engine.TargetResult) {
			state.mu.Lock()
			tr := state.targetRuns[res.Target.ID]
			result := state.results[res.Target.ID]
			state.mu.Unlock()
			m.finishBackupTarget(context.WithoutCancel(ctx), tr, res, result)
		},
	}

	task := func(ctx context.Context, target models.Target) error {
		p, err := m.plugins.Get(target.Plugin)
		if err != nil {
			return fmt.Errorf("target %s: %w", target.Slug, err)
		}
		if err := p.ValidateConfig(target.Config); err != nil {
			return fmt.Errorf("target %s: %w", target.Slug, err)
		}
		result, err := p.Backup(ctx, &plugin.BackupContext{
			Target:    target,
			JobID:     jobID,
			StartedAt: m.now(),
			Artifacts: m.artifacts,
		})
		if err != nil {
			return err
		}
		if result == nil {
			result = &plugin.BackupResult{}
		}
		state.mu.Lock()
		state.results[target.ID] = result
		state.mu.Unlock()
		return nil
	}

	summary, err := m.executor.Execute(ctx, lockKey, tagID, task, opts)
	if err != nil {
		if state.run != nil {
			m.abandon(ctx, state.run, err)
		}
		return nil, err
	}
	if !summary.Started {
		return &Outcome{Started: false, Summary: summary}, nil
	}

	outcome := &Outcome{Started: true, Run: state.run, Summary: summary}
	for _, res := range summary.Results {
		if tr := state.targetRuns[res.Target.ID]; tr != nil {
			outcome.TargetRuns = append(outcome.TargetRuns, *tr)
		}
	}

	run := state.run
	run.Status = models.AggregateStatus(summary.Statuses())
	run.Message = fmt.Sprintf("%d/%d targets succeeded", summary.Succeeded(), len(summary.Results))
	run.Log = runLog(summary)
	m.finishRun(ctx, run)
	outcome.Run = run

	report := &models.RunReport{
		Run:         *run,
		JobName:     label,
		TagID:       tagID,
		Targets:     outcome.TargetRuns,
		TargetNames: state.names,
	}
	if jobID == nil {
		report.JobName = ""
	}
	m.report(ctx, report)
	return outcome, nil
}

func (m *Manager) finishBackupTarget(ctx context.Context, tr *models.TargetRun, res engine.TargetResult, result *plugin.BackupResult) {
	if tr == nil {
		return
	}
	log := logging.Ctx(ctx).With().Str("component", "runs").Int64("target_id", tr.TargetID).Logger()

	finished := res.FinishedAt
	if finished.IsZero() {
		finished = m.now()
	}
	tr.FinishedAt = &finished

	if !res.Success {
		tr.Status = models.StatusFailed
		tr.Message = res.Error
		tr.Log = fmt.Sprintf("failed after %d attempt(s): %s", res.Attempts, res.Error)
	} else {
		tr.Status = models.StatusSuccess
		if result != nil {
			tr.ArtifactPath = result.ArtifactPath
			tr.ArtifactBytes = result.Bytes
			tr.SHA256 = result.SHA256
			tr.Log = result.Log
		}
		if tr.ArtifactPath != "" && (tr.ArtifactBytes == 0 || tr.SHA256 == "") {
			size, sum, err := artifact.Stat(tr.ArtifactPath)
			if err != nil {
				log.Warn().Err(err).Str("artifact", tr.ArtifactPath).Msg("Failed to stat artifact")
			} else {
				if tr.ArtifactBytes == 0 {
					tr.ArtifactBytes = size
				}
				if tr.SHA256 == "" {
					tr.SHA256 = sum
				}
			}
		}
		tr.Message = fmt.Sprintf("%s in %d attempt(s)", humanize.Bytes(uint64(max(tr.ArtifactBytes, 0))), res.Attempts)
		metrics.RecordArtifact(tr.ArtifactBytes)
	}

	if tr.ID == 0 {
		return
	}
	if err := m.store.FinishTargetRun(ctx, tr); err != nil {
		log.Error().Err(err).Int64("target_run_id", tr.ID).Msg("Failed to record target run result")
	}
}

// finishRun writes the terminal state of a run. A failed write is logged;
// the caller still returns the in-memory outcome.
func (m *Manager) finishRun(ctx context.Context, run *models.Run) {
	finished := m.now()
	run.FinishedAt = &finished
	if err := m.store.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logging.Ctx(ctx).Error().Err(err).Int64("run_id", run.ID).Msg("Failed to record run result")
	}
	metrics.RecordRunFinished(string(run.Operation), string(run.Status))
	logging.Ctx(ctx).Info().
		Int64("run_id", run.ID).
		Str("operation", string(run.Operation)).
		Str("status", string(run.Status)).
		Msg(run.Message)
}

// abandon closes a run whose execution failed after the row was created
func (m *Manager) abandon(ctx context.Context, run *models.Run, cause error) {
	run.Status = models.StatusFailed
	run.Message = cause.Error()
	m.finishRun(ctx, run)
}

// report hands a finished run to the publisher and, when it failed, to the
// notifier.
func (m *Manager) report(ctx context.Context, report *models.RunReport) {
	ctx = context.WithoutCancel(ctx)
	if m.publisher != nil {
		bestEffort(ctx, "publish", func() error { return m.publisher.PublishRun(ctx, report) })
	}
	if m.notifier != nil && report.Failed() {
		bestEffort(ctx, "notify", func() error { return m.notifier.NotifyRun(ctx, report) })
	}
}

func bestEffort(ctx context.Context, what string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Ctx(ctx).Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msgf("Run %s hook panicked", what)
		}
	}()
	if err := fn(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str(logging.EventField, logging.EventNotifyFailed).Msgf("Run %s failed", what)
	}
}

func runLog(summary *engine.Summary) string {
	var b strings.Builder
	for _, r := range summary.Results {
		status := models.StatusSuccess
		if !r.Success {
			status = models.StatusFailed
		}
		fmt.Fprintf(&b, "%s: %s (%d attempt(s))", r.Target.Slug, status, r.Attempts)
		if r.Error != "" {
			fmt.Fprintf(&b, ": %s", r.Error)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func withCorrelation(ctx context.Context) context.Context {
	if logging.CorrelationIDFromContext(ctx) != "" {
		return ctx
	}
	return logging.ContextWithNewCorrelationID(ctx)
}
