// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
service.go - Job Management

Job writes are two-phase:

 1. Validate and persist. The cron expression and retention policy are
    checked before anything is written; a rejected job never reaches the
    database.
 2. Push the change into the live scheduler. This step is best-effort: a
    scheduler failure is logged with event scheduler_update_failed and never
    rolls back or fails the write. The next process start reloads the table
    from the database anyway.

Deleting a job reassigns its runs to the archive sentinel before removing
the row, so history survives.
*/

//nolint:staticcheck // File documentation, not package doc
package jobs

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/scheduler"
	"github.com/tomtom215/homevault/internal/validation"
)

// Store is the persistence the service needs
type Store interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	ListJobs(ctx context.Context) ([]models.Job, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	DeleteJob(ctx context.Context, id int64) (int64, error)
	GetMaintenanceJob(ctx context.Context, id int64) (*models.MaintenanceJob, error)
	UpdateMaintenanceJobSchedule(ctx context.Context, id int64, schedule string, enabled bool) error
	SetRetentionPolicy(ctx context.Context, policy json.RawMessage) error
}

// Scheduler is the live trigger table
type Scheduler interface {
	Reschedule(kind scheduler.Kind, id int64, spec string, enabled bool) error
	Unschedule(kind scheduler.Kind, id int64)
}

// Service manages jobs and keeps the scheduler in step with them
type Service struct {
	store     Store
	scheduler Scheduler
}

// NewService creates a job service. sched may be nil when no scheduler runs
// in this process (the CLI).
func NewService(store Store, sched Scheduler) *Service {
	return &Service{store: store, scheduler: sched}
}

// Create validates and inserts a job, then schedules it if enabled
func (s *Service) Create(ctx context.Context, job *models.Job) error {
	if err := normalize(job); err != nil {
		return err
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	logging.Ctx(ctx).Info().Int64("job_id", job.ID).Str("job", job.Name).Msg("Job created")
	s.sync(ctx, job)
	return nil
}

// Update validates and overwrites a job, then replaces or removes its trigger
func (s *Service) Update(ctx context.Context, job *models.Job) error {
	if err := normalize(job); err != nil {
		return err
	}
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("update job %d: %w", job.ID, err)
	}
	logging.Ctx(ctx).Info().Int64("job_id", job.ID).Str("job", job.Name).Msg("Job updated")
	s.sync(ctx, job)
	return nil
}

// SetEnabled toggles a job and adds or removes its trigger
func (s *Service) SetEnabled(ctx context.Context, id int64, enabled bool) (*models.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	job.Enabled = enabled
	if err := s.Update(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Delete removes a job after archiving its runs and drops its trigger. It
// returns the number of runs archived.
func (s *Service) Delete(ctx context.Context, id int64) (int64, error) {
	archived, err := s.store.DeleteJob(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("delete job %d: %w", id, err)
	}
	logging.Ctx(ctx).Info().Int64("job_id", id).Int64("runs_archived", archived).Msg("Job deleted")
	if s.scheduler != nil {
		s.scheduler.Unschedule(scheduler.KindBackup, id)
	}
	return archived, nil
}

// Get returns a job by id
func (s *Service) Get(ctx context.Context, id int64) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// List returns every job, including the archive sentinel
func (s *Service) List(ctx context.Context) ([]models.Job, error) {
	return s.store.ListJobs(ctx)
}

// UpdateMaintenanceSchedule changes when a maintenance job runs
func (s *Service) UpdateMaintenanceSchedule(ctx context.Context, id int64, spec string, enabled bool) error {
	if err := validation.ValidateCron(spec); err != nil {
		return err
	}
	if _, err := s.store.GetMaintenanceJob(ctx, id); err != nil {
		return err
	}
	if err := s.store.UpdateMaintenanceJobSchedule(ctx, id, spec, enabled); err != nil {
		return fmt.Errorf("update maintenance job %d: %w", id, err)
	}
	if s.scheduler != nil {
		s.reschedule(ctx, scheduler.KindMaintenance, id, spec, enabled)
	}
	return nil
}

// SetGlobalRetention validates and stores the settings retention policy. A
// nil or empty policy clears it.
func (s *Service) SetGlobalRetention(ctx context.Context, raw json.RawMessage) error {
	policy, err := models.ParseRetentionPolicy(raw)
	if err != nil {
		return err
	}
	canonical, err := models.MarshalRetentionPolicy(policy)
	if err != nil {
		return fmt.Errorf("encode retention policy: %w", err)
	}
	return s.store.SetRetentionPolicy(ctx, canonical)
}

func (s *Service) sync(ctx context.Context, job *models.Job) {
	if s.scheduler == nil {
		return
	}
	s.reschedule(ctx, scheduler.KindBackup, job.ID, job.Schedule, job.Enabled)
}

func (s *Service) reschedule(ctx context.Context, kind scheduler.Kind, id int64, spec string, enabled bool) {
	if err := s.scheduler.Reschedule(kind, id, spec, enabled); err != nil {
		logging.Ctx(ctx).Warn().
			Err(err).
			Str(logging.EventField, logging.EventSchedulerUpdateFailed).
			Str("key", scheduler.Key(kind, id)).
			Msg("Saved job but could not update the scheduler")
	}
}

// normalize validates a job and rewrites its retention policy canonically
func normalize(job *models.Job) error {
	if err := validation.Validate(job); err != nil {
		return err
	}
	policy, err := models.ParseRetentionPolicy(job.Retention)
	if err != nil {
		return err
	}
	if job.Retention, err = models.MarshalRetentionPolicy(policy); err != nil {
		return fmt.Errorf("encode retention policy: %w", err)
	}
	return nil
}
