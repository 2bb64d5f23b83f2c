// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
)

const maintenanceJobColumns = `id, key, name, job_type, schedule_cron, enabled, visible_in_ui, config_json, created_at, updated_at`

func scanMaintenanceJob(s rowScanner) (*models.MaintenanceJob, error) {
	var (
		j       models.MaintenanceJob
		jobType string
		cfg     sql.NullString
	)
	if err := s.Scan(&j.ID, &j.Key, &j.Name, &jobType, &j.Schedule, &j.Enabled, &j.VisibleInUI, &cfg,
		&j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	j.JobType = models.MaintenanceJobType(jobType)
	if cfg.Valid && cfg.String != "" {
		j.Config = json.RawMessage(cfg.String)
	}
	return &j, nil
}

// EnsureMaintenanceJob inserts job if no row with the same key exists and
// returns the stored row. An existing row is returned untouched, so operator
// edits to the schedule survive restarts.
func (db *DB) EnsureMaintenanceJob(ctx context.Context, job *models.MaintenanceJob) (*models.MaintenanceJob, error) {
	now := time.Now().UTC()
	if _, err := db.conn.ExecContext(ctx, `
		INSERT INTO maintenance_jobs (key, name, job_type, schedule_cron, enabled, visible_in_ui, config_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO NOTHING`,
		job.Key, job.Name, string(job.JobType), job.Schedule, job.Enabled, job.VisibleInUI,
		nullJSON(job.Config), now, now); err != nil {
		return nil, fmt.Errorf("failed to seed maintenance job %s: %w", job.Key, err)
	}
	return db.GetMaintenanceJobByKey(ctx, job.Key)
}

// GetMaintenanceJob returns a maintenance job by id
func (db *DB) GetMaintenanceJob(ctx context.Context, id int64) (*models.MaintenanceJob, error) {
	j, err := scanMaintenanceJob(db.conn.QueryRowContext(ctx,
		`SELECT `+maintenanceJobColumns+` FROM maintenance_jobs WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "maintenance job", id)
	}
	return j, nil
}

// GetMaintenanceJobByKey returns a maintenance job by its stable key
func (db *DB) GetMaintenanceJobByKey(ctx context.Context, key string) (*models.MaintenanceJob, error) {
	j, err := scanMaintenanceJob(db.conn.QueryRowContext(ctx,
		`SELECT `+maintenanceJobColumns+` FROM maintenance_jobs WHERE key = ?`, key))
	if err != nil {
		return nil, notFoundOr(err, "maintenance job", key)
	}
	return j, nil
}

// ListMaintenanceJobs returns maintenance jobs ordered by id. Hidden system
// jobs are only included when includeHidden is set.
func (db *DB) ListMaintenanceJobs(ctx context.Context, includeHidden bool) ([]models.MaintenanceJob, error) {
	query := `SELECT ` + maintenanceJobColumns + ` FROM maintenance_jobs`
	if !includeHidden {
		query += ` WHERE visible_in_ui`
	}
	query += ` ORDER BY id`

	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance jobs: %w", err)
	}
	defer closeWithLog(rows, "maintenance job rows")

	var out []models.MaintenanceJob
	for rows.Next() {
		j, err := scanMaintenanceJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan maintenance job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateMaintenanceJobSchedule changes the cron expression and enabled flag
func (db *DB) UpdateMaintenanceJobSchedule(ctx context.Context, id int64, schedule string, enabled bool) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE maintenance_jobs SET schedule_cron = ?, enabled = ?, updated_at = ? WHERE id = ?`,
		schedule, enabled, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update maintenance job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
		return models.NewNotFoundError("maintenance job", id)
	}
	return nil
}

// CreateMaintenanceRun inserts a running maintenance run and sets run.ID
func (db *DB) CreateMaintenanceRun(ctx context.Context, run *models.MaintenanceRun) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.StatusRunning
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO maintenance_runs (maintenance_job_id, started_at, status, result_json)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		run.MaintenanceJobID, run.StartedAt.UTC(), string(run.Status), nullJSON(run.Result),
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to insert maintenance run: %w", err)
	}
	return nil
}

// FinishMaintenanceRun records the terminal status and structured result
func (db *DB) FinishMaintenanceRun(ctx context.Context, run *models.MaintenanceRun) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	_, err := db.conn.ExecContext(ctx, `
		UPDATE maintenance_runs SET finished_at = ?, status = ?, result_json = ? WHERE id = ?`,
		run.FinishedAt.UTC(), string(run.Status), nullJSON(run.Result), run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish maintenance run: %w", err)
	}
	return nil
}

// ListMaintenanceRuns returns the most recent runs of a maintenance job
func (db *DB) ListMaintenanceRuns(ctx context.Context, maintenanceJobID int64, limit int) ([]models.MaintenanceRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, maintenance_job_id, started_at, finished_at, status, result_json
		FROM maintenance_runs WHERE maintenance_job_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT %d`, limit), maintenanceJobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query maintenance runs: %w", err)
	}
	defer closeWithLog(rows, "maintenance run rows")

	var out []models.MaintenanceRun
	for rows.Next() {
		var (
			r          models.MaintenanceRun
			finishedAt sql.NullTime
			status     string
			result     sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.MaintenanceJobID, &r.StartedAt, &finishedAt, &status, &result); err != nil {
			return nil, fmt.Errorf("failed to scan maintenance run: %w", err)
		}
		r.Status = models.RunStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time.UTC()
			r.FinishedAt = &t
		}
		if result.Valid {
			r.Result = json.RawMessage(result.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetSettings returns the singleton settings row. A fresh database has no
// row yet; that is reported as empty settings, not an error.
func (db *DB) GetSettings(ctx context.Context) (*models.Settings, error) {
	var (
		s         models.Settings
		retention sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, retention_policy, updated_at FROM settings WHERE id = 1`).Scan(&s.ID, &retention, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.Settings{ID: 1}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if retention.Valid && retention.String != "" {
		s.Retention = json.RawMessage(retention.String)
	}
	return &s, nil
}

// SetRetentionPolicy stores the global retention policy. A nil policy clears it.
func (db *DB) SetRetentionPolicy(ctx context.Context, policy json.RawMessage) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO settings (id, retention_policy, updated_at) VALUES (1, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			retention_policy = EXCLUDED.retention_policy,
			updated_at = EXCLUDED.updated_at`,
		nullJSON(policy), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store retention policy: %w", err)
	}
	return nil
}
