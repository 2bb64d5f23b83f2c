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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
)

// archivedJobSchedule is stored on the sentinel job for completeness; the
// sentinel is disabled and never scheduled.
const archivedJobSchedule = "0 0 1 1 *"

const jobColumns = `id, tag_id, name, schedule_cron, enabled, retention_policy, created_at, updated_at`

func scanJob(s rowScanner) (*models.Job, error) {
	var (
		j         models.Job
		retention sql.NullString
	)
	if err := s.Scan(&j.ID, &j.TagID, &j.Name, &j.Schedule, &j.Enabled, &retention, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return nil, err
	}
	if retention.Valid && retention.String != "" {
		j.Retention = json.RawMessage(retention.String)
	}
	return &j, nil
}

func nullJSON(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// CreateJob inserts a job. The caller validates the cron expression and
// retention JSON; the store checks the tag exists and the name is unique.
func (db *DB) CreateJob(ctx context.Context, job *models.Job) error {
	job.Name = strings.TrimSpace(job.Name)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	now := time.Now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tagExists(ctx, tx, job.TagID); err != nil {
			return err
		}
		taken, err := nameTaken(ctx, tx, "jobs", job.Name, 0)
		if err != nil {
			return err
		}
		if taken || job.Name == models.ArchivedJobName {
			return fmt.Errorf("job name %q: %w", job.Name, models.ErrConflict)
		}

		err = tx.QueryRowContext(ctx, `
			INSERT INTO jobs (tag_id, name, schedule_cron, enabled, retention_policy, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			job.TagID, job.Name, job.Schedule, job.Enabled, nullJSON(job.Retention), now, now,
		).Scan(&job.ID)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		job.CreatedAt = now
		job.UpdatedAt = now
		return nil
	})
}

// GetJob returns a job by id
func (db *DB) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFoundOr(err, "job", id)
	}
	return j, nil
}

// ListJobs returns all jobs ordered by id, including the archive sentinel
func (db *DB) ListJobs(ctx context.Context) ([]models.Job, error) {
	return db.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY id`)
}

// ListEnabledJobs returns enabled jobs ordered by id
func (db *DB) ListEnabledJobs(ctx context.Context) ([]models.Job, error) {
	return db.queryJobs(ctx, `SELECT `+jobColumns+` FROM jobs WHERE enabled ORDER BY id`)
}

func (db *DB) queryJobs(ctx context.Context, query string, args ...any) ([]models.Job, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer closeWithLog(rows, "job rows")

	var out []models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// UpdateJob overwrites the mutable fields of a job
func (db *DB) UpdateJob(ctx context.Context, job *models.Job) error {
	job.Name = strings.TrimSpace(job.Name)

	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	now := time.Now().UTC()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, job.ID))
		if err != nil {
			return notFoundOr(err, "job", job.ID)
		}
		if existing.IsArchive() {
			return models.NewValidationError("id", "the archive job cannot be modified")
		}
		if err := tagExists(ctx, tx, job.TagID); err != nil {
			return err
		}
		taken, err := nameTaken(ctx, tx, "jobs", job.Name, job.ID)
		if err != nil {
			return err
		}
		if taken || job.Name == models.ArchivedJobName {
			return fmt.Errorf("job name %q: %w", job.Name, models.ErrConflict)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET tag_id = ?, name = ?, schedule_cron = ?, enabled = ?, retention_policy = ?, updated_at = ?
			WHERE id = ?`,
			job.TagID, job.Name, job.Schedule, job.Enabled, nullJSON(job.Retention), now, job.ID); err != nil {
			return fmt.Errorf("failed to update job: %w", err)
		}
		job.CreatedAt = existing.CreatedAt
		job.UpdatedAt = now
		return nil
	})
}

// DeleteJob removes a job and reassigns its runs to the archive sentinel,
// creating the sentinel (and its reserved tag) on first use. It returns the
// number of runs reassigned.
func (db *DB) DeleteJob(ctx context.Context, id int64) (int64, error) {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	var archived int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		job, err := scanJob(tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
		if err != nil {
			return notFoundOr(err, "job", id)
		}
		if job.IsArchive() {
			return models.NewValidationError("id", "the archive job cannot be deleted")
		}

		sentinelID, err := ensureArchivedJob(ctx, tx)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE runs SET job_id = ? WHERE job_id = ?`, sentinelID, id)
		if err != nil {
			return fmt.Errorf("failed to archive runs: %w", err)
		}
		archived, _ = res.RowsAffected() //nolint:errcheck // duckdb always reports rows affected

		if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		return nil
	})
	return archived, err
}

// ArchivedJob returns the sentinel job, or a NotFoundError if no job has been
// deleted yet.
func (db *DB) ArchivedJob(ctx context.Context) (*models.Job, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT j.id, j.tag_id, j.name, j.schedule_cron, j.enabled, j.retention_policy, j.created_at, j.updated_at
		FROM jobs j JOIN tags t ON t.id = j.tag_id
		WHERE j.name = ? AND t.slug = ?`, models.ArchivedJobName, models.ArchivedTagSlug)
	j, err := scanJob(row)
	if err != nil {
		return nil, notFoundOr(err, "job", models.ArchivedJobName)
	}
	return j, nil
}

// ensureArchivedJob returns the sentinel job id, creating the reserved tag and
// the disabled sentinel job if they do not exist yet.
func ensureArchivedJob(ctx context.Context, tx *sql.Tx) (int64, error) {
	now := time.Now().UTC()

	var tagID int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE slug = ?`, models.ArchivedTagSlug).Scan(&tagID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx,
			`INSERT INTO tags (name, slug, created_at) VALUES (?, ?, ?) RETURNING id`,
			models.ArchivedTagName, models.ArchivedTagSlug, now).Scan(&tagID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to ensure archived tag: %w", err)
	}

	var jobID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM jobs WHERE name = ? AND tag_id = ?`, models.ArchivedJobName, tagID).Scan(&jobID)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowContext(ctx, `
			INSERT INTO jobs (tag_id, name, schedule_cron, enabled, retention_policy, created_at, updated_at)
			VALUES (?, ?, ?, false, NULL, ?, ?)
			RETURNING id`,
			tagID, models.ArchivedJobName, archivedJobSchedule, now, now).Scan(&jobID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to ensure archived job: %w", err)
	}
	return jobID, nil
}
