// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
crud_runs.go - Execution Ledger

Runs and TargetRuns are written only by the run lifecycle manager: a row is
inserted in status running when work starts and updated once when it
finishes. Each write is its own short statement so a long fan-out never holds
a transaction open. Retention is the only deleter (see crud_retention.go).
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/homevault/internal/models"
)

const runColumns = `id, job_id, operation, started_at, finished_at, status, message, log_text`

const targetRunColumns = `id, run_id, target_id, operation, started_at, finished_at, status, message,
	artifact_path, artifact_bytes, sha256, log_text`

func scanRun(s rowScanner) (*models.Run, error) {
	var (
		r          models.Run
		jobID      sql.NullInt64
		finishedAt sql.NullTime
		op, status string
	)
	if err := s.Scan(&r.ID, &jobID, &op, &r.StartedAt, &finishedAt, &status, &r.Message, &r.Log); err != nil {
		return nil, err
	}
	r.Operation = models.Operation(op)
	r.Status = models.RunStatus(status)
	if jobID.Valid {
		id := jobID.Int64
		r.JobID = &id
	}
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		r.FinishedAt = &t
	}
	r.StartedAt = r.StartedAt.UTC()
	return &r, nil
}

func scanTargetRun(s rowScanner) (*models.TargetRun, error) {
	var (
		tr         models.TargetRun
		finishedAt sql.NullTime
		op, status string
	)
	if err := s.Scan(&tr.ID, &tr.RunID, &tr.TargetID, &op, &tr.StartedAt, &finishedAt, &status, &tr.Message,
		&tr.ArtifactPath, &tr.ArtifactBytes, &tr.SHA256, &tr.Log); err != nil {
		return nil, err
	}
	tr.Operation = models.Operation(op)
	tr.Status = models.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		tr.FinishedAt = &t
	}
	tr.StartedAt = tr.StartedAt.UTC()
	return &tr, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// CreateRun inserts a run and sets run.ID
func (db *DB) CreateRun(ctx context.Context, run *models.Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.StatusRunning
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO runs (job_id, operation, started_at, finished_at, status, message, log_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		nullInt64(run.JobID), string(run.Operation), run.StartedAt.UTC(), nullTime(run.FinishedAt),
		string(run.Status), run.Message, run.Log,
	).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// FinishRun records the terminal status of a run
func (db *DB) FinishRun(ctx context.Context, run *models.Run) error {
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, status = ?, message = ?, log_text = ? WHERE id = ?`,
		run.FinishedAt.UTC(), string(run.Status), run.Message, run.Log, run.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
		return models.NewNotFoundError("run", run.ID)
	}
	return nil
}

// GetRun returns a run by id
func (db *DB) GetRun(ctx context.Context, id int64) (*models.Run, error) {
	r, err := scanRun(db.conn.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "run", id)
	}
	return r, nil
}

// RunFilter narrows ListRuns. Zero values mean "any".
type RunFilter struct {
	JobID     *int64
	Operation models.Operation
	Status    models.RunStatus
	Limit     int
}

// ListRuns returns runs newest first
func (db *DB) ListRuns(ctx context.Context, filter RunFilter) ([]models.Run, error) {
	var (
		where []string
		args  []any
	)
	if filter.JobID != nil {
		where = append(where, "job_id = ?")
		args = append(args, *filter.JobID)
	}
	if filter.Operation != "" {
		where = append(where, "operation = ?")
		args = append(args, string(filter.Operation))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + runColumns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY started_at DESC, id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer closeWithLog(rows, "run rows")

	var out []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CreateTargetRun inserts a target run and sets tr.ID
func (db *DB) CreateTargetRun(ctx context.Context, tr *models.TargetRun) error {
	if tr.StartedAt.IsZero() {
		tr.StartedAt = time.Now().UTC()
	}
	if tr.Status == "" {
		tr.Status = models.StatusRunning
	}
	err := db.conn.QueryRowContext(ctx, `
		INSERT INTO target_runs (run_id, target_id, operation, started_at, finished_at, status, message,
			artifact_path, artifact_bytes, sha256, log_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		tr.RunID, tr.TargetID, string(tr.Operation), tr.StartedAt.UTC(), nullTime(tr.FinishedAt),
		string(tr.Status), tr.Message, tr.ArtifactPath, tr.ArtifactBytes, tr.SHA256, tr.Log,
	).Scan(&tr.ID)
	if err != nil {
		return fmt.Errorf("failed to insert target run: %w", err)
	}
	return nil
}

// FinishTargetRun records the outcome and artifact metadata of a target run
func (db *DB) FinishTargetRun(ctx context.Context, tr *models.TargetRun) error {
	if tr.FinishedAt == nil {
		now := time.Now().UTC()
		tr.FinishedAt = &now
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE target_runs SET finished_at = ?, status = ?, message = ?,
			artifact_path = ?, artifact_bytes = ?, sha256 = ?, log_text = ?
		WHERE id = ?`,
		tr.FinishedAt.UTC(), string(tr.Status), tr.Message,
		tr.ArtifactPath, tr.ArtifactBytes, tr.SHA256, tr.Log, tr.ID)
	if err != nil {
		return fmt.Errorf("failed to finish target run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // duckdb always reports rows affected
		return models.NewNotFoundError("target run", tr.ID)
	}
	return nil
}

// GetTargetRun returns a target run by id
func (db *DB) GetTargetRun(ctx context.Context, id int64) (*models.TargetRun, error) {
	tr, err := scanTargetRun(db.conn.QueryRowContext(ctx,
		`SELECT `+targetRunColumns+` FROM target_runs WHERE id = ?`, id))
	if err != nil {
		return nil, notFoundOr(err, "target run", id)
	}
	return tr, nil
}

// ListTargetRuns returns the target runs of one run ordered by id
func (db *DB) ListTargetRuns(ctx context.Context, runID int64) ([]models.TargetRun, error) {
	return db.queryTargetRuns(ctx, `SELECT `+targetRunColumns+` FROM target_runs WHERE run_id = ? ORDER BY id`, runID)
}

func (db *DB) queryTargetRuns(ctx context.Context, query string, args ...any) ([]models.TargetRun, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query target runs: %w", err)
	}
	defer closeWithLog(rows, "target run rows")

	var out []models.TargetRun
	for rows.Next() {
		tr, err := scanTargetRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan target run: %w", err)
		}
		out = append(out, *tr)
	}
	return out, rows.Err()
}

// RunStats returns per-job backup outcome counts and the most recent finish
// time. Jobs that have never run are included with zero counts.
func (db *DB) RunStats(ctx context.Context) ([]models.RunStats, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT
			j.id,
			j.name,
			COUNT(r.id) FILTER (WHERE r.status = 'success'),
			COUNT(r.id) FILTER (WHERE r.status = 'failed'),
			COUNT(r.id) FILTER (WHERE r.status = 'partial'),
			MAX(r.finished_at)
		FROM jobs j
		LEFT JOIN runs r ON r.job_id = j.id AND r.operation = 'backup'
		GROUP BY j.id, j.name
		ORDER BY j.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run stats: %w", err)
	}
	defer closeWithLog(rows, "run stats rows")

	var out []models.RunStats
	for rows.Next() {
		var (
			s    models.RunStats
			last sql.NullTime
		)
		if err := rows.Scan(&s.JobID, &s.JobName, &s.SuccessCount, &s.FailureCount, &s.PartialCount, &last); err != nil {
			return nil, fmt.Errorf("failed to scan run stats: %w", err)
		}
		if last.Valid {
			t := last.Time.UTC()
			s.LastFinished = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
