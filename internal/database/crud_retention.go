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

	"github.com/tomtom215/homevault/internal/models"
)

// ListRetentionCandidates returns the successful backup target runs of one
// (job, target) pair that still reference an artifact, newest first.
// models.TagRunsJobID selects the backups of runs that have no job.
func (db *DB) ListRetentionCandidates(ctx context.Context, jobID, targetID int64) ([]models.TargetRun, error) {
	return db.queryTargetRuns(ctx, `
		SELECT tr.id, tr.run_id, tr.target_id, tr.operation, tr.started_at, tr.finished_at, tr.status, tr.message,
			tr.artifact_path, tr.artifact_bytes, tr.sha256, tr.log_text
		FROM target_runs tr
		JOIN runs r ON r.id = tr.run_id
		WHERE COALESCE(r.job_id, 0) = ?
			AND tr.target_id = ?
			AND tr.operation = 'backup'
			AND tr.status = 'success'
			AND tr.artifact_path <> ''
		ORDER BY tr.started_at DESC, tr.id DESC`, jobID, targetID)
}

// ListBackupPairs returns every distinct (job, target) pair that has produced
// at least one successful backup. Backups started by tag have no job and
// are reported under models.TagRunsJobID.
func (db *DB) ListBackupPairs(ctx context.Context) ([]models.JobTargetPair, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT DISTINCT COALESCE(r.job_id, 0) AS job_id, tr.target_id
		FROM target_runs tr
		JOIN runs r ON r.id = tr.run_id
		WHERE tr.operation = 'backup'
			AND tr.status = 'success'
		ORDER BY 1, 2`)
	if err != nil {
		return nil, fmt.Errorf("failed to query backup pairs: %w", err)
	}
	defer closeWithLog(rows, "backup pair rows")

	var out []models.JobTargetPair
	for rows.Next() {
		var p models.JobTargetPair
		if err := rows.Scan(&p.JobID, &p.TargetID); err != nil {
			return nil, fmt.Errorf("failed to scan backup pair: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteTargetRun deletes a target run and, when it was the last one of its
// run, the parent run as well. It reports whether the parent was removed.
// Deleting an id that no longer exists is not an error.
func (db *DB) DeleteTargetRun(ctx context.Context, id int64) (runDeleted bool, err error) {
	err = db.withTx(ctx, func(tx *sql.Tx) error {
		runDeleted = false

		var runID int64
		if err := tx.QueryRowContext(ctx, `SELECT run_id FROM target_runs WHERE id = ?`, id).Scan(&runID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to load target run: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM target_runs WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete target run: %w", err)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM target_runs WHERE run_id = ?`, runID).Scan(&remaining); err != nil {
			return fmt.Errorf("failed to count sibling target runs: %w", err)
		}
		if remaining > 0 {
			return nil
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
			return fmt.Errorf("failed to delete orphan run: %w", err)
		}
		runDeleted = true
		return nil
	})
	return runDeleted, err
}
