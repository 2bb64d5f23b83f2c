// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
database_schema.go - Database Schema Management

Tables:
  - targets, target_groups, group_tags, tags, target_tags: the tag provenance graph
  - jobs: cron-scheduled backup units bound to one tag
  - runs, target_runs: the append-mostly execution ledger pruned by retention
  - maintenance_jobs, maintenance_runs: system housekeeping (retention sweep)
  - settings: singleton row (id = 1) with the global retention policy

Identity:
Surrogate ids come from DuckDB sequences and are read back with
INSERT ... RETURNING id.

Constraints:
DuckDB implements UPDATE of an indexed column as delete+insert, which trips
unique constraints inside a transaction. Columns that are ever updated
(target and tag names, job tag references, run job references) therefore
carry no UNIQUE constraint or index; uniqueness of names is enforced in the
CRUD layer under DB.writeMu. Immutable columns (slugs, maintenance keys)
keep their UNIQUE constraints. There are no foreign keys; referential
cleanup is explicit in the delete paths.

Timestamps are stored as TIMESTAMP in UTC.
*/

//nolint:staticcheck // File documentation, not package doc
package database

import (
	"context"
	"fmt"
	"time"
)

// schemaContext returns a context with timeout for schema operations
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

var sequenceNames = []string{
	"targets_id_seq",
	"target_groups_id_seq",
	"tags_id_seq",
	"jobs_id_seq",
	"runs_id_seq",
	"target_runs_id_seq",
	"maintenance_jobs_id_seq",
	"maintenance_runs_id_seq",
}

func (db *DB) createSequences() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, name := range sequenceNames {
		query := fmt.Sprintf("CREATE SEQUENCE IF NOT EXISTS %s START 1", name)
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create sequence %s: %w", name, err)
		}
	}
	return nil
}

// createTables creates the core database tables
func (db *DB) createTables() error {
	ctx, cancel := schemaContext()
	defer cancel()

	for _, query := range tableCreationQueries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %s: %w", query, err)
		}
	}
	return nil
}

var tableCreationQueries = []string{
	`CREATE TABLE IF NOT EXISTS targets (
		id BIGINT PRIMARY KEY DEFAULT nextval('targets_id_seq'),
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		plugin_name TEXT NOT NULL,
		plugin_config TEXT NOT NULL DEFAULT '{}',
		group_id BIGINT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS target_groups (
		id BIGINT PRIMARY KEY DEFAULT nextval('target_groups_id_seq'),
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS group_tags (
		group_id BIGINT NOT NULL,
		tag_id BIGINT NOT NULL,
		PRIMARY KEY (group_id, tag_id)
	)`,

	`CREATE TABLE IF NOT EXISTS tags (
		id BIGINT PRIMARY KEY DEFAULT nextval('tags_id_seq'),
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL
	)`,

	// Rows are only ever inserted or deleted, never updated.
	// source_group_id = 0 encodes "none" so the composite key stays total.
	`CREATE TABLE IF NOT EXISTS target_tags (
		target_id BIGINT NOT NULL,
		tag_id BIGINT NOT NULL,
		origin TEXT NOT NULL CHECK (origin IN ('AUTO', 'DIRECT', 'GROUP')),
		source_group_id BIGINT NOT NULL DEFAULT 0,
		CHECK ((origin = 'GROUP') = (source_group_id <> 0)),
		PRIMARY KEY (target_id, tag_id, origin, source_group_id)
	)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id BIGINT PRIMARY KEY DEFAULT nextval('jobs_id_seq'),
		tag_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		schedule_cron TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT true,
		retention_policy TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS runs (
		id BIGINT PRIMARY KEY DEFAULT nextval('runs_id_seq'),
		job_id BIGINT,
		operation TEXT NOT NULL CHECK (operation IN ('backup', 'restore')),
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status TEXT NOT NULL CHECK (status IN ('running', 'success', 'failed', 'partial')),
		message TEXT NOT NULL DEFAULT '',
		log_text TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS target_runs (
		id BIGINT PRIMARY KEY DEFAULT nextval('target_runs_id_seq'),
		run_id BIGINT NOT NULL,
		target_id BIGINT NOT NULL,
		operation TEXT NOT NULL CHECK (operation IN ('backup', 'restore')),
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status TEXT NOT NULL CHECK (status IN ('running', 'success', 'failed')),
		message TEXT NOT NULL DEFAULT '',
		artifact_path TEXT NOT NULL DEFAULT '',
		artifact_bytes BIGINT NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL DEFAULT '',
		log_text TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS maintenance_jobs (
		id BIGINT PRIMARY KEY DEFAULT nextval('maintenance_jobs_id_seq'),
		key TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		job_type TEXT NOT NULL,
		schedule_cron TEXT NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT true,
		visible_in_ui BOOLEAN NOT NULL DEFAULT true,
		config_json TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS maintenance_runs (
		id BIGINT PRIMARY KEY DEFAULT nextval('maintenance_runs_id_seq'),
		maintenance_job_id BIGINT NOT NULL,
		started_at TIMESTAMP NOT NULL,
		finished_at TIMESTAMP,
		status TEXT NOT NULL,
		result_json TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		retention_policy TEXT,
		updated_at TIMESTAMP NOT NULL
	)`,
}

// createIndexes creates indexes on columns that are never updated
func (db *DB) createIndexes() error {
	ctx, cancel := schemaContext()
	defer cancel()

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_target_tags_tag ON target_tags(tag_id)`,
		`CREATE INDEX IF NOT EXISTS idx_target_runs_run ON target_runs(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_target_runs_target ON target_runs(target_id)`,
		`CREATE INDEX IF NOT EXISTS idx_maintenance_runs_job ON maintenance_runs(maintenance_job_id)`,
	}

	for _, query := range indexes {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create index: %s: %w", query, err)
		}
	}
	return nil
}
