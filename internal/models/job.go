// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package models

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	// ArchivedJobName is the sentinel job that inherits runs of deleted jobs.
	ArchivedJobName = "Archived Job"
	// ArchivedTagSlug is the reserved tag the sentinel job is bound to.
	ArchivedTagSlug = "archived"
	// ArchivedTagName is the display name of the reserved tag.
	ArchivedTagName = "archived"
)

// Job is a cron-scheduled backup unit bound to one tag.
type Job struct {
	ID        int64           `json:"id" db:"id"`
	TagID     int64           `json:"tag_id" db:"tag_id" validate:"required"`
	Name      string          `json:"name" db:"name" validate:"required,max=128"`
	Schedule  string          `json:"schedule" db:"schedule_cron" validate:"required,cron"`
	Enabled   bool            `json:"enabled" db:"enabled"`
	Retention json.RawMessage `json:"retention,omitempty" db:"retention_policy"` // nil means use global settings
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// IsArchive reports whether j is the sentinel archive job.
func (j *Job) IsArchive() bool {
	return j.Name == ArchivedJobName
}

// MaintenanceJobType discriminates system maintenance tasks.
type MaintenanceJobType string

const (
	// MaintenanceRetention runs the system-wide retention sweep.
	MaintenanceRetention MaintenanceJobType = "retention"
)

// RetentionSweepKey is the stable key of the seeded retention maintenance job.
const RetentionSweepKey = "retention_sweep"

// MaintenanceJob is a scheduled system housekeeping task.
// Key is stable across restarts so re-seeding never duplicates a row.
type MaintenanceJob struct {
	ID          int64              `json:"id" db:"id"`
	Key         string             `json:"key" db:"key" validate:"required"`
	Name        string             `json:"name" db:"name" validate:"required"`
	JobType     MaintenanceJobType `json:"job_type" db:"job_type" validate:"required,oneof=retention"`
	Schedule    string             `json:"schedule" db:"schedule_cron" validate:"required,cron"`
	Enabled     bool               `json:"enabled" db:"enabled"`
	VisibleInUI bool               `json:"visible_in_ui" db:"visible_in_ui"`
	Config      json.RawMessage    `json:"config,omitempty" db:"config_json"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
}

// Settings is the singleton (ID 1) row of global configuration.
type Settings struct {
	ID        int64           `json:"id" db:"id"`
	Retention json.RawMessage `json:"retention,omitempty" db:"retention_policy"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}
