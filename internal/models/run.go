// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package models

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Operation is the kind of work a run performed.
type Operation string

const (
	OperationBackup  Operation = "backup"
	OperationRestore Operation = "restore"
)

// RunStatus is the lifecycle state of a Run, TargetRun or MaintenanceRun.
// TargetRun never uses StatusPartial.
type RunStatus string

const (
	StatusRunning RunStatus = "running"
	StatusSuccess RunStatus = "success"
	StatusFailed  RunStatus = "failed"
	StatusPartial RunStatus = "partial"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	return s != StatusRunning
}

// Run is one execution instance of a job, a tag-scoped trigger or a restore.
type Run struct {
	ID         int64      `json:"id" db:"id"`
	JobID      *int64     `json:"job_id,omitempty" db:"job_id"`
	Operation  Operation  `json:"operation" db:"operation"`
	StartedAt  time.Time  `json:"started_at" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status     RunStatus  `json:"status" db:"status"`
	Message    string     `json:"message,omitempty" db:"message"`
	Log        string     `json:"log,omitempty" db:"log_text"`
}

// TargetRun is the per-target outcome of a Run.
type TargetRun struct {
	ID            int64      `json:"id" db:"id"`
	RunID         int64      `json:"run_id" db:"run_id"`
	TargetID      int64      `json:"target_id" db:"target_id"`
	Operation     Operation  `json:"operation" db:"operation"`
	StartedAt     time.Time  `json:"started_at" db:"started_at"`
	FinishedAt    *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status        RunStatus  `json:"status" db:"status"`
	Message       string     `json:"message,omitempty" db:"message"`
	ArtifactPath  string     `json:"artifact_path,omitempty" db:"artifact_path"`
	ArtifactBytes int64      `json:"artifact_bytes,omitempty" db:"artifact_bytes"`
	SHA256        string     `json:"sha256,omitempty" db:"sha256"`
	Log           string     `json:"log,omitempty" db:"log_text"`
}

// AggregateStatus derives a Run status from its per-target outcomes:
// success if all succeeded, failed if all failed, partial otherwise.
// An empty fan-out counts as success.
func AggregateStatus(statuses []RunStatus) RunStatus {
	var ok, failed int
	for _, s := range statuses {
		switch s {
		case StatusSuccess:
			ok++
		default:
			failed++
		}
	}
	switch {
	case failed == 0:
		return StatusSuccess
	case ok == 0:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// RunStats is the per-job aggregate exported as metrics.
type RunStats struct {
	JobID        int64
	JobName      string
	SuccessCount int64
	FailureCount int64
	PartialCount int64
	LastFinished *time.Time
}

// MaintenanceRun records one execution of a MaintenanceJob.
type MaintenanceRun struct {
	ID               int64           `json:"id" db:"id"`
	MaintenanceJobID int64           `json:"maintenance_job_id" db:"maintenance_job_id"`
	StartedAt        time.Time       `json:"started_at" db:"started_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty" db:"finished_at"`
	Status           RunStatus       `json:"status" db:"status"`
	Result           json.RawMessage `json:"result,omitempty" db:"result_json"`
}

// TagRunsJobID is the JobTargetPair job id of backups started by tag. Job
// ids start at 1, so it never names a real job.
const TagRunsJobID int64 = 0

// JobTargetPair identifies the retention unit. Backups without a job are
// grouped under TagRunsJobID.
type JobTargetPair struct {
	JobID    int64 `json:"job_id"`
	TargetID int64 `json:"target_id"`
}

// RunReport is the snapshot of a finished Run handed to notifiers and
// published on the event bus.
type RunReport struct {
	Run         Run              `json:"run"`
	JobName     string           `json:"job_name,omitempty"`
	TagID       int64            `json:"tag_id,omitempty"`
	Targets     []TargetRun      `json:"targets"`
	TargetNames map[int64]string `json:"target_names,omitempty"`
}

// Failed reports whether the run needs operator attention
func (r *RunReport) Failed() bool {
	return r.Run.Status == StatusFailed || r.Run.Status == StatusPartial
}

// TargetName returns the display name of a target in the report, falling
// back to its id.
func (r *RunReport) TargetName(id int64) string {
	if name, ok := r.TargetNames[id]; ok {
		return name
	}
	return fmt.Sprintf("target %d", id)
}
