// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package api

import (
	"context"
	"net/http"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/runs"
)

// Runner starts backups and restores on demand
type Runner interface {
	RunJob(ctx context.Context, jobID int64) (*runs.Outcome, error)
	RunTag(ctx context.Context, tagID int64) (*runs.Outcome, error)
	Restore(ctx context.Context, req runs.RestoreRequest) (*runs.Outcome, error)
}

// SetRunner enables the run and restore endpoints. Call once during startup.
func (h *Handler) SetRunner(runner Runner) {
	h.runner = runner
}

func (h *Handler) checkRunnerAvailable(w http.ResponseWriter) bool {
	if h.runner == nil {
		respondError(w, http.StatusServiceUnavailable, "RUNNER_DISABLED", "manual runs are not available in this process", nil)
		return false
	}
	return true
}

// restoreRequest is the body of a restore. Either source_target_run_id or
// artifact_path selects the artifact.
type restoreRequest struct {
	JobID               *int64 `json:"job_id"`
	SourceTargetRunID   int64  `json:"source_target_run_id"`
	ArtifactPath        string `json:"artifact_path"`
	SourceTargetID      int64  `json:"source_target_id"`
	DestinationTargetID int64  `json:"destination_target_id"`
}

// RunJob backs up every target of a job's tag now
// POST /api/v1/jobs/{id}/run
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	if !h.checkRunnerAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "job")
	if !ok {
		return
	}
	out, err := h.runner.RunJob(detached(r), id)
	respondOutcome(w, out, err)
}

// RunTag backs up every target of a tag without a job
// POST /api/v1/tags/{id}/run
func (h *Handler) RunTag(w http.ResponseWriter, r *http.Request) {
	if !h.checkRunnerAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "tag")
	if !ok {
		return
	}
	out, err := h.runner.RunTag(detached(r), id)
	respondOutcome(w, out, err)
}

// Restore replays one artifact into a target
// POST /api/v1/restores
func (h *Handler) Restore(w http.ResponseWriter, r *http.Request) {
	if !h.checkRunnerAvailable(w) {
		return
	}
	var req restoreRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out, err := h.runner.Restore(detached(r), runs.RestoreRequest{
		JobID:               req.JobID,
		SourceTargetRunID:   req.SourceTargetRunID,
		ArtifactPath:        req.ArtifactPath,
		SourceTargetID:      req.SourceTargetID,
		DestinationTargetID: req.DestinationTargetID,
	})
	respondOutcome(w, out, err)
}

// detached keeps the request's values (request and correlation ids) but
// not its cancellation, so a dropped client never aborts a run halfway.
func detached(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// respondOutcome reports a finished run. The run's own status is in the
// body; an overlapping trigger that started nothing answers 409.
func respondOutcome(w http.ResponseWriter, out *runs.Outcome, err error) {
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if !out.Started {
		respondError(w, http.StatusConflict, "ALREADY_RUNNING", "a run for this job or tag is already in progress", nil)
		return
	}
	targets := out.TargetRuns
	if targets == nil {
		targets = []models.TargetRun{}
	}
	respondData(w, RunDetail{Run: out.Run, Targets: targets})
}
