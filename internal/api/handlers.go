// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/homevault/internal/database"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/scheduler"
	"github.com/tomtom215/homevault/internal/validation"
)

const (
	defaultRunLimit = 50
	readyTimeout    = 2 * time.Second
)

// Store is the read side of the run ledger
type Store interface {
	Ping(ctx context.Context) error
	ListRuns(ctx context.Context, filter database.RunFilter) ([]models.Run, error)
	GetRun(ctx context.Context, id int64) (*models.Run, error)
	ListTargetRuns(ctx context.Context, runID int64) ([]models.TargetRun, error)
}

// SchedulerView exposes the live trigger table
type SchedulerView interface {
	Entries() []scheduler.Entry
}

// RetentionPreviewer evaluates the retention sweep without deleting
type RetentionPreviewer interface {
	ApplyAll(ctx context.Context, dryRun bool) (*retention.SweepResult, error)
}

// Handler holds the dependencies of every endpoint
type Handler struct {
	store     Store
	scheduler SchedulerView
	retention RetentionPreviewer
	jobs      JobService
	runner    Runner
	startTime time.Time
}

// NewHandler creates a handler. sched and previewer may be nil; their
// endpoints then answer 503, as do the job and run endpoints until SetJobs
// and SetRunner are called.
func NewHandler(store Store, sched SchedulerView, previewer RetentionPreviewer) *Handler {
	return &Handler{
		store:     store,
		scheduler: sched,
		retention: previewer,
		startTime: time.Now(),
	}
}

// Healthz reports liveness
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respondData(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// Readyz reports whether the database answers
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database unreachable", err)
		return
	}
	respondData(w, map[string]string{"status": "ready"})
}

// SchedulerEntries lists the live cron table
func (h *Handler) SchedulerEntries(w http.ResponseWriter, _ *http.Request) {
	if h.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "scheduler is not running in this process", nil)
		return
	}
	respondData(w, h.scheduler.Entries())
}

// runsRequest is the validated query of ListRuns
type runsRequest struct {
	JobID     *int64
	Status    string `validate:"omitempty,oneof=running success failed partial"`
	Operation string `validate:"omitempty,oneof=backup restore"`
	Limit     int    `validate:"gte=1,lte=500"`
}

// ListRuns returns run history newest first
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := runsRequest{
		Status:    q.Get("status"),
		Operation: q.Get("operation"),
		Limit:     defaultRunLimit,
	}
	if raw := q.Get("job_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "job_id must be an integer", nil)
			return
		}
		req.JobID = &id
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		req.Limit = limit
	}
	if err := validation.Validate(&req); err != nil {
		respondDomainError(w, err)
		return
	}

	runs, err := h.store.ListRuns(r.Context(), database.RunFilter{
		JobID:     req.JobID,
		Operation: models.Operation(req.Operation),
		Status:    models.RunStatus(req.Status),
		Limit:     req.Limit,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if runs == nil {
		runs = []models.Run{}
	}
	respondData(w, runs)
}

// RunDetail is a run with its per-target rows
type RunDetail struct {
	Run     *models.Run        `json:"run"`
	Targets []models.TargetRun `json:"targets"`
}

// GetRun returns one run and its target runs
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "run id must be an integer", nil)
		return
	}
	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	targets, err := h.store.ListTargetRuns(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if targets == nil {
		targets = []models.TargetRun{}
	}
	respondData(w, RunDetail{Run: run, Targets: targets})
}

// RetentionPreview is the dry-run sweep with its per-pair breakdown
type RetentionPreview struct {
	*retention.SweepResult
	Pairs []retention.Result `json:"pairs"`
}

// PreviewRetention evaluates every retention policy without deleting
func (h *Handler) PreviewRetention(w http.ResponseWriter, r *http.Request) {
	if h.retention == nil {
		respondError(w, http.StatusServiceUnavailable, "RETENTION_DISABLED", "retention is not configured in this process", nil)
		return
	}
	sweep, err := h.retention.ApplyAll(r.Context(), true)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	pairs := sweep.Results
	if pairs == nil {
		pairs = []retention.Result{}
	}
	respondData(w, RetentionPreview{SweepResult: sweep, Pairs: pairs})
}
