// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
)

// maxBodyBytes bounds every JSON request body
const maxBodyBytes = 1 << 20

// JobService manages jobs and keeps the live scheduler in step with them
type JobService interface {
	List(ctx context.Context) ([]models.Job, error)
	Get(ctx context.Context, id int64) (*models.Job, error)
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	SetEnabled(ctx context.Context, id int64, enabled bool) (*models.Job, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// SetJobs enables the job endpoints. Call once during startup.
func (h *Handler) SetJobs(jobs JobService) {
	h.jobs = jobs
}

func (h *Handler) checkJobsAvailable(w http.ResponseWriter) bool {
	if h.jobs == nil {
		respondError(w, http.StatusServiceUnavailable, "JOBS_DISABLED", "job management is not available in this process", nil)
		return false
	}
	return true
}

// jobRequest is the body of job create and update. A nil Enabled means
// true on create and unchanged on update.
type jobRequest struct {
	TagID     int64           `json:"tag_id"`
	Name      string          `json:"name"`
	Schedule  string          `json:"schedule"`
	Enabled   *bool           `json:"enabled"`
	Retention json.RawMessage `json:"retention"`
}

// ListJobs returns every job
// GET /api/v1/jobs
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	if !h.checkJobsAvailable(w) {
		return
	}
	jobs, err := h.jobs.List(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	respondData(w, jobs)
}

// GetJob returns one job
// GET /api/v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	if !h.checkJobsAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "job")
	if !ok {
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, job)
}

// CreateJob validates, stores and schedules a job
// POST /api/v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	if !h.checkJobsAvailable(w) {
		return
	}
	var req jobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job := &models.Job{
		TagID:     req.TagID,
		Name:      req.Name,
		Schedule:  req.Schedule,
		Enabled:   req.Enabled == nil || *req.Enabled,
		Retention: nullIfEmpty(req.Retention),
	}
	if err := h.jobs.Create(r.Context(), job); err != nil {
		respondDomainError(w, err)
		return
	}
	respondCreated(w, job)
}

// UpdateJob replaces a job's tag, name, schedule and retention policy and
// moves its trigger
// PUT /api/v1/jobs/{id}
func (h *Handler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	if !h.checkJobsAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "job")
	if !ok {
		return
	}
	var req jobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	job.TagID = req.TagID
	job.Name = req.Name
	job.Schedule = req.Schedule
	job.Retention = nullIfEmpty(req.Retention)
	if req.Enabled != nil {
		job.Enabled = *req.Enabled
	}
	if err := h.jobs.Update(r.Context(), job); err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, job)
}

// EnableJob turns a job on and schedules it
// POST /api/v1/jobs/{id}/enable
func (h *Handler) EnableJob(w http.ResponseWriter, r *http.Request) {
	h.setJobEnabled(w, r, true)
}

// DisableJob turns a job off and removes its trigger
// POST /api/v1/jobs/{id}/disable
func (h *Handler) DisableJob(w http.ResponseWriter, r *http.Request) {
	h.setJobEnabled(w, r, false)
}

func (h *Handler) setJobEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if !h.checkJobsAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "job")
	if !ok {
		return
	}
	job, err := h.jobs.SetEnabled(r.Context(), id, enabled)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, job)
}

// DeleteJob archives a job's runs and removes it
// DELETE /api/v1/jobs/{id}
func (h *Handler) DeleteJob(w http.ResponseWriter, r *http.Request) {
	if !h.checkJobsAvailable(w) {
		return
	}
	id, ok := parseIDParam(w, r, "job")
	if !ok {
		return
	}
	archived, err := h.jobs.Delete(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondData(w, map[string]int64{"runs_archived": archived})
}

// parseIDParam reads the {id} URL parameter
func parseIDParam(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", what+" id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

// decodeBody decodes a JSON object body into dst, rejecting unknown fields
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body must be a JSON object: "+err.Error(), nil)
		return false
	}
	return true
}

// nullIfEmpty maps an absent or null retention policy to nil, which means
// the settings policy applies
func nullIfEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
