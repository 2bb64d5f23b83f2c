// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/homevault/internal/middleware"
)

// RouterConfig configures the ops router
type RouterConfig struct {
	// RateLimitPerMinute bounds /api/v1 requests per client IP (0 disables)
	RateLimitPerMinute int
	// Timeout bounds each /api/v1 request (0 disables)
	Timeout time.Duration
	// Gatherer serves /metrics; nil means the default registry
	Gatherer prometheus.Gatherer
	// APIToken is the bearer token of the write endpoints (empty disables them)
	APIToken string
}

// NewRouter configures all HTTP routes
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// ========================
	// Global Middleware Stack
	// ========================
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	// ========================
	// Health and Metrics
	// ========================
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}
		r.Use(middleware.PrometheusMetrics)

		// ========================
		// Ledger Endpoints
		// ========================
		r.Group(func(r chi.Router) {
			if cfg.Timeout > 0 {
				r.Use(chimiddleware.Timeout(cfg.Timeout))
			}
			r.Get("/scheduler/entries", h.SchedulerEntries)
			r.Get("/runs", h.ListRuns)
			r.Get("/runs/{id}", h.GetRun)
			r.Get("/retention/preview", h.PreviewRetention)
			r.Get("/jobs", h.ListJobs)
			r.Get("/jobs/{id}", h.GetJob)
		})

		// ========================
		// Write Endpoints
		// ========================
		r.Group(func(r chi.Router) {
			r.Use(requireToken(cfg.APIToken))

			r.Group(func(r chi.Router) {
				if cfg.Timeout > 0 {
					r.Use(chimiddleware.Timeout(cfg.Timeout))
				}
				r.Post("/jobs", h.CreateJob)
				r.Put("/jobs/{id}", h.UpdateJob)
				r.Delete("/jobs/{id}", h.DeleteJob)
				r.Post("/jobs/{id}/enable", h.EnableJob)
				r.Post("/jobs/{id}/disable", h.DisableJob)
			})

			// Backups and restores finish inside the request, outside the
			// request timeout.
			r.Post("/jobs/{id}/run", h.RunJob)
			r.Post("/tags/{id}/run", h.RunTag)
			r.Post("/restores", h.Restore)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Endpoint not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	return r
}
