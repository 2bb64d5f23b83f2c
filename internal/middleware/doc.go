// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package middleware provides HTTP middleware for the operations server.

Key Components:

  - RequestID: honors or generates X-Request-ID and seeds the logging
    correlation id with it
  - PrometheusMetrics: per-route request counts and latency, labeled by the
    chi route pattern so path parameters do not explode cardinality

Both are plain func(http.Handler) http.Handler and plug into chi with r.Use.

Usage:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
*/
package middleware
