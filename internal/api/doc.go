// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package api provides the operations HTTP server using the Chi router.

Ledger endpoints are open to anyone who can reach the port:

	GET /healthz                      liveness, always 200 while serving
	GET /readyz                       database ping, 503 when unreachable
	GET /metrics                      Prometheus exposition
	GET /api/v1/scheduler/entries     live cron table with next/prev fire
	GET /api/v1/runs                  run history (job_id, status, operation, limit)
	GET /api/v1/runs/{id}             one run with its target runs
	GET /api/v1/retention/preview     dry-run of the retention sweep
	GET /api/v1/jobs                  every job
	GET /api/v1/jobs/{id}             one job

Write endpoints need "Authorization: Bearer <server.api_token>" and answer
403 while no token is configured:

	POST   /api/v1/jobs               create and schedule a job
	PUT    /api/v1/jobs/{id}          replace a job and move its trigger
	DELETE /api/v1/jobs/{id}          archive a job's runs and remove it
	POST   /api/v1/jobs/{id}/enable   schedule a job
	POST   /api/v1/jobs/{id}/disable  unschedule a job
	POST   /api/v1/jobs/{id}/run      back up a job's tag now
	POST   /api/v1/tags/{id}/run      back up a tag without a job
	POST   /api/v1/restores           restore one artifact into a target

Run and restore requests return when the run finishes, with the run and its
target runs. They are not cut off by the request timeout, and a client that
disconnects does not cancel them. A trigger that overlaps a running backup
of the same job or tag answers 409 ALREADY_RUNNING.

Every /api/v1 route is rate limited per client IP with go-chi/httprate and
instrumented with per-route Prometheus metrics. JSON responses share one
envelope:

	{"status": "success", "data": ..., "timestamp": "..."}
	{"status": "error", "error": {"code": "NOT_FOUND", "message": "..."}, "timestamp": "..."}
*/
package api
