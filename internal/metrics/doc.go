// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package metrics provides Prometheus metrics for the backup engine.

Process metrics are package-level promauto collectors registered on the
default registry; components call the Record* helpers directly. Per-job
history comes from the database through RunStatsCollector, which the server
registers once at startup.

# Metrics Endpoint

	curl http://localhost:8484/metrics

# Available Metrics

Engine:
  - homevault_engine_overlap_skips_total{lock}
  - homevault_engine_target_attempts_total{outcome}
  - homevault_engine_target_duration_seconds{status}
  - homevault_engine_active_workers

Runs:
  - homevault_runs_finished_total{operation,status}
  - homevault_artifact_bytes
  - homevault_job_runs_total{job_id,job,status} (from the database)
  - homevault_job_last_run_timestamp_seconds{job_id,job} (from the database)

Retention:
  - homevault_retention_deleted_total
  - homevault_retention_delete_errors_total
  - homevault_retention_sweep_duration_seconds

Scheduler:
  - homevault_scheduler_entries
  - homevault_scheduler_fires_total{kind}
  - homevault_scheduler_invalid_cron_total

Notifications and events:
  - homevault_notifications_total{sink,result}
  - homevault_circuit_breaker_state{name}
  - homevault_events_published_total{topic,result}

Example alert:

	- alert: BackupJobStale
	  expr: time() - homevault_job_last_run_timestamp_seconds > 2 * 86400
	  for: 1h
*/
package metrics
