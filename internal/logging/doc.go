// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
doc.go - Logging Package Notes

Log levels used across Homevault:

	trace   per-message event bus chatter
	debug   plugin invocations, lock acquisition, retention bucket decisions
	info    run started/finished, scheduler (re)registration, sweep summaries
	warn    overlap skips, invalid cron at startup, best-effort deletes that failed
	error   failed target runs, database errors, notification failures

Field names are snake_case and stable: job_id, run_id, target_id, target,
attempt, duration, event, component.

Third-party adapters:

  - NewSlogLogger feeds sutureslog so supervisor restarts are logged as JSON.
  - NewWatermillLogger feeds the watermill router and pub/sub backends.
*/
package logging //nolint:staticcheck // File documentation, not package doc
