// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package jobs owns job writes and keeps the live scheduler in step with
// the database.
//
// Writes validate first (cron syntax, retention rules), persist second and
// touch the scheduler last. A scheduler failure after a successful write is
// logged and swallowed; the database is authoritative and the scheduler is
// rebuilt from it on the next start.
//
// Usage:
//
//	svc := jobs.NewService(db, sched)
//	job := &models.Job{TagID: tag.ID, Name: "Nightly", Schedule: "0 2 * * *", Enabled: true}
//	if err := svc.Create(ctx, job); err != nil {
//	    return err
//	}
//
//	archived, err := svc.Delete(ctx, job.ID)
package jobs
