// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package models defines data structures for the Homevault application.

This package is the single source of truth for the entities the orchestration
core reads and writes. It has no dependencies on storage or transport.

Key Components:

  - Target: A backup-able endpoint bound to one plugin
  - Group: Named collection of targets whose tags propagate to members
  - Tag / TargetTag: Labels with AUTO, DIRECT and GROUP attachment provenance
  - Job: Cron-scheduled backup unit bound to one tag
  - Run / TargetRun: Execution ledger and its per-target breakdown
  - MaintenanceJob / MaintenanceRun: System housekeeping schedule and results
  - Settings: Singleton row holding the global retention policy
  - RetentionPolicy: Set of {unit, window, keep} rules

Error Taxonomy:

  - ErrValidation: Bad input rejected at write time (cron, retention JSON)
  - ErrNotFound: Unknown job, tag, target or run
  - ErrConflict: Name or slug uniqueness violation

Overlap skips and target failures are outcomes, not errors, and are modelled
on the result types of the engine and run packages.
*/
package models
