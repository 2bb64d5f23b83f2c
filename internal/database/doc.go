// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package database is the DuckDB-backed store for Homevault.

It persists the tag provenance graph (targets, groups, tags and their
AUTO/DIRECT/GROUP attachments), jobs, the Run/TargetRun execution ledger,
maintenance jobs and runs, and the singleton settings row.

Consumers never import this package's concrete type directly in their core
logic; each defines the small interface it needs (tags.Store, runs.Store,
retention.Store, scheduler.Store, jobs.Store) and *DB satisfies all of them.

Usage:

	db, err := database.New(&cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	target := &models.Target{Name: "NAS", Plugin: "archive", Config: raw}
	if err := db.CreateTarget(ctx, target); err != nil {
	    return err
	}

Write consistency:

  - Multi-statement writes run through withTx, which retries DuckDB
    transaction conflicts with a short exponential backoff.
  - Name uniqueness is checked under an in-process mutex because DuckDB
    cannot carry UNIQUE constraints on columns that are later updated.
  - Run and TargetRun updates are single statements, committed per row.
*/
package database
