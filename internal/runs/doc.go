// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package runs records the execution history of backups and restores.

A Manager sits between the triggers (scheduler fires, CLI "run now") and the
execution engine. It owns the Run and TargetRun rows: a Run exists only for
executions that actually acquired their lock, every target of the run has
exactly one TargetRun, and every Run ends in a terminal status.

Usage:

	mgr, err := runs.NewManager(runs.Config{
	    Store:     db,
	    Executor:  eng,
	    Plugins:   registry,
	    Artifacts: store,
	    Publisher: bus,
	})
	out, err := mgr.RunJob(ctx, jobID)
	if !out.Started {
	    // another run of this job was in progress
	}

Restores go through the same manager so they appear in the same ledger:

	out, err := mgr.Restore(ctx, runs.RestoreRequest{
	    SourceTargetRunID:   42,
	    DestinationTargetID: 7,
	})
*/
package runs
