// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package main is homevaultctl, the operator CLI for Homevault.

It opens the same DuckDB ledger and artifact store as the server and runs
operations in-process:

	homevaultctl run job 3            # back up every target of job 3 now
	homevaultctl run tag 7            # ad-hoc backup of a tag, no job
	homevaultctl restore --source-target-run 42 --dest 5
	homevaultctl retention preview    # dry-run sweep
	homevaultctl retention apply
	homevaultctl retention policy 3   # effective policy for job 3
	homevaultctl jobs list
	homevaultctl jobs disable 3
	homevaultctl schedule list        # next fire time of every trigger

Failed and partial runs are sent straight to the configured notification
sinks. Schedule edits take effect the next time the server starts.

DuckDB allows a single writer process, so stop the server before running
commands that write to the ledger.
*/
package main

import (
	"os"
)

func main() {
	if err := execute(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
