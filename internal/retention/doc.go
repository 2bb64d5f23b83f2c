// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package retention prunes old backups according to tiered day/week/month
policies.

A policy is a list of rules, each keeping the newest N backups per calendar
bucket inside a window:

	{"rules": [
	    {"unit": "day",   "window": 7, "keep": 1},
	    {"unit": "month", "window": 6, "keep": 1}
	]}

The keep sets of all rules are unioned, so the example keeps one backup a
day for a week and one a month for six months. Buckets are computed in the
configured server timezone.

Plan is the pure planning step and is what the dry-run preview exposes.
Sweeper.Apply and Sweeper.ApplyAll add the destructive part: artifacts,
sidecars and ledger rows are removed together, and a Run whose last
TargetRun is deleted goes with it.
*/
package retention
