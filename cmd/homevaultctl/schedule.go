// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/scheduler"
	"github.com/tomtom215/homevault/internal/validation"
)

func newScheduleCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect triggers and maintenance jobs.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List every trigger with its next fire time.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lines, err := scheduleLines(cmd.Context(), c.app, time.Now())
			if err != nil {
				return err
			}
			return c.app.printer.schedule(lines)
		},
	}

	var disable bool
	set := &cobra.Command{
		Use:   "set <maintenance-id> <cron>",
		Short: "Change when a maintenance job runs.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("maintenance job", args[0])
			if err != nil {
				return err
			}
			if err := c.app.jobs.UpdateMaintenanceSchedule(cmd.Context(), id, args[1], !disable); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Maintenance job %d scheduled at %q (enabled: %t)\n", id, args[1], !disable)
			return err
		},
	}
	set.Flags().BoolVar(&disable, "disable", false, "store the schedule but do not fire it")

	runMaintenance := &cobra.Command{
		Use:   "run-maintenance <maintenance-id>",
		Short: "Run a maintenance job now.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("maintenance job", args[0])
			if err != nil {
				return err
			}
			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			run, err := c.app.sched.RunMaintenance(ctx, id)
			if run != nil {
				if printErr := c.app.printer.maintenanceRun(run); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}

	cmd.AddCommand(list, set, runMaintenance)
	return cmd
}

// scheduleLines computes the next fire time of every stored trigger without
// starting a scheduler.
func scheduleLines(ctx context.Context, a *app, now time.Time) ([]scheduleLine, error) {
	jobs, err := a.db.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	maintenance, err := a.db.ListMaintenanceJobs(ctx, true)
	if err != nil {
		return nil, err
	}

	loc := a.cfg.SchedulerLocation()
	lines := make([]scheduleLine, 0, len(jobs)+len(maintenance))
	for _, j := range jobs {
		if j.IsArchive() {
			continue
		}
		lines = append(lines, nextFire(scheduler.Key(scheduler.KindBackup, j.ID), j.Name, j.Schedule, j.Enabled, now.In(loc)))
	}
	for _, mj := range maintenance {
		lines = append(lines, nextFire(scheduler.Key(scheduler.KindMaintenance, mj.ID), mj.Name, mj.Schedule, mj.Enabled, now.In(loc)))
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].Key < lines[j].Key })
	return lines, nil
}

func nextFire(key, name, spec string, enabled bool, now time.Time) scheduleLine {
	line := scheduleLine{Key: key, Name: name, Schedule: spec, Enabled: enabled}
	sched, err := validation.CronParser.Parse(spec)
	if err != nil {
		line.Error = err.Error()
		return line
	}
	if enabled {
		line.Next = sched.Next(now)
	}
	return line
}
