// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/homevault/internal/models"
)

func newJobsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage backup jobs.",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List backup jobs.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			jobs, err := c.app.jobs.List(cmd.Context())
			if err != nil {
				return err
			}
			return c.app.printer.jobs(jobs)
		},
	}

	show := &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			job, err := c.app.jobs.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.app.printer.job(job)
		},
	}

	create := &cobra.Command{
		Use:   "create <file|->",
		Short: "Create a job from a JSON document.",
		Long: `create reads a job as JSON:

	{"name":"nightly","tag_id":2,"schedule":"0 2 * * *","enabled":true,
	 "retention":{"rules":[{"unit":"day","window":14,"keep":1}]}}

Omit retention to use the global policy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := decodeJob(cmd, args[0])
			if err != nil {
				return err
			}
			job.ID = 0
			if err := c.app.jobs.Create(cmd.Context(), job); err != nil {
				return err
			}
			return c.app.printer.job(job)
		},
	}

	update := &cobra.Command{
		Use:   "update <job-id> <file|->",
		Short: "Replace a job's definition from a JSON document.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			job, err := decodeJob(cmd, args[1])
			if err != nil {
				return err
			}
			job.ID = id
			if err := c.app.jobs.Update(cmd.Context(), job); err != nil {
				return err
			}
			return c.app.printer.job(job)
		},
	}

	setEnabled := func(use, short string, enabled bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <job-id>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("job", args[0])
				if err != nil {
					return err
				}
				job, err := c.app.jobs.SetEnabled(cmd.Context(), id, enabled)
				if err != nil {
					return err
				}
				return c.app.printer.job(job)
			},
		}
	}

	del := &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Delete a job, moving its run history to the archive job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			moved, err := c.app.jobs.Delete(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %d, archived %d run(s)\n", id, moved)
			return err
		},
	}

	cmd.AddCommand(
		list,
		show,
		create,
		update,
		setEnabled("enable", "Enable a job's schedule.", true),
		setEnabled("disable", "Disable a job's schedule.", false),
		del,
	)
	return cmd
}

func decodeJob(cmd *cobra.Command, name string) (*models.Job, error) {
	raw, err := readInput(cmd, name)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, models.NewValidationError("job", fmt.Sprintf("malformed job document: %v", err))
	}
	return &job, nil
}
