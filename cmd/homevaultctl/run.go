// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/runs"
)

func newRunCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backup now.",
		Long: `Run backs up in this process, with its own overlap locks.

While the server is running, trigger manual backups through its API instead
so they share the server's locks with scheduled runs:

	curl -X POST -H "Authorization: Bearer $HOMEVAULT_API_TOKEN" \
	    http://localhost:9477/api/v1/jobs/3/run`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "job <job-id>",
			Short: "Back up every target of a job's tag.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("job", args[0])
				if err != nil {
					return err
				}
				ctx := logging.ContextWithNewCorrelationID(cmd.Context())
				out, err := c.app.manager.RunJob(ctx, id)
				if err != nil {
					return err
				}
				return c.finish(cmd, out)
			},
		},
		&cobra.Command{
			Use:   "tag <tag-id>",
			Short: "Back up every target of a tag without a job.",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := parseID("tag", args[0])
				if err != nil {
					return err
				}
				ctx := logging.ContextWithNewCorrelationID(cmd.Context())
				out, err := c.app.manager.RunTag(ctx, id)
				if err != nil {
					return err
				}
				return c.finish(cmd, out)
			},
		},
	)
	return cmd
}

func newRestoreCmd(c *cli) *cobra.Command {
	var (
		sourceRun int64
		path      string
		source    int64
		dest      int64
		job       int64
	)
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore a backup artifact into a target.",
		Long: `Restore replays one artifact into a destination target.

Select the artifact by the backup TargetRun that produced it:

	homevaultctl restore --source-target-run 42 --dest 5

or by its path under the artifact directory, naming the target that made it:

	homevaultctl restore --artifact nas/2026-10-01T02-00-00Z.tar.zst --source 3 --dest 5

Without --dest the artifact is restored into its source target.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := runs.RestoreRequest{
				SourceTargetRunID:   sourceRun,
				ArtifactPath:        path,
				SourceTargetID:      source,
				DestinationTargetID: dest,
			}
			if cmd.Flags().Changed("job") {
				req.JobID = &job
			}
			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			out, err := c.app.manager.Restore(ctx, req)
			if err != nil {
				return err
			}
			return c.finish(cmd, out)
		},
	}
	cmd.Flags().Int64Var(&sourceRun, "source-target-run", 0, "backup TargetRun whose artifact is restored")
	cmd.Flags().StringVar(&path, "artifact", "", "artifact path, relative to the artifact directory")
	cmd.Flags().Int64Var(&source, "source", 0, "target that produced --artifact")
	cmd.Flags().Int64Var(&dest, "dest", 0, "destination target (default: the source target)")
	cmd.Flags().Int64Var(&job, "job", 0, "job to attribute the restore run to")
	cmd.MarkFlagsMutuallyExclusive("source-target-run", "artifact")
	cmd.MarkFlagsOneRequired("source-target-run", "artifact")
	return cmd
}

// finish prints an outcome and turns a failed or partial run into a
// non-zero exit.
func (c *cli) finish(cmd *cobra.Command, out *runs.Outcome) error {
	if err := c.app.printer.outcome(out, c.app.targetNames(cmd.Context())); err != nil {
		return err
	}
	if out.Started && out.Run.Status != models.StatusSuccess {
		return fmt.Errorf("run %d finished %s", out.Run.ID, out.Run.Status)
	}
	return nil
}

func parseID(what, raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}
