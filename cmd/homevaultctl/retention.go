// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
)

func newRetentionCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Inspect and apply retention policies.",
	}

	var (
		jobID, targetID int64
		tagRuns         bool
	)
	sweep := func(dryRun bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			ctx := logging.ContextWithNewCorrelationID(cmd.Context())
			if tagRuns {
				if targetID <= 0 {
					return fmt.Errorf("--tag-runs requires --target")
				}
				res, err := c.app.sweeper.Apply(ctx, models.TagRunsJobID, targetID, dryRun)
				if err != nil {
					return err
				}
				return c.app.printer.pair(res)
			}
			if jobID > 0 || targetID > 0 {
				if jobID <= 0 || targetID <= 0 {
					return fmt.Errorf("--job and --target must be given together")
				}
				res, err := c.app.sweeper.Apply(ctx, jobID, targetID, dryRun)
				if err != nil {
					return err
				}
				return c.app.printer.pair(res)
			}
			res, err := c.app.sweeper.ApplyAll(ctx, dryRun)
			if err != nil {
				return err
			}
			if err := c.app.printer.sweep(res); err != nil {
				return err
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("retention failed for %d pair(s)", len(res.Errors))
			}
			return nil
		}
	}

	preview := &cobra.Command{
		Use:   "preview",
		Short: "Show what a retention sweep would delete.",
		Args:  cobra.NoArgs,
		RunE:  sweep(true),
	}
	apply := &cobra.Command{
		Use:   "apply",
		Short: "Delete backups no retention rule keeps.",
		Args:  cobra.NoArgs,
		RunE:  sweep(false),
	}
	for _, sub := range []*cobra.Command{preview, apply} {
		sub.Flags().Int64Var(&jobID, "job", 0, "limit to one job (requires --target)")
		sub.Flags().Int64Var(&targetID, "target", 0, "limit to one target (requires --job or --tag-runs)")
		sub.Flags().BoolVar(&tagRuns, "tag-runs", false, "limit to the target's backups started by tag (requires --target)")
		sub.MarkFlagsMutuallyExclusive("job", "tag-runs")
	}

	policy := &cobra.Command{
		Use:   "policy <job-id>",
		Short: "Show the effective retention policy of a job.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID("job", args[0])
			if err != nil {
				return err
			}
			p, source, err := c.app.sweeper.EffectivePolicy(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.app.printer.policy(id, p, source)
		},
	}

	setGlobal := &cobra.Command{
		Use:   "set-global <file|->",
		Short: "Replace the global retention policy from a JSON file.",
		Long: `set-global stores the policy every job without its own override uses.

	echo '{"rules":[{"unit":"day","window":7,"keep":1},{"unit":"week","window":4,"keep":1}]}' | homevaultctl retention set-global -

Empty input or an empty rule list clears the global policy.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			if err := c.app.jobs.SetGlobalRetention(cmd.Context(), raw); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Global retention policy updated")
			return err
		},
	}

	cmd.AddCommand(preview, apply, policy, setGlobal)
	return cmd
}

// readInput reads a file argument, with "-" meaning stdin
func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name) //nolint:gosec // operator-supplied path
}
