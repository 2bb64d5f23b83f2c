// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"github.com/spf13/cobra"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/logging"
)

// cli carries global flags and the lazily opened app into subcommands
type cli struct {
	configPath string
	logLevel   string
	jsonOutput bool

	app *app
}

// execute runs the command tree and closes the app even when a command fails
func execute(args []string) error {
	c := &cli{}
	root := newRootCmd(c)
	root.SetArgs(args)
	err := root.Execute()
	if closeErr := c.close(); closeErr != nil {
		logging.Error().Err(closeErr).Msg("Error closing homevaultctl")
	}
	return err
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          "homevaultctl",
		Short:        "Operate a Homevault backup ledger.",
		Long:         `homevaultctl runs backups, restores and retention sweeps against the Homevault ledger and artifact store.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.open(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return c.close()
		},
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: search config.yaml in the standard paths)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		newRunCmd(c),
		newRestoreCmd(c),
		newRetentionCmd(c),
		newJobsCmd(c),
		newScheduleCmd(c),
	)

	return root
}

// open loads configuration, initializes logging and wires the app
func (c *cli) open(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if c.configPath != "" {
		cfg, err = config.LoadFromFile(c.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if c.logLevel != "" {
		level = c.logLevel
	}
	logging.Init(logging.Config{
		Level:  level,
		Format: "console",
		Caller: cfg.Logging.Caller,
	})

	a, err := newApp(cfg, cmd.OutOrStdout(), c.jsonOutput)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	a := c.app
	c.app = nil
	return a.close()
}
