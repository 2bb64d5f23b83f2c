// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package builtin assembles the static plugin registry shipped with
// Homevault.
package builtin

import (
	"strings"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/plugin"
	"github.com/tomtom215/homevault/internal/plugin/archive"
	"github.com/tomtom215/homevault/internal/plugin/s3bucket"
	"github.com/tomtom215/homevault/internal/plugin/tarstream"
)

// NewRegistry returns a registry with every built-in plugin, configured
// with the artifact codec settings.
func NewRegistry(cfg *config.ArtifactsConfig) (*plugin.Registry, error) {
	format, err := tarstream.ParseFormat(cfg.Compression)
	if err != nil {
		return nil, err
	}
	level := tarstream.Level(strings.ToLower(cfg.CompressionLevel))

	return plugin.NewRegistry(
		archive.New(format, level),
		s3bucket.New(format, level),
	), nil
}
