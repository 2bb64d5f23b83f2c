// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package plugin defines the contract every backup target type implements
// and a static registry keyed by plugin id.
//
// Plugins are compiled in; there is no runtime discovery. Each call receives
// a context that carries the per-target deadline and the cancellation of the
// surrounding run.
package plugin

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/models"
)

// Plugin backs up and restores one kind of target
type Plugin interface {
	// Name is the registry id stored on Target.Plugin.
	Name() string

	// ValidateConfig checks a target configuration without touching the
	// target. It returns a models.ValidationError for bad input.
	ValidateConfig(cfg json.RawMessage) error

	// Test checks that the target described by cfg is reachable.
	Test(ctx context.Context, cfg json.RawMessage) error

	Backup(ctx context.Context, bc *BackupContext) (*BackupResult, error)
	Restore(ctx context.Context, rc *RestoreContext) (*RestoreResult, error)
}

// BackupContext is the input to Plugin.Backup
type BackupContext struct {
	Target    models.Target
	JobID     *int64
	StartedAt time.Time
	Artifacts *artifact.Store
}

// BackupResult describes the artifact a backup produced. Bytes and SHA256
// may be left zero; the caller then stats and hashes the artifact itself.
type BackupResult struct {
	ArtifactPath string
	Bytes        int64
	SHA256       string
	Log          string
}

// RestoreContext is the input to Plugin.Restore. Target is the destination.
type RestoreContext struct {
	Target       models.Target
	ArtifactPath string
	Sidecar      *artifact.Sidecar
}

// RestoreResult summarizes a restore. It is recorded on the restore's
// TargetRun. An empty Status means success; models.StatusFailed records a
// failed restore without an error, for example when only some items could
// be written. Empty or zero fields keep the values taken from the source
// artifact.
type RestoreResult struct {
	Status        models.RunStatus
	ArtifactPath  string
	ArtifactBytes int64
	SHA256        string
	Message       string
	Log           string
}
