// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
)

// Sidecar is the metadata written next to every artifact. Restore reads it
// to verify the artifact before handing it to a plugin.
type Sidecar struct {
	Plugin     string          `json:"plugin"`
	TargetID   int64           `json:"target_id"`
	TargetSlug string          `json:"target_slug"`
	JobID      *int64          `json:"job_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	Bytes      int64           `json:"bytes"`
	SHA256     string          `json:"sha256,omitempty"`
	Format     string          `json:"format,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
}

// WriteSidecar writes the metadata for an artifact atomically
func WriteSidecar(artifactPath string, meta *Sidecar) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal sidecar: %w", err)
	}

	target := SidecarPath(artifactPath)
	tmp, err := os.CreateTemp(filepath.Dir(target), ".meta-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create sidecar: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck,gosec // Best effort cleanup on error
		os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("failed to close sidecar: %w", err)
	}
	if err := os.Chmod(tmpPath, filePerms); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("failed to set sidecar permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("failed to move sidecar into place: %w", err)
	}
	return nil
}

// ReadSidecar loads the metadata of an artifact. It returns (nil, nil) when
// no sidecar exists.
//
//nolint:gosec // G304: path derived from an artifact path
func ReadSidecar(artifactPath string) (*Sidecar, error) {
	data, err := os.ReadFile(SidecarPath(artifactPath))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	var meta Sidecar
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode sidecar: %w", err)
	}
	return &meta, nil
}

// RemoveSidecar deletes the metadata of an artifact. A missing sidecar is
// not an error.
func RemoveSidecar(artifactPath string) error {
	if err := os.Remove(SidecarPath(artifactPath)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete sidecar: %w", err)
	}
	return nil
}

// Verify checks an artifact against its sidecar checksum. Artifacts without
// a sidecar or without a recorded checksum pass.
func Verify(artifactPath string) (*Sidecar, error) {
	meta, err := ReadSidecar(artifactPath)
	if err != nil || meta == nil || meta.SHA256 == "" {
		return meta, err
	}
	sum, err := Checksum(artifactPath)
	if err != nil {
		return meta, err
	}
	if sum != meta.SHA256 {
		return meta, fmt.Errorf("artifact %s checksum mismatch: sidecar %s, file %s", artifactPath, meta.SHA256, sum)
	}
	return meta, nil
}
