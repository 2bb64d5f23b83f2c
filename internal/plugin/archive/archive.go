// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
archive.go - Local Directory Archive Plugin

Backs up a directory on the host into a single compressed tarball and
restores it by extraction.

Target config:

	{
	  "path": "/srv/appdata/paperless",
	  "exclude": ["*.log", "cache/*"]
	}

Backup:
 1. Walk the source directory, skipping excluded relative paths
 2. Stream entries through tar and the configured codec into a temp file,
    hashing the compressed bytes on the way
 3. Rename the temp file into its final place under the artifact store
 4. Write the sidecar

Restore:
 1. Verify the artifact against its sidecar checksum
 2. Extract into the destination target's path, rejecting entries that
    escape it and stripping setuid/setgid bits
*/

//nolint:staticcheck // File documentation, not package doc
package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/plugin"
	"github.com/tomtom215/homevault/internal/plugin/tarstream"
)

// Name is the registry id of this plugin
const Name = "archive"

// Config is the per-target configuration
type Config struct {
	Path    string   `json:"path"`
	Exclude []string `json:"exclude,omitempty"`
}

// Plugin archives local directories
type Plugin struct {
	format tarstream.Format
	level  tarstream.Level
}

var _ plugin.Plugin = (*Plugin)(nil)

// New creates the plugin with the artifact codec settings
func New(format tarstream.Format, level tarstream.Level) *Plugin {
	return &Plugin{format: format, level: level}
}

// Name implements plugin.Plugin
func (p *Plugin) Name() string { return Name }

func parseConfig(raw json.RawMessage) (*Config, error) {
	var cfg Config
	if len(raw) == 0 {
		return nil, models.NewValidationError("config", "path is required")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, models.NewValidationError("config", fmt.Sprintf("malformed config: %v", err))
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, models.NewValidationError("path", "is required")
	}
	if !filepath.IsAbs(cfg.Path) {
		return nil, models.NewValidationError("path", "must be absolute")
	}
	for _, pattern := range cfg.Exclude {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, models.NewValidationError("exclude", fmt.Sprintf("bad pattern %q", pattern))
		}
	}
	cfg.Path = filepath.Clean(cfg.Path)
	return &cfg, nil
}

// ValidateConfig implements plugin.Plugin
func (p *Plugin) ValidateConfig(raw json.RawMessage) error {
	_, err := parseConfig(raw)
	return err
}

// Test checks the source path is a readable directory
func (p *Plugin) Test(_ context.Context, raw json.RawMessage) error {
	cfg, err := parseConfig(raw)
	if err != nil {
		return err
	}
	info, err := os.Stat(cfg.Path)
	if err != nil {
		return fmt.Errorf("source not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %s is not a directory", cfg.Path)
	}
	return nil
}

// Backup implements plugin.Plugin
func (p *Plugin) Backup(ctx context.Context, bc *plugin.BackupContext) (result *plugin.BackupResult, err error) {
	cfg, err := parseConfig(bc.Target.Config)
	if err != nil {
		return nil, err
	}
	if err := p.Test(ctx, bc.Target.Config); err != nil {
		return nil, err
	}

	file := fmt.Sprintf("%s-%s%s", bc.Target.Slug, bc.StartedAt.UTC().Format("20060102T150405Z"), p.format.Extension())
	dest, err := bc.Artifacts.Prepare(bc.Target.Slug, bc.StartedAt, file)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".homevault-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()        //nolint:errcheck,gosec // Best effort cleanup on error
			os.Remove(tmpPath) //nolint:errcheck,gosec // Best effort cleanup on error
		}
	}()

	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(tmp, hasher)}
	tw, err := tarstream.NewWriter(counter, p.format, p.level)
	if err != nil {
		return nil, err
	}

	entries, err := addTree(ctx, tw, cfg)
	if closeErr := tw.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to finish archive: %w", closeErr)
	}
	if err != nil {
		return nil, err
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close temp archive: %w", err)
	}
	if err = os.Rename(tmpPath, dest); err != nil {
		return nil, fmt.Errorf("failed to move archive into place: %w", err)
	}

	sum := hex.EncodeToString(hasher.Sum(nil))
	meta := &artifact.Sidecar{
		Plugin:     Name,
		TargetID:   bc.Target.ID,
		TargetSlug: bc.Target.Slug,
		JobID:      bc.JobID,
		CreatedAt:  bc.StartedAt.UTC(),
		Bytes:      counter.n,
		SHA256:     sum,
		Format:     string(p.format),
	}
	if err := artifact.WriteSidecar(dest, meta); err != nil {
		// The artifact is complete; a missing sidecar only weakens restore verification.
		logging.Ctx(ctx).Warn().Err(err).Str("path", dest).Msg("Failed to write sidecar")
	}

	return &plugin.BackupResult{
		ArtifactPath: dest,
		Bytes:        counter.n,
		SHA256:       sum,
		Log:          fmt.Sprintf("archived %d entries from %s (%s)", entries, cfg.Path, humanize.Bytes(uint64(counter.n))), //nolint:gosec // size is non-negative
	}, nil
}

func addTree(ctx context.Context, tw *tarstream.Writer, cfg *Config) (int, error) {
	entries := 0
	err := filepath.WalkDir(cfg.Path, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == cfg.Path {
			return nil
		}

		rel, err := filepath.Rel(cfg.Path, path)
		if err != nil {
			return err
		}
		if excluded(cfg.Exclude, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if !info.Mode().IsRegular() && !info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			return nil // sockets, devices, pipes
		}
		if err := tw.AddFile(path, rel, info); err != nil {
			return err
		}
		entries++
		return nil
	})
	if err != nil {
		return entries, fmt.Errorf("failed to archive %s: %w", cfg.Path, err)
	}
	return entries, nil
}

func excluded(patterns []string, rel string) bool {
	rel = filepath.ToSlash(rel)
	base := filepath.Base(rel)
	for _, pattern := range patterns {
		if ok, _ := filepath.Match(pattern, rel); ok { //nolint:errcheck // patterns validated in parseConfig
			return true
		}
		if ok, _ := filepath.Match(pattern, base); ok { //nolint:errcheck // patterns validated in parseConfig
			return true
		}
	}
	return false
}

// Restore implements plugin.Plugin
func (p *Plugin) Restore(ctx context.Context, rc *plugin.RestoreContext) (*plugin.RestoreResult, error) {
	cfg, err := parseConfig(rc.Target.Config)
	if err != nil {
		return nil, err
	}

	tr, err := tarstream.Open(rc.ArtifactPath)
	if err != nil {
		return nil, err
	}
	defer tr.Close() //nolint:errcheck // read-only

	if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create restore destination: %w", err)
	}

	files, err := extract(ctx, tr, cfg.Path)
	if err != nil {
		return nil, err
	}
	size, sum, err := tr.Digest()
	if err != nil {
		return nil, err
	}
	return &plugin.RestoreResult{
		Status:        models.StatusSuccess,
		ArtifactPath:  rc.ArtifactPath,
		ArtifactBytes: size,
		SHA256:        sum,
		Message:       fmt.Sprintf("restored %d files into %s", files, cfg.Path),
		Log:           fmt.Sprintf("restored %d files (%s) into %s", files, humanize.Bytes(uint64(size)), cfg.Path), //nolint:gosec // size is non-negative
	}, nil
}

func extract(ctx context.Context, tr *tarstream.Reader, dest string) (int, error) {
	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return files, err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read archive: %w", err)
		}

		target, err := tarstream.SafeJoin(dest, header.Name)
		if err != nil {
			return files, err
		}
		mode := os.FileMode(header.Mode).Perm() //nolint:gosec // tar modes fit in 32 bits

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0o700); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(tr, target, mode); err != nil {
				return files, err
			}
			files++
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
				return files, err
			}
			_ = os.Remove(target) //nolint:errcheck // replace whatever is there
			if err := os.Symlink(header.Linkname, target); err != nil {
				return files, fmt.Errorf("failed to restore link %s: %w", header.Name, err)
			}
		}
	}
}

//nolint:gosec // G304: target validated by SafeJoin
func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}
	// Remove first so an earlier symlink entry cannot redirect the write.
	_ = os.Remove(target) //nolint:errcheck // may not exist

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close() //nolint:errcheck,gosec // Best effort cleanup on error
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return out.Close()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
