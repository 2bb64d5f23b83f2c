// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
store.go - Artifact Layout on Disk

Every backup artifact lives under the configured base directory:

	<base>/<target-slug>/<YYYY-MM-DD>/<file>
	<base>/<target-slug>/<YYYY-MM-DD>/<file>.meta.json   (sidecar)

The date directory is computed in the configured timezone so an operator
browsing the tree sees the same calendar day the retention rules bucket on.
Artifacts may be a single file or a directory; deletion handles both and
treats a missing path as already deleted.
*/

//nolint:staticcheck // File documentation, not package doc
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SidecarSuffix is appended to an artifact path to locate its metadata file.
const SidecarSuffix = ".meta.json"

const (
	dirPerms  = 0o750
	filePerms = 0o640
)

// Store resolves and manages artifact paths under one base directory.
type Store struct {
	baseDir string
	loc     *time.Location
}

// NewStore creates a store rooted at baseDir. A nil location means UTC.
func NewStore(baseDir string, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{baseDir: filepath.Clean(baseDir), loc: loc}
}

// BaseDir returns the root directory of the store
func (s *Store) BaseDir() string {
	return s.baseDir
}

// Path returns the conventional location for an artifact of a target
// created at the given time.
func (s *Store) Path(slug string, at time.Time, file string) string {
	return filepath.Join(s.baseDir, slug, at.In(s.loc).Format("2006-01-02"), filepath.Base(file))
}

// Prepare returns Path and creates its parent directory.
func (s *Store) Prepare(slug string, at time.Time, file string) (string, error) {
	p := s.Path(slug, at, file)
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return p, nil
}

// Delete removes an artifact file or directory by exact path. Only paths
// strictly inside the base directory are removed. A path that no longer
// exists is not an error.
func (s *Store) Delete(path string) error {
	clean, err := s.checkDeletable(path)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(clean); err != nil {
		return fmt.Errorf("failed to delete artifact %s: %w", path, err)
	}
	s.pruneEmptyParents(clean)
	return nil
}

// checkDeletable returns the absolute form of path, refusing anything that
// is not strictly inside the base directory.
func (s *Store) checkDeletable(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("artifact path is empty")
	}
	clean, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve artifact path %s: %w", path, err)
	}
	if !s.contains(clean) {
		return "", fmt.Errorf("refusing to delete %s: outside artifact directory %s", path, s.baseDir)
	}
	return clean, nil
}

// pruneEmptyParents removes the date and slug directories once their last
// artifact is gone. Only directories inside the base are touched.
func (s *Store) pruneEmptyParents(path string) {
	dir := filepath.Dir(path)
	for i := 0; i < 2; i++ {
		if !s.contains(dir) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return // not empty or already gone
		}
		dir = filepath.Dir(dir)
	}
}

// contains reports whether path lies strictly below the base directory.
// Both sides are compared in absolute form.
func (s *Store) contains(path string) bool {
	base, err := filepath.Abs(s.baseDir)
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// SidecarPath returns the metadata file path for an artifact
func SidecarPath(artifactPath string) string {
	return artifactPath + SidecarSuffix
}

// Stat returns the size of an artifact and, for regular files, its SHA-256.
// Directories report the summed size of their regular files and an empty
// checksum.
func Stat(path string) (size int64, checksum string, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, "", fmt.Errorf("failed to stat artifact: %w", err)
	}
	if !info.IsDir() {
		sum, err := Checksum(path)
		if err != nil {
			return 0, "", err
		}
		return info.Size(), sum, nil
	}

	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		size += fi.Size()
		return nil
	})
	if err != nil {
		return 0, "", fmt.Errorf("failed to size artifact directory: %w", err)
	}
	return size, "", nil
}

// Checksum calculates the SHA-256 of a file
//
//nolint:gosec // G304: path comes from the artifact store or a TargetRun row
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash artifact: %w", err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
