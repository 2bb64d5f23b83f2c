// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestStore_Path(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := NewStore("/srv/backups/", loc)

	// 02:30 UTC on the 2nd is still the 1st in New York
	at := time.Date(2026, 3, 2, 2, 30, 0, 0, time.UTC)
	got := s.Path("nas", at, "../nas-1.tar.gz")
	want := filepath.Join("/srv/backups", "nas", "2026-03-01", "nas-1.tar.gz")
	if got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := NewStore(base, nil)
	at := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

	path, err := s.Prepare("router", at, "router.tar.gz")
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("payload"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if err := s.Delete(path); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("artifact still present: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "router")); !os.IsNotExist(err) {
		t.Errorf("empty slug directory should be pruned: %v", err)
	}
	if _, err := os.Stat(base); err != nil {
		t.Errorf("base directory must survive pruning: %v", err)
	}

	if err := s.Delete(path); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestStore_DeleteDirectory(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := NewStore(base, nil)
	dir := filepath.Join(base, "photos", "2026-01-01", "snapshot")
	if err := os.MkdirAll(filepath.Join(dir, "nested"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "nested", "a.jpg"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	// a sibling artifact keeps the date directory alive
	sibling := filepath.Join(base, "photos", "2026-01-01", "other.tar")
	if err := os.WriteFile(sibling, []byte("y"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(dir); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory artifact still present")
	}
	if _, err := os.Stat(sibling); err != nil {
		t.Errorf("sibling removed: %v", err)
	}
}

func TestStore_DeleteRefusesRoots(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := NewStore(base, nil)
	for _, p := range []string{"", "  ", base, base + "/", "/"} {
		if err := s.Delete(p); err == nil {
			t.Errorf("Delete(%q) should fail", p)
		}
	}
}

func TestStore_DeleteRefusesPathsOutsideBase(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	s := NewStore(base, nil)

	sibling := filepath.Join(t.TempDir(), "important")
	if err := os.MkdirAll(sibling, 0o750); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(sibling, "keep.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{sibling, keep, filepath.Join(base, "..", filepath.Base(base)+"-other"), filepath.Join(base, "nas", "..", "..")} {
		if err := s.Delete(p); err == nil {
			t.Errorf("Delete(%q) should fail", p)
		}
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("file outside the base was touched: %v", err)
	}
}

func TestStat(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "a.bin")
	data := []byte("homevault")
	if err := os.WriteFile(file, data, 0o600); err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)

	size, checksum, err := Stat(file)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if size != int64(len(data)) || checksum != hex.EncodeToString(sum[:]) {
		t.Errorf("Stat() = %d, %s", size, checksum)
	}

	if err := os.WriteFile(filepath.Join(dir, "b.bin"), []byte("12345"), 0o600); err != nil {
		t.Fatal(err)
	}
	size, checksum, err = Stat(dir)
	if err != nil {
		t.Fatalf("Stat(dir) error = %v", err)
	}
	if size != int64(len(data))+5 || checksum != "" {
		t.Errorf("Stat(dir) = %d, %q", size, checksum)
	}

	if _, _, err := Stat(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected error for missing artifact")
	}
}

func TestSidecar_Lifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "db.tar.zst")
	if err := os.WriteFile(path, []byte("archive"), 0o600); err != nil {
		t.Fatal(err)
	}

	meta, err := ReadSidecar(path)
	if err != nil || meta != nil {
		t.Fatalf("ReadSidecar() without file = %v, %v", meta, err)
	}

	size, sum, err := Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	jobID := int64(3)
	want := &Sidecar{
		Plugin:     "archive",
		TargetID:   9,
		TargetSlug: "db",
		JobID:      &jobID,
		CreatedAt:  time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Bytes:      size,
		SHA256:     sum,
		Format:     "tar.zst",
	}
	if err := WriteSidecar(path, want); err != nil {
		t.Fatalf("WriteSidecar() error = %v", err)
	}

	got, err := Verify(path)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Plugin != "archive" || got.TargetID != 9 || *got.JobID != 3 || got.SHA256 != sum {
		t.Errorf("Verify() sidecar = %+v", got)
	}

	if err := os.WriteFile(path, []byte("tampered"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Verify(path); err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("Verify() on tampered artifact = %v", err)
	}

	if err := RemoveSidecar(path); err != nil {
		t.Fatalf("RemoveSidecar() error = %v", err)
	}
	if err := RemoveSidecar(path); err != nil {
		t.Errorf("second RemoveSidecar() error = %v", err)
	}
	if _, err := os.Stat(SidecarPath(path)); !os.IsNotExist(err) {
		t.Errorf("sidecar still present")
	}
}
