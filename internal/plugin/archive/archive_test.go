// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package archive

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/artifact"
	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/plugin"
	"github.com/tomtom215/homevault/internal/plugin/tarstream"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
}

func targetFor(t *testing.T, id int64, slug, path string, exclude ...string) models.Target {
	t.Helper()
	cfg, err := json.Marshal(Config{Path: path, Exclude: exclude})
	if err != nil {
		t.Fatal(err)
	}
	return models.Target{ID: id, Name: slug, Slug: slug, Plugin: Name, Config: cfg}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()

	p := New(tarstream.TarGz, tarstream.LevelDefault)
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", `{"path":"/srv/app"}`, false},
		{"valid with excludes", `{"path":"/srv/app","exclude":["*.log"]}`, false},
		{"empty", ``, true},
		{"missing path", `{}`, true},
		{"relative path", `{"path":"srv/app"}`, true},
		{"bad pattern", `{"path":"/srv/app","exclude":["[" ]}`, true},
		{"malformed", `{"path":`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := p.ValidateConfig(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, format := range []tarstream.Format{tarstream.TarGz, tarstream.TarZst, tarstream.Tar} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()

			src := t.TempDir()
			writeTree(t, src, map[string]string{
				"config.yml":      "a: 1",
				"data/db.sqlite":  strings.Repeat("x", 4096),
				"logs/server.log": "noise",
			})

			store := artifact.NewStore(t.TempDir(), time.UTC)
			p := New(format, tarstream.LevelFastest)
			started := time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC)
			jobID := int64(5)

			res, err := p.Backup(context.Background(), &plugin.BackupContext{
				Target:    targetFor(t, 1, "paperless", src, "*.log"),
				JobID:     &jobID,
				StartedAt: started,
				Artifacts: store,
			})
			if err != nil {
				t.Fatalf("Backup() error = %v", err)
			}

			wantDir := filepath.Join(store.BaseDir(), "paperless", "2026-04-01")
			if filepath.Dir(res.ArtifactPath) != wantDir {
				t.Errorf("artifact dir = %s, want %s", filepath.Dir(res.ArtifactPath), wantDir)
			}
			if !strings.HasSuffix(res.ArtifactPath, format.Extension()) {
				t.Errorf("artifact %s lacks %s suffix", res.ArtifactPath, format.Extension())
			}

			size, sum, err := artifact.Stat(res.ArtifactPath)
			if err != nil {
				t.Fatal(err)
			}
			if size != res.Bytes || sum != res.SHA256 {
				t.Errorf("result %d/%s does not match file %d/%s", res.Bytes, res.SHA256, size, sum)
			}

			meta, err := artifact.Verify(res.ArtifactPath)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if meta == nil || meta.Plugin != Name || meta.TargetID != 1 || *meta.JobID != jobID {
				t.Errorf("sidecar = %+v", meta)
			}

			dest := t.TempDir()
			out, err := p.Restore(context.Background(), &plugin.RestoreContext{
				Target:       targetFor(t, 2, "paperless-copy", dest),
				ArtifactPath: res.ArtifactPath,
				Sidecar:      meta,
			})
			if err != nil {
				t.Fatalf("Restore() error = %v", err)
			}
			if !strings.Contains(out.Log, "restored 2 files") {
				t.Errorf("Restore() log = %q", out.Log)
			}
			if out.Status != models.StatusSuccess || out.ArtifactPath != res.ArtifactPath {
				t.Errorf("Restore() status/path = %s/%s", out.Status, out.ArtifactPath)
			}
			if out.ArtifactBytes != res.Bytes || out.SHA256 != res.SHA256 {
				t.Errorf("Restore() read %d/%s, backup wrote %d/%s", out.ArtifactBytes, out.SHA256, res.Bytes, res.SHA256)
			}
			if !strings.Contains(out.Message, dest) {
				t.Errorf("Restore() message = %q", out.Message)
			}

			got, err := os.ReadFile(filepath.Join(dest, "data", "db.sqlite"))
			if err != nil || len(got) != 4096 {
				t.Errorf("restored db = %d bytes (%v)", len(got), err)
			}
			if _, err := os.Stat(filepath.Join(dest, "logs", "server.log")); !os.IsNotExist(err) {
				t.Errorf("excluded file was archived")
			}
		})
	}
}

func TestBackup_MissingSource(t *testing.T) {
	t.Parallel()

	p := New(tarstream.TarGz, tarstream.LevelDefault)
	_, err := p.Backup(context.Background(), &plugin.BackupContext{
		Target:    targetFor(t, 1, "ghost", filepath.Join(t.TempDir(), "missing")),
		StartedAt: time.Now(),
		Artifacts: artifact.NewStore(t.TempDir(), nil),
	})
	if err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestBackup_Cancelled(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})
	base := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(tarstream.TarGz, tarstream.LevelDefault)
	_, err := p.Backup(ctx, &plugin.BackupContext{
		Target:    targetFor(t, 1, "app", src),
		StartedAt: time.Now(),
		Artifacts: artifact.NewStore(base, nil),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// no temp files left behind
	_ = filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			t.Errorf("leftover file %s", path)
		}
		return nil
	})
}

func TestExcluded(t *testing.T) {
	t.Parallel()

	patterns := []string{"*.log", "cache/*"}
	cases := map[string]bool{
		"server.log":      true,
		"logs/server.log": true,
		"cache/blob":      true,
		"data/cache":      false,
		"config.yml":      false,
	}
	for rel, want := range cases {
		if got := excluded(patterns, rel); got != want {
			t.Errorf("excluded(%q) = %v, want %v", rel, got, want)
		}
	}
}
