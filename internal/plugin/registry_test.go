// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
)

type stubPlugin struct{ name string }

func (s stubPlugin) Name() string { return s.name }
func (s stubPlugin) ValidateConfig(json.RawMessage) error { return nil }
func (s stubPlugin) Test(context.Context, json.RawMessage) error { return nil }
func (s stubPlugin) Backup(context.Context, *BackupContext) (*BackupResult, error) {
	return &BackupResult{}, nil
}
func (s stubPlugin) Restore(context.Context, *RestoreContext) (*RestoreResult, error) {
	return &RestoreResult{}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(stubPlugin{"zeta"}, stubPlugin{"alpha"})

	if got := r.Names(); len(got) != 2 || got[0] != "alpha" || got[1] != "zeta" {
		t.Errorf("Names() = %v", got)
	}

	p, err := r.Get("alpha")
	if err != nil || p.Name() != "alpha" {
		t.Errorf("Get(alpha) = %v, %v", p, err)
	}

	if _, err := r.Get("ghost"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("Get(ghost) error = %v, want ErrNotFound", err)
	}

	if err := r.Register(stubPlugin{"alpha"}); err == nil {
		t.Error("duplicate Register() should fail")
	}
}

func TestNewRegistry_DuplicatePanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate plugin id")
		}
	}()
	NewRegistry(stubPlugin{"x"}, stubPlugin{"x"})
}
