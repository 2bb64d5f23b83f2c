// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package tags resolves a tag to the set of targets currently carrying it.
//
// A target reaches a tag through AUTO, DIRECT or GROUP provenance, possibly
// several at once. Resolve returns each target exactly once, in the order the
// store first yields it (target id, then origin).
package tags

import (
	"context"
	"fmt"

	"github.com/tomtom215/homevault/internal/models"
)

// Store is the persistence capability the resolver needs. Rows come back one
// per attachment, so a target attached twice appears twice.
type Store interface {
	ListTagTargets(ctx context.Context, tagID int64) ([]models.Target, error)
}

// Resolver maps tags to targets. It has no side effects and is safe for
// concurrent use.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the distinct targets carrying tagID. An unknown tag yields
// an error matching models.ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, tagID int64) ([]models.Target, error) {
	rows, err := r.store.ListTagTargets(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("resolve tag %d: %w", tagID, err)
	}

	seen := make(map[int64]struct{}, len(rows))
	targets := make([]models.Target, 0, len(rows))
	for i := range rows {
		if _, dup := seen[rows[i].ID]; dup {
			continue
		}
		seen[rows[i].ID] = struct{}{}
		targets = append(targets, rows[i])
	}
	return targets, nil
}
