// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// TagOrigin identifies how a tag reached a target.
type TagOrigin string

const (
	// OriginAuto is the per-target tag created with the target and named after it.
	OriginAuto TagOrigin = "AUTO"
	// OriginDirect is an explicit user attachment.
	OriginDirect TagOrigin = "DIRECT"
	// OriginGroup is inherited from the target's group.
	OriginGroup TagOrigin = "GROUP"
)

// Valid reports whether o is a known origin.
func (o TagOrigin) Valid() bool {
	switch o {
	case OriginAuto, OriginDirect, OriginGroup:
		return true
	}
	return false
}

// Target is a backup-able endpoint.
type Target struct {
	ID        int64           `json:"id" db:"id"`
	Name      string          `json:"name" db:"name" validate:"required,max=128"`
	Slug      string          `json:"slug" db:"slug"` // Set once at creation, never rewritten
	Plugin    string          `json:"plugin" db:"plugin_name" validate:"required"`
	Config    json.RawMessage `json:"config" db:"plugin_config"`
	GroupID   *int64          `json:"group_id,omitempty" db:"group_id"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`
}

// Group is a named collection of targets carrying tags that propagate to members.
type Group struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name" validate:"required,max=128"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Tag is a named label with a system-wide unique slug.
type Tag struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name" validate:"required,max=128"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TargetTag is one attachment of a tag to a target.
// SourceGroupID is set if and only if Origin is OriginGroup.
type TargetTag struct {
	TargetID      int64     `json:"target_id" db:"target_id"`
	TagID         int64     `json:"tag_id" db:"tag_id"`
	Origin        TagOrigin `json:"origin" db:"origin"`
	SourceGroupID *int64    `json:"source_group_id,omitempty" db:"source_group_id"`
}

// Consistent reports whether the SourceGroupID presence matches the origin.
func (tt TargetTag) Consistent() bool {
	if tt.Origin == OriginGroup {
		return tt.SourceGroupID != nil
	}
	return tt.SourceGroupID == nil
}
