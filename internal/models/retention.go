// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package models

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// RetentionUnit is the bucket granularity of a retention rule.
type RetentionUnit string

const (
	UnitDay   RetentionUnit = "day"
	UnitWeek  RetentionUnit = "week"
	UnitMonth RetentionUnit = "month"
)

// daysPerMonth approximates a month when computing rule windows.
const daysPerMonth = 30

// RetentionRule keeps the Keep most recent backups per Unit bucket within
// the last Window units.
type RetentionRule struct {
	Unit   RetentionUnit `json:"unit"`
	Window int           `json:"window"`
	Keep   int           `json:"keep"`
}

// Validate checks the rule shape.
func (r RetentionRule) Validate() error {
	switch r.Unit {
	case UnitDay, UnitWeek, UnitMonth:
	default:
		return NewValidationError("unit", fmt.Sprintf("unknown unit %q (want day, week or month)", r.Unit))
	}
	if r.Window < 1 {
		return NewValidationError("window", "must be at least 1")
	}
	if r.Keep < 1 {
		return NewValidationError("keep", "must be at least 1")
	}
	return nil
}

// Cutoff returns the start of the rule's window relative to now.
func (r RetentionRule) Cutoff(now time.Time) time.Time {
	switch r.Unit {
	case UnitWeek:
		return now.AddDate(0, 0, -7*r.Window)
	case UnitMonth:
		return now.AddDate(0, 0, -daysPerMonth*r.Window)
	default:
		return now.AddDate(0, 0, -r.Window)
	}
}

// BucketKey projects t into the rule's bucket. t must already be in the
// server timezone.
func (r RetentionRule) BucketKey(t time.Time) string {
	switch r.Unit {
	case UnitWeek:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%d-W%02d", year, week)
	case UnitMonth:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// RetentionPolicy is a set of rules whose keep-sets are unioned.
type RetentionPolicy struct {
	Rules []RetentionRule `json:"rules"`
}

// Empty reports whether the policy has no rules.
func (p *RetentionPolicy) Empty() bool {
	return p == nil || len(p.Rules) == 0
}

// ParseRetentionPolicy decodes a stored policy. Both {"rules": [...]} and a
// bare rule array are accepted. A nil, empty or "null" input yields nil
// with no error.
func ParseRetentionPolicy(raw []byte) (*RetentionPolicy, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	var policy RetentionPolicy
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &policy.Rules); err != nil {
			return nil, NewValidationError("retention", fmt.Sprintf("malformed policy: %v", err))
		}
	} else if err := json.Unmarshal(trimmed, &policy); err != nil {
		return nil, NewValidationError("retention", fmt.Sprintf("malformed policy: %v", err))
	}

	for i, rule := range policy.Rules {
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return &policy, nil
}

// MarshalRetentionPolicy encodes a policy for storage. A nil policy encodes as nil.
func MarshalRetentionPolicy(p *RetentionPolicy) (json.RawMessage, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}
