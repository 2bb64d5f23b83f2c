// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package retention

import (
	"sort"
	"time"

	"github.com/tomtom215/homevault/internal/models"
)

// Plan splits candidates into the backups a policy keeps and the ones it
// drops. A TargetRun survives if any rule keeps it. An empty policy keeps
// everything. now and every started_at are projected into loc before
// cutoffs and bucket keys are computed.
func Plan(candidates []models.TargetRun, policy *models.RetentionPolicy, now time.Time, loc *time.Location) (keep, drop []models.TargetRun) {
	if loc == nil {
		loc = time.UTC
	}
	sorted := newestFirst(candidates)
	if policy.Empty() {
		return sorted, nil
	}

	keepSet := make(map[int64]bool, len(sorted))
	localNow := now.In(loc)
	for _, rule := range policy.Rules {
		addRuleToKeepSet(keepSet, sorted, rule, localNow, loc)
	}

	for _, tr := range sorted {
		if keepSet[tr.ID] {
			keep = append(keep, tr)
		} else {
			drop = append(drop, tr)
		}
	}
	return keep, drop
}

// addRuleToKeepSet keeps the newest rule.Keep candidates of every bucket
// inside the rule's window. sorted must be newest first.
func addRuleToKeepSet(keepSet map[int64]bool, sorted []models.TargetRun, rule models.RetentionRule, now time.Time, loc *time.Location) {
	cutoff := rule.Cutoff(now)
	perBucket := make(map[string]int)
	for _, tr := range sorted {
		started := tr.StartedAt.In(loc)
		if started.Before(cutoff) {
			continue
		}
		key := rule.BucketKey(started)
		if perBucket[key] >= rule.Keep {
			continue
		}
		perBucket[key]++
		keepSet[tr.ID] = true
	}
}

// newestFirst returns a copy of runs ordered by started_at descending, ties
// broken by id descending.
func newestFirst(runs []models.TargetRun) []models.TargetRun {
	out := make([]models.TargetRun, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.After(out[j].StartedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
