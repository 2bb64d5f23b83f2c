// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/runs"
)

func newTestPrinter(jsonOutput bool) (*printer, *bytes.Buffer) {
	var buf bytes.Buffer
	p := newPrinter(&buf, jsonOutput, time.UTC)
	p.now = func() time.Time { return time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC) }
	return p, &buf
}

func TestPrinterOutcome(t *testing.T) {
	t.Parallel()

	started := time.Date(2026, 10, 15, 2, 0, 0, 0, time.UTC)
	finished := started.Add(90 * time.Second)
	out := &runs.Outcome{
		Started: true,
		Run: &models.Run{
			ID:         12,
			Operation:  models.OperationBackup,
			Status:     models.StatusPartial,
			StartedAt:  started,
			FinishedAt: &finished,
		},
		TargetRuns: []models.TargetRun{
			{TargetID: 1, Status: models.StatusSuccess, ArtifactBytes: 2_500_000},
			{TargetID: 2, Status: models.StatusFailed, Message: "dial tcp: refused\nstack"},
		},
	}

	t.Run("text", func(t *testing.T) {
		t.Parallel()
		p, buf := newTestPrinter(false)
		if err := p.outcome(out, map[int64]string{1: "NAS"}); err != nil {
			t.Fatalf("outcome() error = %v", err)
		}
		got := buf.String()
		for _, want := range []string{"Run 12 (backup) partial in 1m30s", "NAS", "2.5 MB", "target 2", "dial tcp: refused"} {
			if !strings.Contains(got, want) {
				t.Errorf("output missing %q:\n%s", want, got)
			}
		}
		if strings.Contains(got, "stack") {
			t.Errorf("multi-line message not truncated:\n%s", got)
		}
	})

	t.Run("json", func(t *testing.T) {
		t.Parallel()
		p, buf := newTestPrinter(true)
		if err := p.outcome(out, nil); err != nil {
			t.Fatalf("outcome() error = %v", err)
		}
		var view outcomeView
		if err := json.Unmarshal(buf.Bytes(), &view); err != nil {
			t.Fatalf("decode output: %v", err)
		}
		if !view.Started || view.Run.ID != 12 || len(view.TargetRuns) != 2 {
			t.Errorf("view = %+v", view)
		}
	})

	t.Run("skipped", func(t *testing.T) {
		t.Parallel()
		p, buf := newTestPrinter(false)
		if err := p.outcome(&runs.Outcome{}, nil); err != nil {
			t.Fatalf("outcome() error = %v", err)
		}
		if !strings.HasPrefix(buf.String(), "Skipped") {
			t.Errorf("output = %q", buf.String())
		}
	})
}

func TestPrinterSweep(t *testing.T) {
	t.Parallel()

	res := &retention.SweepResult{
		DryRun:           true,
		PairsProcessed:   2,
		TargetsProcessed: 1,
		KeepCount:        3,
		DeleteCount:      1,
		DeletedPaths:     []string{"nas/old.tar.zst"},
		Errors:           []string{"job 2 target 1: boom"},
		Results: []retention.Result{
			{JobID: 1, TargetID: 1, Policy: retention.PolicyJob, KeepCount: 3, DeleteCount: 1},
			{JobID: models.TagRunsJobID, TargetID: 1, Policy: retention.PolicySettings},
		},
	}
	p, buf := newTestPrinter(false)
	if err := p.sweep(res); err != nil {
		t.Fatalf("sweep() error = %v", err)
	}
	got := buf.String()
	for _, want := range []string{"Would delete 1 backup(s), kept 3 across 2 pair(s) on 1 target(s)", "error: job 2 target 1: boom", "nas/old.tar.zst", "JOB", "tag runs"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestPrinterPolicy(t *testing.T) {
	t.Parallel()

	p, buf := newTestPrinter(false)
	if err := p.policy(3, nil, retention.PolicyNone); err != nil {
		t.Fatalf("policy() error = %v", err)
	}
	if !strings.Contains(buf.String(), "every backup is kept") {
		t.Errorf("output = %q", buf.String())
	}

	buf.Reset()
	policy := &models.RetentionPolicy{Rules: []models.RetentionRule{{Unit: models.UnitWeek, Window: 4, Keep: 1}}}
	if err := p.policy(3, policy, retention.PolicySettings); err != nil {
		t.Fatalf("policy() error = %v", err)
	}
	if !strings.Contains(buf.String(), "keep 1 per week for the last 4 week(s)") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestNextFire(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		spec     string
		enabled  bool
		wantNext time.Time
		wantErr  bool
	}{
		{"daily", "0 2 * * *", true, time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC), false},
		{"descriptor", "@hourly", true, time.Date(2026, 10, 15, 13, 0, 0, 0, time.UTC), false},
		{"disabled", "0 2 * * *", false, time.Time{}, false},
		{"invalid", "not a cron", true, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			line := nextFire("backup:1", "nightly", tt.spec, tt.enabled, now)
			if (line.Error != "") != tt.wantErr {
				t.Fatalf("Error = %q, wantErr %v", line.Error, tt.wantErr)
			}
			if !line.Next.Equal(tt.wantNext) {
				t.Errorf("Next = %v, want %v", line.Next, tt.wantNext)
			}
		})
	}
}

func TestPrinterSchedule(t *testing.T) {
	t.Parallel()

	p, buf := newTestPrinter(false)
	lines := []scheduleLine{
		{Key: "backup:1", Name: "nightly", Schedule: "0 2 * * *", Enabled: true, Next: time.Date(2026, 10, 16, 2, 0, 0, 0, time.UTC)},
		{Key: "backup:2", Name: "paused", Schedule: "0 3 * * *"},
		{Key: "backup:3", Name: "broken", Schedule: "nope", Enabled: true, Error: "expected 5 fields"},
	}
	if err := p.schedule(lines); err != nil {
		t.Fatalf("schedule() error = %v", err)
	}
	got := buf.String()
	for _, want := range []string{"2026-10-16 02:00 UTC (14 hours from now)", "disabled", "invalid: expected 5 fields"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestParseID(t *testing.T) {
	t.Parallel()

	if id, err := parseID("job", "42"); err != nil || id != 42 {
		t.Errorf("parseID(42) = %d, %v", id, err)
	}
	for _, raw := range []string{"0", "-1", "abc", ""} {
		if _, err := parseID("job", raw); err == nil {
			t.Errorf("parseID(%q) succeeded", raw)
		}
	}
}

// Positional argument validation runs before the app is opened, so these
// cases never touch a database.
func TestCommandArgumentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"run job without id", []string{"run", "job"}, "accepts 1 arg"},
		{"run tag with extra args", []string{"run", "tag", "1", "2"}, "accepts 1 arg"},
		{"jobs update without file", []string{"jobs", "update", "1"}, "accepts 2 arg"},
		{"restore with positional arg", []string{"restore", "42"}, "unknown command"},
		{"schedule set missing cron", []string{"schedule", "set", "1"}, "accepts 2 arg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := &cli{}
			root := newRootCmd(c)
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs(tt.args)

			err := root.Execute()
			if err == nil {
				t.Fatal("Execute() succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
			if c.app != nil {
				t.Error("app opened before argument validation")
			}
		})
	}
}
