// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/models"
	"github.com/tomtom215/homevault/internal/retention"
	"github.com/tomtom215/homevault/internal/runs"
)

// printer renders command results as aligned text or indented JSON
type printer struct {
	out  io.Writer
	json bool
	loc  *time.Location
	now  func() time.Time
}

func newPrinter(out io.Writer, jsonOutput bool, loc *time.Location) *printer {
	if loc == nil {
		loc = time.UTC
	}
	return &printer{out: out, json: jsonOutput, loc: loc, now: time.Now}
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) table() *tabwriter.Writer {
	return tabwriter.NewWriter(p.out, 0, 4, 2, ' ', 0)
}

// outcomeView is the JSON shape of a run outcome
type outcomeView struct {
	Started    bool               `json:"started"`
	Run        *models.Run        `json:"run,omitempty"`
	TargetRuns []models.TargetRun `json:"target_runs,omitempty"`
}

// outcome prints a run and its per-target results. names may be nil.
func (p *printer) outcome(out *runs.Outcome, names map[int64]string) error {
	if p.json {
		return p.encode(outcomeView{Started: out.Started, Run: out.Run, TargetRuns: out.TargetRuns})
	}
	if !out.Started {
		_, err := fmt.Fprintln(p.out, "Skipped: another run holds the lock")
		return err
	}

	run := out.Run
	took := ""
	if run.FinishedAt != nil {
		took = " in " + run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
	}
	fmt.Fprintf(p.out, "Run %d (%s) %s%s\n", run.ID, run.Operation, run.Status, took)
	if run.Message != "" {
		fmt.Fprintln(p.out, run.Message)
	}
	if len(out.TargetRuns) == 0 {
		return nil
	}

	w := p.table()
	fmt.Fprintln(w, "TARGET\tSTATUS\tSIZE\tMESSAGE")
	for _, tr := range out.TargetRuns {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", targetLabel(names, tr.TargetID), tr.Status, sizeLabel(tr), oneLine(tr.Message))
	}
	return w.Flush()
}

func (p *printer) sweep(res *retention.SweepResult) error {
	if p.json {
		return p.encode(struct {
			*retention.SweepResult
			Pairs []retention.Result `json:"pairs"`
		}{res, res.Results})
	}

	verb := "Deleted"
	if res.DryRun {
		verb = "Would delete"
	}
	fmt.Fprintf(p.out, "%s %d backup(s), kept %d across %d pair(s) on %d target(s)\n",
		verb, res.DeleteCount, res.KeepCount, res.PairsProcessed, res.TargetsProcessed)
	if res.RunsDeleted > 0 {
		fmt.Fprintf(p.out, "Removed %d empty run(s)\n", res.RunsDeleted)
	}
	if res.DeleteErrors > 0 {
		fmt.Fprintf(p.out, "%d storage deletion(s) failed, see logs\n", res.DeleteErrors)
	}
	for _, msg := range res.Errors {
		fmt.Fprintf(p.out, "error: %s\n", msg)
	}
	if len(res.Results) == 0 {
		return nil
	}

	w := p.table()
	fmt.Fprintln(w, "JOB\tTARGET\tPOLICY\tKEEP\tDELETE")
	for _, r := range res.Results {
		fmt.Fprintf(w, "%s\t%d\t%s\t%d\t%d\n", pairOwner(r.JobID), r.TargetID, r.Policy, r.KeepCount, r.DeleteCount)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	for _, path := range res.DeletedPaths {
		fmt.Fprintf(p.out, "  - %s\n", path)
	}
	return nil
}

func (p *printer) pair(res *retention.Result) error {
	if p.json {
		return p.encode(res)
	}
	verb := "deleted"
	if res.DryRun {
		verb = "would delete"
	}
	fmt.Fprintf(p.out, "%s target %d (%s policy): kept %d, %s %d\n",
		pairLabel(res.JobID), res.TargetID, res.Policy, res.KeepCount, verb, res.DeleteCount)
	for _, path := range res.DeletedPaths {
		fmt.Fprintf(p.out, "  - %s\n", path)
	}
	if res.DeleteErrors > 0 {
		fmt.Fprintf(p.out, "%d storage deletion(s) failed, see logs\n", res.DeleteErrors)
	}
	return nil
}

// pairOwner is the JOB column of a retention pair. Backups started by tag
// have no job and share TagRunsJobID.
func pairOwner(jobID int64) string {
	if jobID == models.TagRunsJobID {
		return "tag runs"
	}
	return strconv.FormatInt(jobID, 10)
}

func pairLabel(jobID int64) string {
	if jobID == models.TagRunsJobID {
		return "Tag runs"
	}
	return "Job " + strconv.FormatInt(jobID, 10)
}

func (p *printer) policy(jobID int64, policy *models.RetentionPolicy, source retention.PolicySource) error {
	if p.json {
		return p.encode(struct {
			JobID  int64                   `json:"job_id"`
			Source retention.PolicySource  `json:"source"`
			Policy *models.RetentionPolicy `json:"policy"`
		}{jobID, source, policy})
	}
	if policy.Empty() {
		_, err := fmt.Fprintf(p.out, "Job %d has no retention policy; every backup is kept\n", jobID)
		return err
	}
	fmt.Fprintf(p.out, "Job %d uses the %s policy:\n", jobID, source)
	for _, rule := range policy.Rules {
		fmt.Fprintf(p.out, "  keep %d per %s for the last %d %s(s)\n", rule.Keep, rule.Unit, rule.Window, rule.Unit)
	}
	return nil
}

func (p *printer) jobs(list []models.Job) error {
	if p.json {
		return p.encode(list)
	}
	w := p.table()
	fmt.Fprintln(w, "ID\tNAME\tTAG\tSCHEDULE\tENABLED\tRETENTION")
	for _, j := range list {
		ret := "global"
		if len(j.Retention) > 0 {
			ret = "custom"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%t\t%s\n", j.ID, j.Name, j.TagID, j.Schedule, j.Enabled, ret)
	}
	return w.Flush()
}

func (p *printer) job(j *models.Job) error {
	if p.json {
		return p.encode(j)
	}
	fmt.Fprintf(p.out, "Job %d %q\n", j.ID, j.Name)
	fmt.Fprintf(p.out, "  tag:       %d\n", j.TagID)
	fmt.Fprintf(p.out, "  schedule:  %s\n", j.Schedule)
	fmt.Fprintf(p.out, "  enabled:   %t\n", j.Enabled)
	if len(j.Retention) > 0 {
		fmt.Fprintf(p.out, "  retention: %s\n", j.Retention)
	}
	_, err := fmt.Fprintf(p.out, "  updated:   %s\n", humanize.Time(j.UpdatedAt))
	return err
}

// scheduleLine is one trigger in `schedule list`
type scheduleLine struct {
	Key      string    `json:"key"`
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Enabled  bool      `json:"enabled"`
	Next     time.Time `json:"next"`
	Error    string    `json:"error,omitempty"`
}

func (p *printer) schedule(lines []scheduleLine) error {
	if p.json {
		return p.encode(lines)
	}
	w := p.table()
	fmt.Fprintln(w, "KEY\tNAME\tSCHEDULE\tNEXT")
	for _, l := range lines {
		next := "disabled"
		switch {
		case l.Error != "":
			next = "invalid: " + l.Error
		case l.Enabled && !l.Next.IsZero():
			next = fmt.Sprintf("%s (%s)", l.Next.In(p.loc).Format("2006-01-02 15:04 MST"), humanize.RelTime(l.Next, p.now(), "ago", "from now"))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", l.Key, l.Name, l.Schedule, next)
	}
	return w.Flush()
}

func (p *printer) maintenanceRun(run *models.MaintenanceRun) error {
	if p.json {
		return p.encode(run)
	}
	_, err := fmt.Fprintf(p.out, "Maintenance run %d %s\n", run.ID, run.Status)
	return err
}

func targetLabel(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return fmt.Sprintf("target %d", id)
}

func sizeLabel(tr models.TargetRun) string {
	if tr.ArtifactBytes <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(tr.ArtifactBytes)) //nolint:gosec // checked positive
}

// oneLine keeps multi-line plugin errors from breaking table rows
func oneLine(s string) string {
	s, _, _ = strings.Cut(s, "\n")
	return s
}
