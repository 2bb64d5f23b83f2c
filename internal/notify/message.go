// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tomtom215/homevault/internal/models"
)

// Message is the sink-neutral rendering of a finished run
type Message struct {
	Title      string           `json:"title"`
	Body       string           `json:"body"`
	RunID      int64            `json:"run_id"`
	Operation  models.Operation `json:"operation"`
	Status     models.RunStatus `json:"status"`
	JobName    string           `json:"job_name,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
	Targets    []TargetLine     `json:"targets"`
}

// TargetLine summarizes one target of the run
type TargetLine struct {
	TargetID int64            `json:"target_id"`
	Name     string           `json:"name"`
	Status   models.RunStatus `json:"status"`
	Message  string           `json:"message,omitempty"`
	Bytes    int64            `json:"bytes,omitempty"`
}

// NewMessage renders a run report
func NewMessage(report *models.RunReport) *Message {
	run := report.Run
	msg := &Message{
		RunID:      run.ID,
		Operation:  run.Operation,
		Status:     run.Status,
		JobName:    report.JobName,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Targets:    make([]TargetLine, 0, len(report.Targets)),
	}

	subject := report.JobName
	if subject == "" {
		subject = fmt.Sprintf("run %d", run.ID)
	}
	msg.Title = fmt.Sprintf("Homevault %s %s: %s", run.Operation, subject, run.Status)

	targets := make([]models.TargetRun, len(report.Targets))
	copy(targets, report.Targets)
	sort.Slice(targets, func(i, j int) bool { return targets[i].TargetID < targets[j].TargetID })

	var b strings.Builder
	if run.Message != "" {
		b.WriteString(run.Message)
		b.WriteString("\n")
	}
	if run.FinishedAt != nil {
		fmt.Fprintf(&b, "Took %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Second))
	}
	for _, tr := range targets {
		line := TargetLine{
			TargetID: tr.TargetID,
			Name:     report.TargetName(tr.TargetID),
			Status:   tr.Status,
			Message:  tr.Message,
			Bytes:    tr.ArtifactBytes,
		}
		msg.Targets = append(msg.Targets, line)

		switch {
		case tr.Status == models.StatusSuccess && tr.ArtifactBytes > 0:
			fmt.Fprintf(&b, "- %s: %s (%s)\n", line.Name, tr.Status, humanize.Bytes(uint64(tr.ArtifactBytes)))
		case tr.Message != "":
			fmt.Fprintf(&b, "- %s: %s: %s\n", line.Name, tr.Status, tr.Message)
		default:
			fmt.Fprintf(&b, "- %s: %s\n", line.Name, tr.Status)
		}
	}
	msg.Body = strings.TrimRight(b.String(), "\n")
	return msg
}
