// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
)

// StatsSource provides per-job run statistics
type StatsSource interface {
	RunStats(ctx context.Context) ([]models.RunStats, error)
}

// RunStatsCollector exports per-job backup counts and the last finish time,
// read from the database on every scrape so the values survive restarts.
type RunStatsCollector struct {
	source  StatsSource
	timeout time.Duration

	runs     *prometheus.Desc
	lastRun  *prometheus.Desc
	scrapeOK *prometheus.Desc
}

var _ prometheus.Collector = (*RunStatsCollector)(nil)

// NewRunStatsCollector creates a collector over source
func NewRunStatsCollector(source StatsSource) *RunStatsCollector {
	return &RunStatsCollector{
		source:  source,
		timeout: 5 * time.Second,
		runs: prometheus.NewDesc(
			"homevault_job_runs_total",
			"Backup runs per job by aggregate status",
			[]string{"job_id", "job", "status"}, nil,
		),
		lastRun: prometheus.NewDesc(
			"homevault_job_last_run_timestamp_seconds",
			"Unix time of the most recent finished backup run per job",
			[]string{"job_id", "job"}, nil,
		),
		scrapeOK: prometheus.NewDesc(
			"homevault_job_stats_scrape_success",
			"Whether the last run stats query succeeded",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *RunStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.runs
	ch <- c.lastRun
	ch <- c.scrapeOK
}

// Collect implements prometheus.Collector
func (c *RunStatsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.source.RunStats(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to collect run stats")
		ch <- prometheus.MustNewConstMetric(c.scrapeOK, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(c.scrapeOK, prometheus.GaugeValue, 1)

	for _, s := range stats {
		id := strconv.FormatInt(s.JobID, 10)
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(s.SuccessCount), id, s.JobName, "success")
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(s.FailureCount), id, s.JobName, "failed")
		ch <- prometheus.MustNewConstMetric(c.runs, prometheus.CounterValue, float64(s.PartialCount), id, s.JobName, "partial")
		if s.LastFinished != nil {
			ch <- prometheus.MustNewConstMetric(c.lastRun, prometheus.GaugeValue, float64(s.LastFinished.Unix()), id, s.JobName)
		}
	}
}
