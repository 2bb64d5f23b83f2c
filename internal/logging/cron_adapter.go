// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package logging

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// CronLogger adapts zerolog to cron.Logger. The cron runtime's routine
// messages (wake, run, schedule) go to debug; a fire skipped because the
// previous one is still running is logged at info as an overlap_skip event.
type CronLogger struct {
	logger zerolog.Logger
}

// NewCronLogger returns a cron logger tagged with component=scheduler.
func NewCronLogger() *CronLogger {
	return &CronLogger{logger: WithComponent("scheduler")}
}

// NewCronLoggerWithLogger wraps a specific zerolog logger.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewCronLoggerWithLogger(logger zerolog.Logger) *CronLogger {
	return &CronLogger{logger: logger}
}

// Info logs cron runtime chatter.
func (l *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	if msg == "skip" {
		withKeysAndValues(l.logger.Info().Str(EventField, EventOverlapSkip), keysAndValues).
			Msg("Cron fire skipped, previous run still in progress")
		return
	}
	withKeysAndValues(l.logger.Debug(), keysAndValues).Msg("cron " + msg)
}

// Error logs cron failures, including recovered job panics.
func (l *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	withKeysAndValues(l.logger.Error().Err(err), keysAndValues).Msg("cron " + msg)
}

func withKeysAndValues(event *zerolog.Event, kv []interface{}) *zerolog.Event {
	if event == nil {
		return nil
	}
	for i := 0; i+1 < len(kv); i += 2 {
		event = event.Interface(fmt.Sprint(kv[i]), kv[i+1])
	}
	return event
}

var _ cron.Logger = (*CronLogger)(nil)
