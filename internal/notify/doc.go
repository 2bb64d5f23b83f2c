// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package notify delivers failure notifications for finished runs.
//
// A Dispatcher holds one or more sinks, each behind a circuit breaker:
//
//   - WebhookSink: JSON POST, paced with a token bucket
//   - MQTTSink: JSON publish to a broker topic
//
// Only failed and partial runs are sent. Delivery is best-effort; callers
// log the returned error and move on.
//
// Usage:
//
//	dispatcher, err := notify.FromConfig(cfg.Notify)
//	if err != nil {
//	    return err
//	}
//	defer dispatcher.Close()
//
//	if err := dispatcher.NotifyRun(ctx, report); err != nil {
//	    logging.Warn().Err(err).Msg("notification failed")
//	}
package notify
