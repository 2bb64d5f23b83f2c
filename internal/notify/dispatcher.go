// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
dispatcher.go - Failure Notification Dispatcher

The dispatcher fans a failed or partial run out to every configured sink.
Each sink sits behind its own circuit breaker so a dead webhook endpoint or
MQTT broker stops costing a timeout per run after a few failures. While a
breaker is open the sink is skipped and counted as "rejected".

Successful runs are never sent. Sink errors are joined and returned; the
run lifecycle treats them as advisory.
*/

//nolint:staticcheck // File documentation, not package doc
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
)

// Sink delivers a rendered message somewhere
type Sink interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

type guardedSink struct {
	sink    Sink
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// Dispatcher sends failure notifications to every sink
type Dispatcher struct {
	sinks []guardedSink
}

// NewDispatcher wraps each sink in a circuit breaker configured by cfg
func NewDispatcher(cfg config.BreakerConfig, sinks ...Sink) *Dispatcher {
	d := &Dispatcher{}
	for _, s := range sinks {
		d.sinks = append(d.sinks, guardedSink{sink: s, breaker: newBreaker(s.Name(), cfg)})
	}
	return d
}

// FromConfig builds a dispatcher with a sink for every configured endpoint.
// An empty configuration yields a dispatcher with no sinks.
func FromConfig(cfg config.NotifyConfig) (*Dispatcher, error) {
	var sinks []Sink
	if cfg.Webhook.URL != "" {
		webhook, err := NewWebhookSink(cfg.Webhook)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, webhook)
	}
	if cfg.MQTT.Broker != "" {
		mqttSink, err := NewMQTTSink(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, mqttSink)
	}
	return NewDispatcher(cfg.Breaker, sinks...), nil
}

func newBreaker(name string, cfg config.BreakerConfig) *gobreaker.CircuitBreaker[struct{}] {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}

	metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			logging.Warn().
				Str("sink", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Notification circuit breaker changed state")
		},
	})
}

// Len returns the number of configured sinks
func (d *Dispatcher) Len() int {
	return len(d.sinks)
}

// NotifyRun sends a failed or partial run to every sink
func (d *Dispatcher) NotifyRun(ctx context.Context, report *models.RunReport) error {
	if report == nil || !report.Failed() || len(d.sinks) == 0 {
		return nil
	}
	msg := NewMessage(report)

	var errs []error
	for _, gs := range d.sinks {
		_, err := gs.breaker.Execute(func() (struct{}, error) {
			return struct{}{}, gs.sink.Send(ctx, msg)
		})
		name := gs.sink.Name()
		switch {
		case err == nil:
			metrics.RecordNotification(name, "sent")
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			metrics.RecordNotification(name, "rejected")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		default:
			metrics.RecordNotification(name, "error")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logging.Ctx(ctx).Debug().Int64("run_id", report.Run.ID).Int("sinks", len(d.sinks)).Msg("Failure notification sent")
	return nil
}

// Close releases sinks that hold connections
func (d *Dispatcher) Close() error {
	var errs []error
	for _, gs := range d.sinks {
		if c, ok := gs.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
