// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
)

const notifyHandlerName = "run-notifier"

// RunNotifier receives failed and partial runs
type RunNotifier interface {
	NotifyRun(ctx context.Context, report *models.RunReport) error
}

// NotifierService consumes run events and forwards failures to a notifier.
// Each Serve call builds a fresh watermill router, so a supervisor can
// restart it.
type NotifierService struct {
	bus      *Bus
	notifier RunNotifier

	readyOnce sync.Once
	ready     chan struct{}
}

// NewNotifierService creates the consumer service
func NewNotifierService(bus *Bus, notifier RunNotifier) *NotifierService {
	return &NotifierService{
		bus:      bus,
		notifier: notifier,
		ready:    make(chan struct{}),
	}
}

// Serve runs the router until ctx is canceled
func (s *NotifierService) Serve(ctx context.Context) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 30 * time.Second}, s.bus.logger)
	if err != nil {
		return fmt.Errorf("create event router: %w", err)
	}
	router.AddMiddleware(middleware.Recoverer, middleware.CorrelationID)
	router.AddConsumerHandler(notifyHandlerName, s.bus.Topic(), s.bus.Subscriber(), s.handle)

	go func() {
		select {
		case <-router.Running():
			s.readyOnce.Do(func() { close(s.ready) })
		case <-ctx.Done():
		}
	}()

	if err := router.Run(ctx); err != nil {
		return fmt.Errorf("event router: %w", err)
	}
	return ctx.Err()
}

// Ready is closed once the first router is consuming
func (s *NotifierService) Ready() <-chan struct{} {
	return s.ready
}

func (s *NotifierService) String() string {
	return "event-notifier"
}

// handle acks every message. Undecodable payloads and notifier failures are
// logged; redelivering would only repeat them.
func (s *NotifierService) handle(msg *message.Message) error {
	ctx := logging.ContextWithCorrelationID(msg.Context(), middleware.MessageCorrelationID(msg))
	log := logging.Ctx(ctx)

	report, err := DecodeRun(msg)
	if err != nil {
		log.Error().Err(err).Msg("Dropping malformed run event")
		return nil
	}
	if !report.Failed() {
		return nil
	}
	if err := s.notifier.NotifyRun(ctx, report); err != nil {
		log.Warn().
			Err(err).
			Str(logging.EventField, logging.EventNotifyFailed).
			Int64("run_id", report.Run.ID).
			Msg("Failure notification not delivered")
	}
	return nil
}
