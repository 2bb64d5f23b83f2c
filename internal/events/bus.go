// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
bus.go - Run Event Bus

Every finished Run is published as a RunReport on one topic. Two backends
are supported:

  - memory: watermill's in-process gochannel. Messages published while no
    subscriber is attached are dropped.
  - nats: core NATS through watermill-nats, so several homevault processes
    (the server and the CLI) share one stream of run events. A queue group
    makes each event reach one notifier.

Publishing is advisory. The run is already committed when the event goes
out and a publish error is only logged and counted.
*/

//nolint:staticcheck // File documentation, not package doc
package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/metrics"
	"github.com/tomtom215/homevault/internal/models"
)

const (
	// DefaultTopic carries finished runs
	DefaultTopic = "homevault.runs.finished"

	// BackendMemory is the in-process gochannel backend
	BackendMemory = "memory"
	// BackendNATS is the NATS backend
	BackendNATS = "nats"

	metadataStatus    = "status"
	metadataOperation = "operation"
	queueGroup        = "homevault-notify"
)

// ErrClosed is returned when publishing on a closed bus
var ErrClosed = errors.New("event bus is closed")

// Bus publishes and subscribes to run events
type Bus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
	topic      string
	backend    string
	logger     watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewBus creates a bus for the configured backend
func NewBus(cfg config.EventsConfig) (*Bus, error) {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	logger := logging.NewWatermillLoggerWithLogger(logging.WithComponent("events"))

	bus := &Bus{topic: topic, logger: logger}
	switch cfg.Backend {
	case "", BackendMemory:
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		bus.publisher, bus.subscriber, bus.backend = ch, ch, BackendMemory
	case BackendNATS:
		pub, sub, err := newNATS(cfg, logger)
		if err != nil {
			return nil, err
		}
		bus.publisher, bus.subscriber, bus.backend = pub, sub, BackendNATS
	default:
		return nil, models.NewValidationError("events.backend", fmt.Sprintf("unknown backend %q (want memory or nats)", cfg.Backend))
	}
	return bus, nil
}

func newNATS(cfg config.EventsConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	natsOpts := []natsgo.Option{
		natsgo.Name("homevault"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
	jetStream := wmNats.JetStreamConfig{Disabled: true}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   jetStream,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: queueGroup,
		SubscribersCount: 1,
		AckWaitTimeout:   30 * time.Second,
		CloseTimeout:     30 * time.Second,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        jetStream,
	}, logger)
	if err != nil {
		_ = pub.Close() //nolint:errcheck // already failing
		return nil, nil, fmt.Errorf("create nats subscriber: %w", err)
	}
	return pub, sub, nil
}

// Topic returns the run event topic
func (b *Bus) Topic() string {
	return b.topic
}

// Backend returns the configured backend name
func (b *Bus) Backend() string {
	return b.backend
}

// Subscriber returns the underlying subscriber for routers
func (b *Bus) Subscriber() message.Subscriber {
	return b.subscriber
}

// PublishRun publishes a finished run. The correlation id of ctx travels in
// the message metadata.
func (b *Bus) PublishRun(ctx context.Context, report *models.RunReport) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	middleware.SetCorrelationID(logging.CorrelationIDFromContext(ctx), msg)
	msg.Metadata.Set(metadataStatus, string(report.Run.Status))
	msg.Metadata.Set(metadataOperation, string(report.Run.Operation))

	err = b.publisher.Publish(b.topic, msg)
	metrics.RecordEventPublish(b.topic, err)
	if err != nil {
		return fmt.Errorf("publish run %d: %w", report.Run.ID, err)
	}
	return nil
}

// Close shuts down the publisher and subscriber
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var errs []error
	if err := b.publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if b.backend != BackendMemory {
		if err := b.subscriber.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DecodeRun parses a run event payload
func DecodeRun(msg *message.Message) (*models.RunReport, error) {
	var report models.RunReport
	if err := json.Unmarshal(msg.Payload, &report); err != nil {
		return nil, fmt.Errorf("decode run event %s: %w", msg.UUID, err)
	}
	return &report, nil
}
