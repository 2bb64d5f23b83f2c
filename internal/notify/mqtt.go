// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"

	"github.com/tomtom215/homevault/internal/config"
	"github.com/tomtom215/homevault/internal/logging"
	"github.com/tomtom215/homevault/internal/models"
)

const (
	mqttTokenTimeout    = 5 * time.Second
	mqttDisconnectQuiet = 250 // milliseconds
)

// ErrMQTTTimeout is returned when the broker does not answer in time
var ErrMQTTTimeout = errors.New("mqtt operation timed out")

// MQTTSink publishes the message as JSON to a broker topic, for consumers
// such as Home Assistant. The connection is opened on first send.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte

	mu sync.Mutex
}

// NewMQTTSink validates the configuration and builds an unconnected sink
func NewMQTTSink(cfg config.MQTTConfig) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, models.NewValidationError("notify.mqtt.broker", "is required")
	}
	if cfg.Topic == "" {
		return nil, models.NewValidationError("notify.mqtt.topic", "is required")
	}
	if cfg.QoS < 0 || cfg.QoS > 2 {
		return nil, models.NewValidationError("notify.mqtt.qos", "must be 0, 1 or 2")
	}

	log := logging.WithComponent("mqtt")
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(mqttTokenTimeout)
	opts.OnConnect = func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("Lost connection to MQTT broker")
	}

	return &MQTTSink{
		client: mqtt.NewClient(opts),
		topic:  cfg.Topic,
		qos:    byte(cfg.QoS),
	}, nil
}

// Name implements Sink
func (m *MQTTSink) Name() string {
	return "mqtt"
}

// Send implements Sink
func (m *MQTTSink) Send(ctx context.Context, msg *Message) error {
	if err := m.connect(ctx); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode mqtt payload: %w", err)
	}
	return wait(ctx, m.client.Publish(m.topic, m.qos, false, payload), "publish")
}

func (m *MQTTSink) connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client.IsConnectionOpen() {
		return nil
	}
	return wait(ctx, m.client.Connect(), "connect")
}

// Close disconnects from the broker
func (m *MQTTSink) Close() error {
	if m.client.IsConnected() {
		m.client.Disconnect(mqttDisconnectQuiet)
	}
	return nil
}

func wait(ctx context.Context, token mqtt.Token, op string) error {
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("mqtt %s: %w", op, ctx.Err())
	case <-time.After(mqttTokenTimeout):
		return fmt.Errorf("mqtt %s: %w", op, ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", op, err)
	}
	return nil
}
