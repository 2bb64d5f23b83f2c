// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/homevault/internal/validation"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateEngine(); err != nil {
		return err
	}

	if err := c.validateTimezones(); err != nil {
		return err
	}

	if err := c.validateArtifacts(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	if err := c.validateNotify(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateDatabase() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.MaxConcurrency < 1 {
		return fmt.Errorf("engine.max_concurrency must be at least 1, got %d", c.Engine.MaxConcurrency)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("engine.max_retries must not be negative, got %d", c.Engine.MaxRetries)
	}
	if c.Engine.BackoffBase < 0 {
		return fmt.Errorf("engine.backoff_base must not be negative, got %s", c.Engine.BackoffBase)
	}
	if c.Engine.TargetTimeout < 0 {
		return fmt.Errorf("engine.target_timeout must not be negative, got %s", c.Engine.TargetTimeout)
	}
	if c.Retention.SweepConcurrency < 1 {
		return fmt.Errorf("retention.sweep_concurrency must be at least 1, got %d", c.Retention.SweepConcurrency)
	}
	return nil
}

// validateTimezones ensures bucket boundaries are computed in a loadable zone.
func (c *Config) validateTimezones() error {
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("retention.timezone %q is invalid: %w", c.Retention.Timezone, err)
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone %q is invalid: %w", c.Scheduler.Timezone, err)
		}
	}
	if err := validation.ValidateCron(c.Scheduler.RetentionSweepSchedule); err != nil {
		return fmt.Errorf("scheduler.retention_sweep_schedule: %w", err)
	}
	return nil
}

func (c *Config) validateArtifacts() error {
	if c.Artifacts.BaseDir == "" {
		return fmt.Errorf("artifacts.base_dir is required")
	}
	switch strings.ToLower(c.Artifacts.Compression) {
	case "gzip", "zstd", "none":
	default:
		return fmt.Errorf("artifacts.compression must be gzip, zstd, or none, got: %s", c.Artifacts.Compression)
	}
	switch strings.ToLower(c.Artifacts.CompressionLevel) {
	case "", "default", "fastest", "better", "best":
	default:
		return fmt.Errorf("artifacts.compression_level must be default, fastest, better, or best, got: %s", c.Artifacts.CompressionLevel)
	}
	return nil
}

func (c *Config) validateEvents() error {
	switch c.Events.Backend {
	case "memory":
	case "nats":
		if err := validateNATSURL(c.Events.NATSURL); err != nil {
			return fmt.Errorf("events.nats_url: %w", err)
		}
	default:
		return fmt.Errorf("events.backend must be memory or nats, got: %s", c.Events.Backend)
	}
	if c.Events.Topic == "" {
		return fmt.Errorf("events.topic is required")
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.Webhook.URL != "" {
		if err := validateWebhookURL(c.Notify.Webhook.URL); err != nil {
			return fmt.Errorf("notify.webhook.url: %w", err)
		}
	}
	if c.Notify.MQTT.Broker != "" {
		if err := validateMQTTBroker(c.Notify.MQTT.Broker); err != nil {
			return fmt.Errorf("notify.mqtt.broker: %w", err)
		}
		if c.Notify.MQTT.QoS < 0 || c.Notify.MQTT.QoS > 2 {
			return fmt.Errorf("notify.mqtt.qos must be 0, 1, or 2, got %d", c.Notify.MQTT.QoS)
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rate_limit_per_minute must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("logging.level %q is invalid", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console", "pretty":
	default:
		return fmt.Errorf("logging.format must be json or console, got: %s", c.Logging.Format)
	}
	return nil
}
