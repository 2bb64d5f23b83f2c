// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/homevault/config.yaml",
	"/etc/homevault/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:      "/data/homevault.duckdb",
			MaxMemory: "512MB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Engine: EngineConfig{
			MaxConcurrency: 4,
			MaxRetries:     1, // 2 attempts total
			BackoffBase:    2 * time.Second,
			TargetTimeout:  0,
		},
		Retention: RetentionConfig{
			Timezone:         "UTC",
			SweepConcurrency: 4,
		},
		Scheduler: SchedulerConfig{
			Timezone:               "", // Falls back to retention.timezone
			RetentionSweepSchedule: "0 3 * * *",
		},
		Artifacts: ArtifactsConfig{
			BaseDir:          "/data/artifacts",
			Compression:      "gzip",
			CompressionLevel: "default",
		},
		Events: EventsConfig{
			Backend:       "memory",
			NATSURL:       "nats://127.0.0.1:4222",
			Topic:         "homevault.runs.finished",
			MaxReconnects: -1, // Reconnect forever
			ReconnectWait: 2 * time.Second,
		},
		Notify: NotifyConfig{
			Webhook: WebhookConfig{
				RateLimit: 500 * time.Millisecond,
				Timeout:   10 * time.Second,
			},
			MQTT: MQTTConfig{
				Topic:    "homevault/runs",
				ClientID: "homevault",
				QoS:      1,
			},
			Breaker: BreakerConfig{
				MaxFailures: 5,
				Timeout:     time.Minute,
			},
		},
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               9477,
			Timeout:            30 * time.Second,
			RateLimitPerMinute: 120,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	return LoadFromFile(findConfigFile())
}

// LoadFromFile is LoadWithKoanf with an explicit config file path.
// An empty path skips the file layer.
func LoadFromFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// HOMEVAULT_DB_PATH -> database.path
	// HOMEVAULT_MAX_CONCURRENCY -> engine.max_concurrency
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// envMappings maps lower-cased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Database
	"homevault_db_path":       "database.path",
	"homevault_db_max_memory": "database.max_memory",
	"homevault_db_threads":    "database.threads",

	// Engine
	"homevault_max_concurrency": "engine.max_concurrency",
	"homevault_max_retries":     "engine.max_retries",
	"homevault_backoff_base":    "engine.backoff_base",
	"homevault_target_timeout":  "engine.target_timeout",

	// Retention and scheduler
	"tz":                                 "retention.timezone",
	"homevault_timezone":                 "retention.timezone",
	"homevault_retention_concurrency":    "retention.sweep_concurrency",
	"homevault_scheduler_timezone":       "scheduler.timezone",
	"homevault_retention_sweep_schedule": "scheduler.retention_sweep_schedule",

	// Artifacts
	"homevault_artifacts_dir":     "artifacts.base_dir",
	"homevault_compression":       "artifacts.compression",
	"homevault_compression_level": "artifacts.compression_level",

	// Events
	"homevault_events_backend": "events.backend",
	"nats_url":                 "events.nats_url",
	"homevault_events_topic":   "events.topic",

	// Notifications
	"homevault_webhook_url":        "notify.webhook.url",
	"homevault_webhook_rate_limit": "notify.webhook.rate_limit",
	"homevault_mqtt_broker":        "notify.mqtt.broker",
	"homevault_mqtt_topic":         "notify.mqtt.topic",
	"homevault_mqtt_client_id":     "notify.mqtt.client_id",
	"homevault_mqtt_username":      "notify.mqtt.username",
	"homevault_mqtt_password":      "notify.mqtt.password",
	"homevault_breaker_failures":   "notify.breaker.max_failures",
	"homevault_breaker_timeout":    "notify.breaker.timeout",

	// Server
	"http_host":            "server.host",
	"http_port":            "server.port",
	"http_timeout":         "server.timeout",
	"homevault_rate_limit": "server.rate_limit_per_minute",
	"homevault_api_token":  "server.api_token",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return an empty key and are skipped so that unrelated
// environment variables never pollute the config.
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
