// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment variables and config files.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml) for persistent settings
//  3. Environment Variables: Override any setting via environment variables
//
// Configuration Categories:
//
//  1. Orchestration:
//     - Engine: Worker pool bound, retry count and backoff base
//     - Retention: Sweep timezone and pair concurrency
//     - Scheduler: Cron timezone and seeded maintenance schedule
//
//  2. Infrastructure:
//     - Database: DuckDB configuration (path, memory)
//     - Artifacts: Base directory and archive compression
//     - Events: Run event bus backend (in-process or NATS)
//     - Server: Operations HTTP server (metrics, health)
//
//  3. Notifications:
//     - Notify: Webhook and MQTT sinks with circuit breaker settings
//
//  4. Observability:
//     - Logging: Log levels and output formats
//
// Example:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    logging.Fatal().Err(err).Msg("Failed to load configuration")
//	}
//	db, err := database.New(&cfg.Database)
type Config struct {
	Database  DatabaseConfig  `koanf:"database"`
	Engine    EngineConfig    `koanf:"engine"`
	Retention RetentionConfig `koanf:"retention"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
	Artifacts ArtifactsConfig `koanf:"artifacts"`
	Events    EventsConfig    `koanf:"events"`
	Notify    NotifyConfig    `koanf:"notify"`
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// DatabaseConfig holds DuckDB settings
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // Number of DuckDB threads (0 = use NumCPU)
}

// EngineConfig holds execution engine defaults
type EngineConfig struct {
	MaxConcurrency int           `koanf:"max_concurrency"`
	MaxRetries     int           `koanf:"max_retries"`
	BackoffBase    time.Duration `koanf:"backoff_base"`
	TargetTimeout  time.Duration `koanf:"target_timeout"` // 0 = no per-target deadline
}

// RetentionConfig holds retention sweep settings
type RetentionConfig struct {
	// Timezone is the IANA zone used for "now" and bucket boundaries.
	Timezone         string `koanf:"timezone"`
	SweepConcurrency int    `koanf:"sweep_concurrency"`
}

// SchedulerConfig holds cron scheduler settings
type SchedulerConfig struct {
	Timezone               string `koanf:"timezone"`
	RetentionSweepSchedule string `koanf:"retention_sweep_schedule"`
}

// ArtifactsConfig holds artifact storage settings
type ArtifactsConfig struct {
	BaseDir          string `koanf:"base_dir"`
	Compression      string `koanf:"compression"` // gzip, zstd, none
	CompressionLevel string `koanf:"compression_level"`
}

// EventsConfig holds run event bus settings
type EventsConfig struct {
	Backend       string        `koanf:"backend"` // memory, nats
	NATSURL       string        `koanf:"nats_url"`
	Topic         string        `koanf:"topic"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// NotifyConfig holds failure notification settings
type NotifyConfig struct {
	Webhook WebhookConfig `koanf:"webhook"`
	MQTT    MQTTConfig    `koanf:"mqtt"`
	Breaker BreakerConfig `koanf:"breaker"`
}

// WebhookConfig configures the generic webhook sink
type WebhookConfig struct {
	URL       string            `koanf:"url"`
	Headers   map[string]string `koanf:"headers"`
	RateLimit time.Duration     `koanf:"rate_limit"`
	Timeout   time.Duration     `koanf:"timeout"`
}

// MQTTConfig configures the MQTT sink
type MQTTConfig struct {
	Broker   string `koanf:"broker"`
	Topic    string `koanf:"topic"`
	ClientID string `koanf:"client_id"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	QoS      int    `koanf:"qos"`
}

// BreakerConfig configures the circuit breaker wrapped around each sink
type BreakerConfig struct {
	MaxFailures uint32        `koanf:"max_failures"`
	Timeout     time.Duration `koanf:"timeout"`
}

// ServerConfig holds operations HTTP server settings. APIToken is the
// bearer token of the write endpoints; empty disables them.
type ServerConfig struct {
	Host               string        `koanf:"host"`
	Port               int           `koanf:"port"`
	Timeout            time.Duration `koanf:"timeout"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	APIToken           string        `koanf:"api_token"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Location returns the retention timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Retention.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SchedulerLocation returns the cron timezone, falling back to the retention zone.
func (c *Config) SchedulerLocation() *time.Location {
	if c.Scheduler.Timezone == "" {
		return c.Location()
	}
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration using Koanf v2 with layered sources.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
