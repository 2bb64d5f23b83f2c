// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Engine.MaxConcurrency != 4 {
		t.Errorf("Engine.MaxConcurrency = %d, want 4", cfg.Engine.MaxConcurrency)
	}
	if cfg.Engine.MaxRetries != 1 {
		t.Errorf("Engine.MaxRetries = %d, want 1", cfg.Engine.MaxRetries)
	}
	if cfg.Engine.BackoffBase != 2*time.Second {
		t.Errorf("Engine.BackoffBase = %v, want 2s", cfg.Engine.BackoffBase)
	}
	if cfg.Retention.Timezone != "UTC" {
		t.Errorf("Retention.Timezone = %q, want UTC", cfg.Retention.Timezone)
	}
	if cfg.Scheduler.RetentionSweepSchedule != "0 3 * * *" {
		t.Errorf("Scheduler.RetentionSweepSchedule = %q, want 0 3 * * *", cfg.Scheduler.RetentionSweepSchedule)
	}
	if cfg.Events.Backend != "memory" {
		t.Errorf("Events.Backend = %q, want memory", cfg.Events.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

// isolateEnv pins the environment variables the loader reads.
func isolateEnv(t *testing.T) {
	t.Helper()
	for key := range envMappings {
		t.Setenv(strings.ToUpper(key), "")
		os.Unsetenv(strings.ToUpper(key)) //nolint:errcheck // restored by t.Setenv cleanup
	}
}

func TestLoadFromFile(t *testing.T) {
	isolateEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
database:
  path: /tmp/hv.duckdb
engine:
  max_concurrency: 8
  backoff_base: 500ms
retention:
  timezone: Europe/Berlin
artifacts:
  base_dir: /srv/backups
  compression: zstd
notify:
  webhook:
    url: https://ntfy.example.com/homevault
    headers:
      Authorization: Bearer abc
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/hv.duckdb" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Engine.MaxConcurrency != 8 {
		t.Errorf("Engine.MaxConcurrency = %d, want 8", cfg.Engine.MaxConcurrency)
	}
	if cfg.Engine.BackoffBase != 500*time.Millisecond {
		t.Errorf("Engine.BackoffBase = %v, want 500ms", cfg.Engine.BackoffBase)
	}
	// Untouched defaults survive the file layer
	if cfg.Engine.MaxRetries != 1 {
		t.Errorf("Engine.MaxRetries = %d, want default 1", cfg.Engine.MaxRetries)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location() = %v, want Europe/Berlin", cfg.Location())
	}
	if cfg.SchedulerLocation().String() != "Europe/Berlin" {
		t.Errorf("SchedulerLocation() should fall back to retention zone, got %v", cfg.SchedulerLocation())
	}
	if cfg.Artifacts.Compression != "zstd" {
		t.Errorf("Artifacts.Compression = %q, want zstd", cfg.Artifacts.Compression)
	}
	if got := cfg.Notify.Webhook.Headers["Authorization"]; got != "Bearer abc" {
		t.Errorf("webhook header = %q", got)
	}
}

func TestLoadFromFile_EnvOverridesFile(t *testing.T) {
	isolateEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  max_concurrency: 8\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("HOMEVAULT_MAX_CONCURRENCY", "2")
	t.Setenv("HOMEVAULT_BACKOFF_BASE", "1s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if cfg.Engine.MaxConcurrency != 2 {
		t.Errorf("Engine.MaxConcurrency = %d, want env value 2", cfg.Engine.MaxConcurrency)
	}
	if cfg.Engine.BackoffBase != time.Second {
		t.Errorf("Engine.BackoffBase = %v, want 1s", cfg.Engine.BackoffBase)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	t.Parallel()

	tests := []struct {
		env  string
		want string
	}{
		{"HOMEVAULT_DB_PATH", "database.path"},
		{"HOMEVAULT_MAX_RETRIES", "engine.max_retries"},
		{"TZ", "retention.timezone"},
		{"NATS_URL", "events.nats_url"},
		{"HOMEVAULT_API_TOKEN", "server.api_token"},
		{"HOME", ""},
		{"PATH", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid defaults", func(*Config) {}, ""},
		{"zero concurrency", func(c *Config) { c.Engine.MaxConcurrency = 0 }, "max_concurrency"},
		{"negative retries", func(c *Config) { c.Engine.MaxRetries = -1 }, "max_retries"},
		{"bad timezone", func(c *Config) { c.Retention.Timezone = "Mars/Olympus" }, "retention.timezone"},
		{"bad scheduler timezone", func(c *Config) { c.Scheduler.Timezone = "Nowhere" }, "scheduler.timezone"},
		{"bad sweep cron", func(c *Config) { c.Scheduler.RetentionSweepSchedule = "daily" }, "retention_sweep_schedule"},
		{"bad compression", func(c *Config) { c.Artifacts.Compression = "lz4" }, "compression"},
		{"bad events backend", func(c *Config) { c.Events.Backend = "kafka" }, "events.backend"},
		{"bad nats url", func(c *Config) { c.Events.Backend = "nats"; c.Events.NATSURL = "http://x" }, "nats_url"},
		{"bad webhook", func(c *Config) { c.Notify.Webhook.URL = "ftp://x" }, "webhook"},
		{"bad mqtt", func(c *Config) { c.Notify.MQTT.Broker = "http://ha:1883" }, "mqtt"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()

	s := ServerConfig{Host: "127.0.0.1", Port: 9477}
	if got := s.Addr(); got != "127.0.0.1:9477" {
		t.Errorf("Addr() = %q", got)
	}
}
