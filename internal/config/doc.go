// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package config provides layered configuration loading for Homevault.

Configuration is loaded with Koanf v2 from three layers, highest priority last:

 1. Built-in defaults (defaultConfig)
 2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/homevault/config.yaml)
 3. Environment variables (HOMEVAULT_*, plus a few conventional names)

Example config.yaml:

	database:
	  path: /data/homevault.duckdb
	engine:
	  max_concurrency: 4
	  max_retries: 1
	  backoff_base: 2s
	retention:
	  timezone: Europe/Berlin
	artifacts:
	  base_dir: /srv/backups
	  compression: zstd
	notify:
	  webhook:
	    url: https://ntfy.example.com/homevault

Common environment variables:

	HOMEVAULT_DB_PATH          database.path
	HOMEVAULT_MAX_CONCURRENCY  engine.max_concurrency
	HOMEVAULT_ARTIFACTS_DIR    artifacts.base_dir
	TZ / HOMEVAULT_TIMEZONE    retention.timezone
	HOMEVAULT_WEBHOOK_URL      notify.webhook.url
	LOG_LEVEL                  logging.level

Validation runs after unmarshaling; an invalid timezone or cron expression
fails startup rather than producing nondeterministic retention buckets.
*/
package config
