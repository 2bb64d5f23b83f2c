// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package main is the entry point for the Homevault server.

The server runs scheduled backups, maintenance retention sweeps and failure
notifications, and exposes an operations API. Manual backups, restores and
job edits sent to the API share the scheduler's run manager, so they take
the same locks as scheduled runs and job changes move live triggers.

# Application Architecture

The server implements a layered architecture with Suture v4 process supervision:

	RootSupervisor ("homevault")
	├── DataSupervisor ("data-layer")
	│   └── Cron scheduler (backup jobs and maintenance sweeps)
	├── MessagingSupervisor ("messaging-layer")
	│   └── Event notifier (run.finished events to webhook and MQTT sinks)
	└── APISupervisor ("api-layer")
	    └── HTTP Server (health, metrics, ledger and write endpoints)

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config files
 2. Logging: zerolog with the configured level and format
 3. Database: DuckDB ledger with schema migrations
 4. Plugins: built-in archive and S3 bucket plugins
 5. Engine: tag resolver, lock table and bounded worker pool
 6. Event bus: in-process channel or NATS
 7. Run manager and retention sweeper
 8. Scheduler, API router and the supervisor tree

# Configuration

Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
  - Environment variables (HOMEVAULT_ prefix)
  - Config file (config.yaml)
  - Built-in defaults

# Signal Handling

SIGINT and SIGTERM cancel the root context. The supervisor stops every
service in reverse layer order: the HTTP server drains in-flight requests,
the event notifier stops consuming, and the scheduler waits for running
jobs before returning. The database is closed last.

# Example Usage

	export HOMEVAULT_DB_PATH=/var/lib/homevault/homevault.duckdb
	export HOMEVAULT_ARTIFACTS_DIR=/srv/backups
	export HOMEVAULT_WEBHOOK_URL=https://ntfy.example.net/homevault
	export HOMEVAULT_API_TOKEN=$(openssl rand -hex 32)
	./homevault
*/
package main
