// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

/*
Package supervisor provides process supervision for the homevault server
using suture v4.

# Overview

The supervisor tree organizes services into three layers for failure isolation:

	RootSupervisor ("homevault")
	├── DataSupervisor ("data-layer")
	│   └── SchedulerService (cron triggers for jobs and maintenance)
	├── MessagingSupervisor ("messaging-layer")
	│   └── NotifierService (run events to webhook/MQTT)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (metrics, health checks, ops API)

A failing notification sink or a port conflict on the ops server never
stops scheduled backups from firing.

# Restart Behavior

Crashed services are restarted with suture's failure decay and backoff.
Start errors, such as the database being unreachable while the scheduler
loads jobs, are returned from Serve so the restart policy applies to them
too.

# Logging

Supervisor events (service failures, restarts, backoff) are logged through
sutureslog into the zerolog-backed slog handler from the logging package.

# Usage Example

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewSchedulerService(sched, 30*time.Second))
	tree.AddMessagingService(events.NewNotifierService(bus, dispatcher))
	tree.AddAPIService(services.NewHTTPServerService(httpServer, 10*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    logging.Error().Err(err).Msg("Supervisor stopped")
	}
*/
package supervisor
