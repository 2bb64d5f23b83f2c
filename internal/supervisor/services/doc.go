// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package services adapts long-running homevault components to
// suture.Service, translating Start/Stop and ListenAndServe/Shutdown
// lifecycles into a context-aware Serve.
//
//	tree.AddDataService(services.NewSchedulerService(sched, 30*time.Second))
//	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
package services
