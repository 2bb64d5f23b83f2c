// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

// Package events carries finished runs over a watermill message bus.
//
// The run manager publishes a RunReport for every finished Run through
// Bus.PublishRun. NotifierService consumes the topic and forwards failed
// and partial runs to the notification dispatcher.
//
// Usage:
//
//	bus, err := events.NewBus(cfg.Events)
//	if err != nil {
//	    return err
//	}
//	defer bus.Close()
//
//	svc := events.NewNotifierService(bus, dispatcher)
//	go svc.Serve(ctx)
package events
