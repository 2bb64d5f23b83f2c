// Homevault - Homelab Backup Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/homevault

package services

import (
	"context"
	"fmt"
	"time"
)

// Scheduler matches the lifecycle of *scheduler.Scheduler.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// SchedulerService runs the cron scheduler under supervision.
//
// Start errors (for example the database being unreachable while loading
// jobs) are returned so suture backs off and retries. On shutdown the
// service waits up to drainTimeout for in-flight fires; a backup still
// running after that keeps its goroutine but the service returns.
type SchedulerService struct {
	scheduler    Scheduler
	drainTimeout time.Duration
}

// NewSchedulerService wraps a scheduler.
func NewSchedulerService(s Scheduler, drainTimeout time.Duration) *SchedulerService {
	if drainTimeout <= 0 {
		drainTimeout = 30 * time.Second
	}
	return &SchedulerService{scheduler: s, drainTimeout: drainTimeout}
}

// Serve implements suture.Service.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	if err := s.scheduler.Stop(stopCtx); err != nil {
		return err
	}
	return ctx.Err()
}

func (s *SchedulerService) String() string {
	return "scheduler"
}
