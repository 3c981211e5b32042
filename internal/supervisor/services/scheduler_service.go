// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package services

import (
	"context"
	"fmt"
)

// StartStopper matches the backup scheduler's lifecycle.
// Satisfied by *backup.Scheduler.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop() error
}

// SchedulerService adapts the scheduler's Start/Stop lifecycle to suture:
// Start, wait for cancellation, Stop.
type SchedulerService struct {
	scheduler StartStopper
	name      string
}

// NewSchedulerService wraps scheduler.
//
//	tree.AddSchedulingService(services.NewSchedulerService(backup.NewScheduler(manager)))
func NewSchedulerService(scheduler StartStopper) *SchedulerService {
	return &SchedulerService{
		scheduler: scheduler,
		name:      "backup-scheduler",
	}
}

// Serve implements suture.Service. If Start fails the error is returned
// and suture restarts the service under its backoff policy.
func (s *SchedulerService) Serve(ctx context.Context) error {
	if err := s.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("backup scheduler start failed: %w", err)
	}

	<-ctx.Done()

	if err := s.scheduler.Stop(); err != nil {
		return fmt.Errorf("backup scheduler stop failed: %w", err)
	}
	return ctx.Err()
}

// String names the service in supervisor logs.
func (s *SchedulerService) String() string {
	return s.name
}
