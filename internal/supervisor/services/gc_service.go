// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package services

import (
	"context"
	"time"

	"github.com/tomtom215/backstop/internal/logging"
)

// GCTarget is a badger-backed store whose value log can be collected.
// Satisfied by *catalog.BadgerStore and *cluster.Store.
type GCTarget interface {
	Name() string
	RunGC(discardRatio float64) error
}

// BadgerGCService periodically rewrites value log files of every target.
// GC failures are logged and retried on the next tick; they never restart
// the service.
type BadgerGCService struct {
	interval     time.Duration
	discardRatio float64
	targets      []GCTarget
	name         string
}

// NewBadgerGCService creates the service. A non-positive interval disables
// collection; the service then idles until shutdown.
func NewBadgerGCService(interval time.Duration, discardRatio float64, targets ...GCTarget) *BadgerGCService {
	if discardRatio <= 0 || discardRatio >= 1 {
		discardRatio = 0.5
	}
	return &BadgerGCService{
		interval:     interval,
		discardRatio: discardRatio,
		targets:      targets,
		name:         "badger-gc",
	}
}

// Serve implements suture.Service.
func (s *BadgerGCService) Serve(ctx context.Context) error {
	if s.interval <= 0 || len(s.targets) == 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *BadgerGCService) collect() {
	for _, t := range s.targets {
		start := time.Now()
		if err := t.RunGC(s.discardRatio); err != nil {
			logging.Warn().Err(err).Str("store", t.Name()).Msg("Value log GC failed")
			continue
		}
		logging.Debug().Str("store", t.Name()).Dur("duration", time.Since(start)).Msg("Value log GC pass complete")
	}
}

// String names the service in supervisor logs.
func (s *BadgerGCService) String() string {
	return s.name
}
