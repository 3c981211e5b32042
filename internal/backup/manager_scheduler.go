// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
manager_scheduler.go - Backup Scheduling

Routines with a FullInterval or IncrementalInterval are backed up on a timer.

Timer Logic:
  - A routine with no full backup gets one immediately.
  - Otherwise the next full is due FullInterval after the last full, and
    the next incremental IncrementalInterval after the last backup of
    either kind.
  - After a trigger the next run is one interval from now.
  - A trigger that finds the routine's previous job still RUNNING is
    skipped, not queued.

Integration:
The scheduler is started via Scheduler.Start() and stopped via Stop(). It
calls Manager.StartBackup, so scheduled jobs are ordinary tracked jobs.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
)

// idleWait is how long the loop sleeps when nothing is scheduled.
const idleWait = time.Hour

// ScheduledRun is the next planned trigger of one routine and kind.
type ScheduledRun struct {
	Routine string       `json:"routine"`
	Kind    catalog.Kind `json:"kind"`
	Next    time.Time    `json:"next"`
}

type scheduleEntry struct {
	routine  string
	kind     catalog.Kind
	interval time.Duration
	next     time.Time
}

// Scheduler triggers interval backups for a Manager.
type Scheduler struct {
	m   *Manager
	now func() time.Time

	mu      sync.Mutex
	entries []*scheduleEntry
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler for m's routines.
func NewScheduler(m *Manager) *Scheduler {
	return &Scheduler{m: m, now: time.Now}
}

// Start begins the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("backup scheduler is already running")
	}
	s.entries = s.initialSchedule()
	if len(s.entries) == 0 {
		logging.Info().Msg("No routines have a backup interval; scheduler idle")
	}

	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop stops the loop and waits for it to exit. Jobs it started keep running.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	close(s.stop)
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

// NextRuns lists upcoming triggers ordered by time.
func (s *Scheduler) NextRuns() []ScheduledRun {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ScheduledRun, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, ScheduledRun{Routine: e.routine, Kind: e.kind, Next: e.next})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Next.Before(out[j].Next) })
	return out
}

func (s *Scheduler) initialSchedule() []*scheduleEntry {
	now := s.now()
	var entries []*scheduleEntry
	for _, r := range s.m.Routines() {
		if r.FullInterval > 0 {
			next := now
			if fulls := s.m.catalog.FullsInRange(r.Name, nil, nil); len(fulls) > 0 {
				next = laterOf(fulls[len(fulls)-1].Timestamp.Add(r.FullInterval), now)
			}
			entries = append(entries, &scheduleEntry{routine: r.Name, kind: catalog.KindFull, interval: r.FullInterval, next: next})
		}
		if r.IncrementalInterval > 0 {
			next := now.Add(r.IncrementalInterval)
			if last, ok := s.m.catalog.Last(r.Name); ok {
				next = laterOf(last.Timestamp.Add(r.IncrementalInterval), now)
			}
			entries = append(entries, &scheduleEntry{routine: r.Name, kind: catalog.KindIncremental, interval: r.IncrementalInterval, next: next})
		}
	}
	return entries
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// runScheduler runs the backup scheduler loop
func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-timer.C:
			s.fireDue(ctx)
			timer.Reset(s.untilNext())
		}
	}
}

func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return idleWait
	}
	earliest := s.entries[0].next
	for _, e := range s.entries[1:] {
		if e.next.Before(earliest) {
			earliest = e.next
		}
	}
	return max(earliest.Sub(s.now()), 0)
}

// fireDue triggers every due entry. Fulls go before incrementals so a
// routine's first incremental has a base.
func (s *Scheduler) fireDue(ctx context.Context) {
	s.mu.Lock()
	now := s.now()
	var due []*scheduleEntry
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e)
			e.next = now.Add(e.interval)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].kind == catalog.KindFull && due[j].kind != catalog.KindFull
	})
	for _, e := range due {
		s.trigger(ctx, e.routine, e.kind)
	}
}

func (s *Scheduler) trigger(ctx context.Context, routine string, kind catalog.Kind) {
	job, err := s.m.StartBackup(ctx, routine, kind)
	switch {
	case err == nil:
		logging.Info().Str("routine", routine).Str("kind", string(kind)).Str("job_id", job.ID()).Msg("Scheduled backup started")
	case errors.Is(err, jobs.ErrJobAlreadyRunning):
		logging.Info().Str("routine", routine).Str("kind", string(kind)).Msg("Scheduled backup skipped: previous job still running")
	case errors.Is(err, ErrNoBaseBackup):
		logging.Warn().Str("routine", routine).Msg("Scheduled incremental skipped: no full backup yet")
	case errors.Is(err, ErrManagerClosed):
		logging.Debug().Str("routine", routine).Msg("Scheduled backup skipped: shutting down")
	default:
		logging.Error().Err(err).Str("routine", routine).Str("kind", string(kind)).Msg("Scheduled backup failed to start")
	}
}
