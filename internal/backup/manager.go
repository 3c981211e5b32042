// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
manager.go - Core Backup Manager

The Manager owns every configured routine and the collaborators a job needs:
the cluster each routine reads from, the storage adapter its artifacts go
to, the catalog, and the job tracker.

Manager Responsibilities:
  - Backup execution (manager_backup.go)
  - Retention after each full backup (retention.go)
  - Point-in-time restore (restore.go)
  - Interval scheduling (manager_scheduler.go)

Thread Safety:
Routine definitions are fixed at construction. Per-routine exclusion comes
from the job tracker, which admits one RUNNING job per routine. Background
jobs are tracked in a WaitGroup so Close can wait for them.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/storage"
)

// Options wires a Manager.
type Options struct {
	Routines     []Routine
	Sources      map[string]cluster.Source
	Destinations map[string]cluster.Destination
	Storage      map[string]storage.Adapter
	Catalog      *catalog.Catalog
	Tracker      *jobs.Tracker

	// Breaker settings for destination writes; nil uses defaults.
	Breaker *cluster.BreakerSettings
	// Observer receives catalog changes; may be nil.
	Observer Observer
	// Clock stamps backups. Defaults to time.Now.
	Clock func() time.Time
}

// Manager runs backups, retention and restores.
type Manager struct {
	routines     map[string]Routine
	names        []string
	sources      map[string]cluster.Source
	destinations map[string]cluster.Destination
	storage      map[string]storage.Adapter
	catalog      *catalog.Catalog
	tracker      *jobs.Tracker
	observer     Observer
	clock        func() time.Time

	breakerSettings cluster.BreakerSettings
	breakersMu      sync.Mutex
	breakers        map[string]cluster.Destination

	// mu orders job admission against Close so bg.Add never races bg.Wait.
	mu     sync.Mutex
	closed bool
	bg     sync.WaitGroup
}

// NewManager validates opts and builds a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Catalog == nil {
		return nil, errors.New("backup: catalog is required")
	}
	if opts.Tracker == nil {
		return nil, errors.New("backup: job tracker is required")
	}

	m := &Manager{
		routines:        make(map[string]Routine, len(opts.Routines)),
		sources:         opts.Sources,
		destinations:    opts.Destinations,
		storage:         opts.Storage,
		catalog:         opts.Catalog,
		tracker:         opts.Tracker,
		observer:        opts.Observer,
		clock:           opts.Clock,
		breakerSettings: cluster.DefaultBreakerSettings(),
		breakers:        make(map[string]cluster.Destination),
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if opts.Breaker != nil {
		m.breakerSettings = *opts.Breaker
	}

	for _, r := range opts.Routines {
		if r.Name == "" {
			return nil, errors.New("backup: routine name is required")
		}
		if _, dup := m.routines[r.Name]; dup {
			return nil, fmt.Errorf("backup: duplicate routine %q", r.Name)
		}
		if _, ok := m.sources[r.SourceCluster]; !ok {
			return nil, fmt.Errorf("backup: routine %q references unknown cluster %q", r.Name, r.SourceCluster)
		}
		if _, ok := m.storage[r.Storage]; !ok {
			return nil, fmt.Errorf("backup: routine %q references unknown storage %q", r.Name, r.Storage)
		}
		if r.PartitionFilter != nil {
			if err := r.PartitionFilter.Validate(); err != nil {
				return nil, fmt.Errorf("backup: routine %q: %w", r.Name, err)
			}
		}
		if r.Policy.Retention.Full != nil && *r.Policy.Retention.Full < 1 {
			return nil, fmt.Errorf("backup: routine %q: retention must keep at least one full backup", r.Name)
		}
		m.routines[r.Name] = r
		m.names = append(m.names, r.Name)
	}
	slices.Sort(m.names)

	logging.Info().Int("routines", len(m.names)).Msg("Backup manager initialized")
	return m, nil
}

// Routines returns every routine sorted by name.
func (m *Manager) Routines() []Routine {
	out := make([]Routine, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, m.routines[n])
	}
	return out
}

// Routine looks up a routine by name.
func (m *Manager) Routine(name string) (Routine, error) {
	r, ok := m.routines[name]
	if !ok {
		return Routine{}, fmt.Errorf("%w: %s", ErrUnknownRoutine, name)
	}
	return r, nil
}

// Catalog exposes the backup catalog for read access.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

// Tracker exposes the job tracker.
func (m *Manager) Tracker() *jobs.Tracker {
	return m.tracker
}

// destination returns the circuit-breaker-wrapped destination named name.
func (m *Manager) destination(name string) (cluster.Destination, error) {
	m.breakersMu.Lock()
	defer m.breakersMu.Unlock()

	if d, ok := m.breakers[name]; ok {
		return d, nil
	}
	dest, ok := m.destinations[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown destination cluster %q", ErrInvalidRequest, name)
	}
	d := cluster.NewBreakerDestination(name, dest, m.breakerSettings)
	m.breakers[name] = d
	return d, nil
}

// startJob starts a tracked job for routine unless Close has begun. Every
// job it returns must end through finish.
func (m *Manager) startJob(ctx context.Context, routine string, kind jobs.Kind, total int64) (*jobs.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	job, err := m.tracker.Start(ctx, routine, kind, total)
	if err != nil {
		return nil, err
	}
	m.bg.Add(1)
	return job, nil
}

// finish finishes job with err and releases Close.
func (m *Manager) finish(job *jobs.Job, err error) jobs.Snapshot {
	defer m.bg.Done()
	return job.Finish(err)
}

// goBackground runs fn for job and finishes the job with its result.
func (m *Manager) goBackground(job *jobs.Job, fn func() error) {
	go func() {
		m.finish(job, fn())
	}()
}

// Close cancels running jobs and waits for them to finish or ctx to end.
// Jobs started afterwards fail with ErrManagerClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if n := m.tracker.CancelAll(); n > 0 {
		logging.Info().Int("jobs", n).Msg("Cancelling running jobs")
	}
	done := make(chan struct{})
	go func() {
		m.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for jobs: %w", ctx.Err())
	}
}
