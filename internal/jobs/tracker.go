// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
)

var (
	// ErrJobAlreadyRunning is returned by Start while the routine has a RUNNING job.
	ErrJobAlreadyRunning = errors.New("a job is already running for this routine")
	// ErrNoRunningJob is returned by Cancel when nothing is running.
	ErrNoRunningJob = errors.New("no running job for this routine")
)

// FinishHook observes every job reaching a terminal state.
type FinishHook func(Snapshot)

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// WithFinishHook registers h at construction time.
func WithFinishHook(h FinishHook) Option {
	return func(t *Tracker) { t.hooks = append(t.hooks, h) }
}

// Tracker holds at most one RUNNING job per routine and the last finished
// snapshot of each.
type Tracker struct {
	clock func() time.Time
	cells sync.Map // routine -> *cell

	hooksMu sync.RWMutex
	hooks   []FinishHook
}

type cell struct {
	running atomic.Pointer[Job]
	last    atomic.Pointer[Snapshot]
}

// NewTracker creates an empty tracker.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{clock: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnFinish adds a hook called after each job finishes. Hooks run on the
// finishing goroutine and must not block.
func (t *Tracker) OnFinish(h FinishHook) {
	t.hooksMu.Lock()
	defer t.hooksMu.Unlock()
	t.hooks = append(t.hooks, h)
}

func (t *Tracker) cellFor(routine string) *cell {
	if c, ok := t.cells.Load(routine); ok {
		return c.(*cell)
	}
	c, _ := t.cells.LoadOrStore(routine, &cell{})
	return c.(*cell)
}

// Start registers a RUNNING job for routine. The job's context derives from
// parent, so callers may pass a detached context for background work.
func (t *Tracker) Start(parent context.Context, routine string, kind Kind, total int64) (*Job, error) {
	c := t.cellFor(routine)
	if cur := c.running.Load(); cur != nil {
		return nil, fmt.Errorf("%w: %s (job %s)", ErrJobAlreadyRunning, routine, cur.id)
	}

	ctx, cancel := context.WithCancelCause(parent)
	now := t.clock()
	j := &Job{
		id:       uuid.NewString(),
		routine:  routine,
		kind:     kind,
		start:    now,
		clock:    t.clock,
		ctx:      ctx,
		cancel:   cancel,
		finished: make(chan struct{}),
		onFinish: t.finished,
	}
	j.total.Store(max(total, 0))
	j.published.Store(&Snapshot{
		ID:           j.id,
		Routine:      routine,
		Kind:         kind,
		Status:       StatusRunning,
		TotalRecords: j.total.Load(),
		StartTime:    now,
	})
	j.ctx = logging.ContextWithJob(ctx, logging.JobFields{Routine: routine, JobID: j.id, Kind: string(kind)})

	if !c.running.CompareAndSwap(nil, j) {
		cancel(nil)
		return nil, fmt.Errorf("%w: %s", ErrJobAlreadyRunning, routine)
	}

	metrics.JobsRunning.Inc()
	logging.Ctx(j.ctx).Info().Int64("total_records", total).Msg("Job started")
	return j, nil
}

func (t *Tracker) finished(j *Job, s Snapshot) {
	c := t.cellFor(j.routine)
	c.last.Store(&s)
	c.running.CompareAndSwap(j, nil)

	metrics.JobsRunning.Dec()
	metrics.RecordJobFinished(j.routine, string(j.kind), string(s.Status), s.FinishTime.Sub(s.StartTime))

	ev := logging.Ctx(j.ctx).Info()
	if s.Status == StatusFailed {
		ev = logging.Ctx(j.ctx).Error().Str("error", s.Error)
	}
	ev.Str("status", string(s.Status)).
		Int64("read", s.ReadRecords).
		Int64("inserted", s.InsertedRecords).
		Int64("skipped", s.SkippedRecords).
		Int64("bytes", s.TotalBytes).
		Dur("elapsed", s.FinishTime.Sub(s.StartTime)).
		Msg("Job finished")

	t.hooksMu.RLock()
	hooks := t.hooks
	t.hooksMu.RUnlock()
	for _, h := range hooks {
		h(s)
	}
}

// Running returns the routine's RUNNING job.
func (t *Tracker) Running(routine string) (*Job, bool) {
	c, ok := t.cells.Load(routine)
	if !ok {
		return nil, false
	}
	j := c.(*cell).running.Load()
	return j, j != nil
}

// Current returns the running job's snapshot, or the last finished one.
// It never blocks on job workers.
func (t *Tracker) Current(routine string) (Snapshot, bool) {
	if j, ok := t.Running(routine); ok {
		return j.Snapshot(), true
	}
	return t.Last(routine)
}

// Last returns the most recently finished job of routine.
func (t *Tracker) Last(routine string) (Snapshot, bool) {
	c, ok := t.cells.Load(routine)
	if !ok {
		return Snapshot{}, false
	}
	s := c.(*cell).last.Load()
	if s == nil {
		return Snapshot{}, false
	}
	return *s, true
}

// Cancel requests cancellation of the routine's running job.
func (t *Tracker) Cancel(routine string) error {
	j, ok := t.Running(routine)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoRunningJob, routine)
	}
	j.Cancel()
	logging.Ctx(j.ctx).Info().Msg("Job cancellation requested")
	return nil
}

// CancelAll cancels every running job; used at shutdown.
func (t *Tracker) CancelAll() int {
	n := 0
	t.cells.Range(func(_, v any) bool {
		if j := v.(*cell).running.Load(); j != nil {
			j.Cancel()
			n++
		}
		return true
	})
	return n
}
