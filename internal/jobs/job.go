// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Kind names what a job does.
type Kind string

const (
	KindBackupFull        Kind = "backup_full"
	KindBackupIncremental Kind = "backup_incremental"
	KindRestoreFull       Kind = "restore_full"
	KindRestoreTimestamp  Kind = "restore_timestamp"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusRunning   Status = "RUNNING"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusCancelled
}

// errCancelRequested is the context cause set by Cancel.
var errCancelRequested = errors.New("job cancelled by request")

// Snapshot is an immutable view of a job's progress.
type Snapshot struct {
	ID      string `json:"id"`
	Routine string `json:"routine"`
	Kind    Kind   `json:"kind"`
	Status  Status `json:"status"`

	ReadRecords     int64 `json:"read_records"`
	InsertedRecords int64 `json:"inserted_records"`
	SkippedRecords  int64 `json:"skipped_records"`
	// IgnoredRecords is the part of SkippedRecords removed by set or partition filters.
	IgnoredRecords int64 `json:"ignored_records"`
	TotalBytes     int64 `json:"total_bytes"`

	TotalRecords   int64   `json:"total_records"`
	DoneRecords    int64   `json:"done_records"`
	PercentageDone float64 `json:"percentage_done"`

	RecordsPerSecond float64 `json:"records_per_second"`
	BytesPerSecond   float64 `json:"bytes_per_second"`

	StartTime        time.Time  `json:"start_time"`
	FinishTime       *time.Time `json:"finish_time,omitempty"`
	EstimatedEndTime *time.Time `json:"estimated_end_time,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Job is one running backup or restore. Counters are atomics so workers
// update them without coordination; Snapshot never blocks.
type Job struct {
	id      string
	routine string
	kind    Kind
	start   time.Time
	clock   func() time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	read     atomic.Int64
	inserted atomic.Int64
	skipped  atomic.Int64
	ignored  atomic.Int64
	bytes    atomic.Int64
	done     atomic.Int64
	total    atomic.Int64

	cancelRequested atomic.Bool
	warnings        atomic.Pointer[[]string]
	warnMu          sync.Mutex

	published atomic.Pointer[Snapshot]
	final     atomic.Pointer[Snapshot]
	finished  chan struct{}
	finish    sync.Once

	onFinish func(*Job, Snapshot)
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Routine returns the routine the job runs for.
func (j *Job) Routine() string { return j.routine }

// Kind returns the job kind.
func (j *Job) Kind() Kind { return j.kind }

// Context is cancelled when the job is cancelled or finished. Workers check
// it at batch boundaries.
func (j *Job) Context() context.Context { return j.ctx }

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.finished }

func (j *Job) AddRead(n int64)     { j.read.Add(n) }
func (j *Job) AddInserted(n int64) { j.inserted.Add(n) }
func (j *Job) AddSkipped(n int64)  { j.skipped.Add(n) }
func (j *Job) AddBytes(n int64)    { j.bytes.Add(n) }
func (j *Job) AddDone(n int64)     { j.done.Add(n) }

// AddIgnored counts filtered-out records. They are also skipped.
func (j *Job) AddIgnored(n int64) {
	j.ignored.Add(n)
	j.skipped.Add(n)
}

// SetTotal sets the expected number of records. Totals only grow.
func (j *Job) SetTotal(n int64) {
	for {
		cur := j.total.Load()
		if n <= cur || j.total.CompareAndSwap(cur, n) {
			return
		}
	}
}

// SeedEstimate sets the completion estimate used until throughput has been
// measured. A non-positive d is ignored.
func (j *Job) SeedEstimate(d time.Duration) {
	if d <= 0 {
		return
	}
	end := j.start.Add(d)
	for {
		prev := j.published.Load()
		next := *prev
		if next.EstimatedEndTime != nil && !end.After(*next.EstimatedEndTime) {
			return
		}
		next.EstimatedEndTime = &end
		if j.published.CompareAndSwap(prev, &next) {
			return
		}
	}
}

// Warn records a non-fatal problem surfaced in snapshots.
func (j *Job) Warn(msg string) {
	j.warnMu.Lock()
	defer j.warnMu.Unlock()
	var next []string
	if p := j.warnings.Load(); p != nil {
		next = append(next, *p...)
	}
	next = append(next, msg)
	j.warnings.Store(&next)
}

// Cancel requests cooperative cancellation.
func (j *Job) Cancel() {
	j.cancelRequested.Store(true)
	j.cancel(errCancelRequested)
}

// CancelRequested reports whether Cancel was called.
func (j *Job) CancelRequested() bool {
	return j.cancelRequested.Load()
}

// Snapshot returns the job's progress. While running, DoneRecords,
// PercentageDone and EstimatedEndTime never decrease between calls.
func (j *Job) Snapshot() Snapshot {
	if f := j.final.Load(); f != nil {
		return *f
	}
	for {
		prev := j.published.Load()
		next := j.compute(prev, j.clock())
		if j.published.CompareAndSwap(prev, &next) {
			return next
		}
	}
}

// compute merges fresh counters with the previously published snapshot.
func (j *Job) compute(prev *Snapshot, now time.Time) Snapshot {
	s := Snapshot{
		ID:              j.id,
		Routine:         j.routine,
		Kind:            j.kind,
		Status:          StatusRunning,
		ReadRecords:     j.read.Load(),
		InsertedRecords: j.inserted.Load(),
		SkippedRecords:  j.skipped.Load(),
		IgnoredRecords:  j.ignored.Load(),
		TotalBytes:      j.bytes.Load(),
		TotalRecords:    j.total.Load(),
		DoneRecords:     max(j.done.Load(), prev.DoneRecords),
		StartTime:       j.start,
	}
	if p := j.warnings.Load(); p != nil {
		s.Warnings = *p
	}

	if s.TotalRecords > 0 {
		s.PercentageDone = min(100, float64(s.DoneRecords)/float64(s.TotalRecords)*100)
	}
	s.PercentageDone = max(s.PercentageDone, prev.PercentageDone)

	elapsed := now.Sub(j.start).Seconds()
	if elapsed > 0 {
		s.RecordsPerSecond = float64(s.DoneRecords) / elapsed
		s.BytesPerSecond = float64(s.TotalBytes) / elapsed
	}

	s.EstimatedEndTime = prev.EstimatedEndTime
	if s.RecordsPerSecond > 0 && s.TotalRecords > 0 {
		remaining := max(s.TotalRecords-s.DoneRecords, 0)
		end := now.Add(time.Duration(float64(remaining) / s.RecordsPerSecond * float64(time.Second)))
		if prev.EstimatedEndTime == nil || end.After(*prev.EstimatedEndTime) {
			s.EstimatedEndTime = &end
		}
	}
	return s
}

// Finish moves the job to its terminal state: DONE for a nil error,
// CANCELLED after Cancel, FAILED otherwise. Only the first call counts.
func (j *Job) Finish(err error) Snapshot {
	j.finish.Do(func() {
		now := j.clock()
		prev := j.published.Load()
		s := j.compute(prev, now)
		s.FinishTime = &now

		switch {
		case j.cancelRequested.Load():
			s.Status = StatusCancelled
			if err != nil && !errors.Is(err, context.Canceled) {
				s.Error = err.Error()
			}
		case err != nil:
			s.Status = StatusFailed
			s.Error = err.Error()
		default:
			s.Status = StatusDone
			if s.TotalRecords > 0 && s.DoneRecords >= s.TotalRecords {
				s.PercentageDone = 100
			}
		}
		if s.Status == StatusDone {
			s.EstimatedEndTime = &now
		}

		j.final.Store(&s)
		j.cancel(nil)
		if j.onFinish != nil {
			j.onFinish(j, s)
		}
		close(j.finished)
	})
	return *j.final.Load()
}
