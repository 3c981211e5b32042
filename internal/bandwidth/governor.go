// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package bandwidth

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/tomtom215/backstop/internal/metrics"
)

// Limits describes the throughput ceilings of one job. Zero means unlimited.
type Limits struct {
	BytesPerSecond   int64
	RecordsPerSecond int
	Parallel         int
}

// MiBps converts a MiB/s figure to bytes per second.
func MiBps(n int) int64 {
	if n <= 0 {
		return 0
	}
	return int64(n) << 20
}

// EffectiveRecordRate returns the smaller of the positive rates, or 0 if
// neither is set. Restore policies carry both recordsPerSecond and tps.
func EffectiveRecordRate(a, b int) int {
	switch {
	case a <= 0:
		return max(b, 0)
	case b <= 0:
		return a
	default:
		return min(a, b)
	}
}

// Unlimited reports whether no limit is active.
func (l Limits) Unlimited() bool {
	return l.BytesPerSecond <= 0 && l.RecordsPerSecond <= 0 && l.Parallel <= 0
}

// Stats is a point-in-time view of what a Governor has admitted.
type Stats struct {
	Records int64
	Bytes   int64
	Waited  time.Duration
}

// Governor admits work at the minimum rate of its active limits.
// It is safe for concurrent use.
type Governor struct {
	limits  Limits
	bytes   *rate.Limiter
	records *rate.Limiter
	slots   *semaphore.Weighted

	grantedRecords atomic.Int64
	grantedBytes   atomic.Int64
	waitedNanos    atomic.Int64
}

// NewGovernor builds a governor for limits.
func NewGovernor(limits Limits) *Governor {
	g := &Governor{limits: limits}
	if limits.BytesPerSecond > 0 {
		g.bytes = newBucket(float64(limits.BytesPerSecond))
	}
	if limits.RecordsPerSecond > 0 {
		g.records = newBucket(float64(limits.RecordsPerSecond))
	}
	if limits.Parallel > 0 {
		g.slots = semaphore.NewWeighted(int64(limits.Parallel))
	}
	return g
}

// newBucket holds a tenth of a second of budget, at least one unit.
func newBucket(perSecond float64) *rate.Limiter {
	burst := int(perSecond / 10)
	if burst < 1 {
		burst = 1
	}
	l := rate.NewLimiter(rate.Limit(perSecond), burst)
	// Start empty so the opening burst is throttled too.
	l.AllowN(time.Now(), burst)
	return l
}

// Limits returns the configured limits.
func (g *Governor) Limits() Limits {
	return g.limits
}

// Acquire blocks until records and bytes are both admitted. It returns
// ctx.Err() when cancelled, and context.DeadlineExceeded without waiting when
// the admission would land after the context deadline.
func (g *Governor) Acquire(ctx context.Context, records, bytes int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	if err := waitAll(ctx, g.records, records); err != nil {
		return err
	}
	if err := waitAll(ctx, g.bytes, bytes); err != nil {
		return err
	}

	if waited := time.Since(start); g.records != nil || g.bytes != nil {
		g.waitedNanos.Add(int64(waited))
		if waited > time.Millisecond {
			metrics.RecordGovernorWait(g.limitName(), waited)
		}
	}
	g.grantedRecords.Add(int64(records))
	g.grantedBytes.Add(int64(bytes))
	return nil
}

// Enter reserves a fan-out slot. The returned release must be called exactly
// once. Without a parallel limit Enter never blocks.
func (g *Governor) Enter(ctx context.Context) (release func(), err error) {
	if g.slots == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return func() {}, nil
	}
	start := time.Now()
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.RecordGovernorWait("parallel", waited)
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			g.slots.Release(1)
		}
	}, nil
}

// Stats returns cumulative admissions. Values never decrease.
func (g *Governor) Stats() Stats {
	return Stats{
		Records: g.grantedRecords.Load(),
		Bytes:   g.grantedBytes.Load(),
		Waited:  time.Duration(g.waitedNanos.Load()),
	}
}

func (g *Governor) limitName() string {
	switch {
	case g.bytes != nil && g.records != nil:
		return "bytes_records"
	case g.bytes != nil:
		return "bytes"
	default:
		return "records"
	}
}

// waitAll waits for n tokens, slicing requests larger than the bucket.
func waitAll(ctx context.Context, l *rate.Limiter, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	burst := l.Burst()
	for n > 0 {
		chunk := min(n, burst)
		if err := l.WaitN(ctx, chunk); err != nil {
			return waitError(ctx, err)
		}
		n -= chunk
	}
	return nil
}

// waitError maps rate.Limiter failures onto context errors.
func waitError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if _, ok := ctx.Deadline(); ok {
		// WaitN refuses up front when the tokens arrive after the deadline.
		return context.DeadlineExceeded
	}
	return fmt.Errorf("throughput wait: %w", err)
}
