// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
restore.go - Point-in-Time Restore

A restore resolves a chain of backups from the catalog, the newest full at
or before the target plus (for timestamp restores) every incremental after
it up to the target, and replays the chain into a destination cluster.

Only the chronologically last write of each key may survive. Two modes get
there:

  - Reordering (default): every artifact is read first into a
    last-writer-wins index. Superseded writes are counted as skipped. The
    index is then written once per key, in first-seen order.
  - Strict order (DisableReordering): artifacts are replayed oldest first
    and later writes overwrite earlier ones in the destination.

Writers are sharded by key digest so one key always goes through one writer,
which keeps per-key order under parallel writes in both modes.

Failure Handling:
  - Each batch is retried with exponential backoff up to MaxRetries times
    through a circuit breaker on the destination. Exhaustion fails the job
    with ErrWriteRetryExhausted.
  - Writes already committed stay committed. Re-running the restore
    converges to the same state because every write is an idempotent upsert.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/backstop/internal/bandwidth"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
	"github.com/tomtom215/backstop/internal/storage"
)

// maxRetryDelay caps the backoff between write attempts.
const maxRetryDelay = 30 * time.Second

type restoreRun struct {
	req     RestoreRequest
	routine Routine
	target  time.Time
	chain   []catalog.Record
	adapter storage.Adapter
	dest    cluster.Destination
	job     *jobs.Job
	filter  cluster.Scan
}

// Restore replays the backup chain for req and waits for it to finish.
func (m *Manager) Restore(ctx context.Context, req RestoreRequest) (jobs.Snapshot, error) {
	run, err := m.beginRestore(ctx, req)
	if err != nil {
		return jobs.Snapshot{}, err
	}
	err = m.runRestore(run)
	return m.finish(run.job, err), err
}

// StartRestore starts a restore in the background and returns once its job
// is RUNNING. Chain resolution errors such as ErrNoBaseBackup are returned
// here and no job is started.
func (m *Manager) StartRestore(ctx context.Context, req RestoreRequest) (*jobs.Job, error) {
	run, err := m.beginRestore(context.WithoutCancel(ctx), req)
	if err != nil {
		return nil, err
	}
	m.goBackground(run.job, func() error {
		return m.runRestore(run)
	})
	return run.job, nil
}

// RestoreChain returns the backups a restore of routine to target would
// replay, base full first.
func (m *Manager) RestoreChain(routine string, kind RestoreKind, target time.Time) ([]catalog.Record, error) {
	if _, err := m.Routine(routine); err != nil {
		return nil, err
	}
	if target.IsZero() {
		target = m.clock()
	}
	full, ok := m.catalog.LatestFullAtOrBefore(routine, target)
	if !ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrNoBaseBackup, routine, target.Format(time.RFC3339Nano))
	}
	chain := []catalog.Record{full}
	if kind != RestoreFull {
		chain = append(chain, m.catalog.IncrementalsBetween(routine, full.Timestamp, target)...)
	}
	return chain, nil
}

// chainGaps describes incrementals that do not start where the previous
// backup in the chain ended.
func chainGaps(chain []catalog.Record) []string {
	var gaps []string
	for i := 1; i < len(chain); i++ {
		prev, cur := chain[i-1], chain[i]
		if !cur.FromTimestamp.Equal(prev.Timestamp) {
			gaps = append(gaps, fmt.Sprintf("incremental %s starts at %s but the previous backup ends at %s",
				cur.ArtifactKey, cur.FromTimestamp.Format(time.RFC3339Nano), prev.Timestamp.Format(time.RFC3339Nano)))
		}
	}
	return gaps
}

func (m *Manager) beginRestore(ctx context.Context, req RestoreRequest) (*restoreRun, error) {
	r, err := m.Routine(req.Routine)
	if err != nil {
		return nil, err
	}
	switch req.Kind {
	case "":
		req.Kind = RestoreTimestamp
	case RestoreFull, RestoreTimestamp:
	default:
		return nil, fmt.Errorf("%w: unknown restore kind %q", ErrInvalidRequest, req.Kind)
	}
	if pf := req.Policy.PartitionFilter; pf != nil {
		if err := pf.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
		}
	}

	destName := req.Destination
	if destName == "" {
		destName = r.SourceCluster
	}
	dest, err := m.destination(destName)
	if err != nil {
		return nil, err
	}

	target := req.Target
	if target.IsZero() {
		target = m.clock()
	}
	chain, err := m.RestoreChain(r.Name, req.Kind, target)
	if err != nil {
		return nil, err
	}

	var total, bytes int64
	for _, rec := range chain {
		total += rec.RecordCount
		bytes += rec.ByteCount
	}

	job, err := m.startJob(ctx, r.Name, restoreJobKind(req.Kind), total)
	if err != nil {
		return nil, err
	}
	job.SeedEstimate(bandwidth.EstimateDuration(req.Policy.limits(), total, bytes))

	for _, gap := range chainGaps(chain) {
		job.Warn(gap)
		logging.Ctx(job.Context()).Warn().Str("gap", gap).Msg("Restore chain has a gap")
	}

	return &restoreRun{
		req:     req,
		routine: r,
		target:  target,
		chain:   chain,
		adapter: m.storage[r.Storage],
		dest:    dest,
		job:     job,
		filter:  req.Policy.filter(),
	}, nil
}

func (m *Manager) runRestore(run *restoreRun) error {
	pol := run.req.Policy
	ctx := run.job.Context()
	if d := pol.totalTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	log := logging.Ctx(ctx)
	log.Info().
		Time("target", run.target).
		Int("backups", len(run.chain)).
		Str("destination", run.req.Destination).
		Bool("reordering", !run.req.DisableReordering).
		Int("writers", pol.writers()).
		Msg("Restore started")

	gov := bandwidth.NewGovernor(pol.limits())
	shards := make([]chan cluster.Record, pol.writers())

	g, gctx := errgroup.WithContext(ctx)
	for i := range shards {
		ch := make(chan cluster.Record, pol.batchSize())
		shards[i] = ch
		g.Go(func() error {
			return m.restoreWriter(gctx, run, ch)
		})
	}

	dispatch := func(ctx context.Context, rec cluster.Record, size int) error {
		if err := gov.Acquire(ctx, 1, size); err != nil {
			return err
		}
		ch := shards[rec.Key.Digest()%uint64(len(shards))]
		select {
		case ch <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	g.Go(func() error {
		defer func() {
			for _, ch := range shards {
				close(ch)
			}
		}()
		if run.req.DisableReordering {
			return m.replayInOrder(gctx, run, dispatch)
		}
		return m.replayReordered(gctx, run, dispatch)
	})

	err := timeoutError(g.Wait(), pol.totalTimeout(), run.job.CancelRequested())

	s := run.job.Snapshot()
	name := run.routine.Name
	metrics.RecordRecords(name, "restore", "read", s.ReadRecords)
	metrics.RecordRecords(name, "restore", "inserted", s.InsertedRecords)
	metrics.RecordRecords(name, "restore", "skipped", s.SkippedRecords)
	metrics.RecordRecords(name, "restore", "ignored", s.IgnoredRecords)
	metrics.BytesTotal.WithLabelValues(name, "restore").Add(float64(s.TotalBytes))

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).
			Int64("read", s.ReadRecords).
			Int64("inserted", s.InsertedRecords).
			Int64("skipped", s.SkippedRecords).
			Msg("Restore failed")
	}
	return err
}

type dispatchFunc func(ctx context.Context, rec cluster.Record, size int) error

// replayInOrder streams the chain oldest first straight to the writers.
func (m *Manager) replayInOrder(ctx context.Context, run *restoreRun, dispatch dispatchFunc) error {
	for _, b := range run.chain {
		for d, err := range readArtifact(ctx, run.adapter, b.ArtifactKey, run.req.Policy.socketTimeout()) {
			if err != nil {
				return err
			}
			if !run.admit(d) {
				continue
			}
			if err := dispatch(ctx, d.Record, d.size); err != nil {
				return err
			}
		}
	}
	return nil
}

type indexed struct {
	rec  cluster.Record
	size int
}

// replayReordered builds the last-writer-wins index, then writes it.
func (m *Manager) replayReordered(ctx context.Context, run *restoreRun, dispatch dispatchFunc) error {
	index := make(map[string]*indexed)
	var order []string

	for _, b := range run.chain {
		for d, err := range readArtifact(ctx, run.adapter, b.ArtifactKey, run.req.Policy.socketTimeout()) {
			if err != nil {
				return err
			}
			if !run.admit(d) {
				continue
			}
			k := d.Key.ID()
			if prev, ok := index[k]; ok {
				// Chain order is chronological, so the newer write replaces
				// the older one, which is never written.
				prev.rec, prev.size = d.Record, d.size
				run.job.AddSkipped(1)
				run.job.AddDone(1)
				continue
			}
			index[k] = &indexed{rec: d.Record, size: d.size}
			order = append(order, k)
		}
	}

	logging.Ctx(ctx).Debug().Int("keys", len(order)).Msg("Restore index built")
	for _, k := range order {
		e := index[k]
		if err := dispatch(ctx, e.rec, e.size); err != nil {
			return err
		}
		delete(index, k)
	}
	return nil
}

// admit counts a read record and applies the policy filters.
func (run *restoreRun) admit(d decodedRecord) bool {
	run.job.AddRead(1)
	run.job.AddBytes(int64(d.size))
	if !run.filter.Matches(d.Record) {
		run.job.AddIgnored(1)
		run.job.AddDone(1)
		return false
	}
	return true
}

// restoreWriter drains one shard, writing in batches. A batch is flushed
// when full or when nothing else is queued.
func (m *Manager) restoreWriter(ctx context.Context, run *restoreRun, ch <-chan cluster.Record) error {
	size := run.req.Policy.batchSize()
	batch := make([]cluster.Record, 0, size)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.writeBatch(ctx, run, batch); err != nil {
			return err
		}
		run.job.AddInserted(int64(len(batch)))
		run.job.AddDone(int64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return flush()
			}
			batch = append(batch, rec)
			if len(batch) >= size || len(ch) == 0 {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// writeBatch writes batch with bounded retries.
func (m *Manager) writeBatch(ctx context.Context, run *restoreRun, batch []cluster.Record) error {
	pol := run.req.Policy
	attempts := pol.attempts()

	var lastErr error
	err := retry.Do(
		func() error {
			lastErr = withCallTimeout(ctx, pol.socketTimeout(), "destination write", func(ctx context.Context) error {
				if len(batch) == 1 && pol.DisableBatchWrites {
					rec := batch[0]
					if rec.Deleted {
						return run.dest.Delete(ctx, rec.Key)
					}
					return run.dest.Upsert(ctx, rec)
				}
				return run.dest.WriteBatch(ctx, batch)
			})
			return lastErr
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(pol.retryDelay()),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return ctx.Err() == nil }),
		retry.OnRetry(func(n uint, err error) {
			if n+1 < attempts {
				metrics.WriteRetries.WithLabelValues(run.routine.Name).Inc()
			}
			logging.Ctx(ctx).Warn().Err(err).
				Uint("attempt", n+1).
				Uint("max_attempts", attempts).
				Int("batch", len(batch)).
				Msg("Destination write failed")
		}),
	)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrWriteRetryExhausted, attempts, lastErr)
}
