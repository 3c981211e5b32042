// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/backstop/internal/bandwidth"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
	"github.com/tomtom215/backstop/internal/storage"
)

// backupRun carries one backup from start to catalog append.
type backupRun struct {
	routine Routine
	kind    catalog.Kind
	job     *jobs.Job
	source  cluster.Source
	adapter storage.Adapter
}

// RunBackup takes a backup of routine and waits for it to finish.
func (m *Manager) RunBackup(ctx context.Context, routine string, kind catalog.Kind) (catalog.Record, error) {
	run, err := m.beginBackup(ctx, routine, kind)
	if err != nil {
		return catalog.Record{}, err
	}
	rec, err := m.runBackup(run)
	m.finish(run.job, err)
	return rec, err
}

// StartBackup starts a backup in the background and returns once its job is
// RUNNING. The job outlives ctx; cancel it through the tracker.
func (m *Manager) StartBackup(ctx context.Context, routine string, kind catalog.Kind) (*jobs.Job, error) {
	run, err := m.beginBackup(context.WithoutCancel(ctx), routine, kind)
	if err != nil {
		return nil, err
	}
	m.goBackground(run.job, func() error {
		_, err := m.runBackup(run)
		return err
	})
	return run.job, nil
}

func (m *Manager) beginBackup(ctx context.Context, name string, kind catalog.Kind) (*backupRun, error) {
	r, err := m.Routine(name)
	if err != nil {
		return nil, err
	}
	if kind != catalog.KindFull && kind != catalog.KindIncremental {
		return nil, fmt.Errorf("%w: unknown backup kind %q", ErrInvalidRequest, kind)
	}
	if kind == catalog.KindIncremental {
		if _, ok := m.catalog.Last(name); !ok {
			return nil, fmt.Errorf("%w: incremental backup of %s", ErrNoBaseBackup, name)
		}
	}

	job, err := m.startJob(ctx, name, backupJobKind(kind), 0)
	if err != nil {
		return nil, err
	}
	return &backupRun{
		routine: r,
		kind:    kind,
		job:     job,
		source:  m.sources[r.SourceCluster],
		adapter: m.storage[r.Storage],
	}, nil
}

func (m *Manager) runBackup(run *backupRun) (catalog.Record, error) {
	r, job := run.routine, run.job
	pol := r.Policy

	ctx := job.Context()
	if d := pol.totalTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	log := logging.Ctx(ctx)

	ts := run.source.Cut(m.clock)
	scan := r.scan()
	scan.Before = ts

	var from time.Time
	if run.kind == catalog.KindIncremental {
		// The job is exclusive now, so the last entry cannot move under us.
		last, ok := m.catalog.Last(r.Name)
		if !ok {
			return catalog.Record{}, fmt.Errorf("%w: incremental backup of %s", ErrNoBaseBackup, r.Name)
		}
		from = last.Timestamp
		scan.After = from
	} else {
		scan.LiveOnly = true
	}

	total, err := run.source.Count(ctx, scan)
	if err != nil {
		return catalog.Record{}, m.backupError(ctx, job, pol, fmt.Errorf("count source records: %w", err))
	}
	job.SetTotal(total)
	limits := pol.limits()
	job.SeedEstimate(bandwidth.EstimateDuration(limits, total, 0))

	key := ArtifactKey(r.Name, run.kind, ts)
	log.Info().
		Str("artifact", key).
		Time("from", from).
		Int64("records", total).
		Msg("Backup started")

	gov := bandwidth.NewGovernor(limits)
	parts := scan.Partitions.Split(max(pol.Parallel, 1))
	writers := make([]*artifactWriter, len(parts))

	g, gctx := errgroup.WithContext(ctx)
	for i, part := range parts {
		w := newArtifactWriter(run.adapter, gov, key, i, pol.fileLimitBytes(), pol.socketTimeout())
		writers[i] = w
		partScan := scan
		partScan.Partitions = part
		g.Go(func() error {
			return scanWorker(gctx, job, run.source, gov, w, partScan)
		})
	}
	if err := g.Wait(); err != nil {
		m.discardArtifact(ctx, run.adapter, key)
		return catalog.Record{}, m.backupError(ctx, job, pol, err)
	}

	rec := catalog.Record{
		RoutineID:     r.Name,
		Kind:          run.kind,
		Timestamp:     ts,
		FromTimestamp: from,
		Namespace:     r.Namespace,
		ArtifactKey:   key,
	}
	for _, w := range writers {
		rec.RecordCount += w.records
		rec.ByteCount += w.bytes
		rec.FileCount += w.files
	}

	if r.Sealed {
		if err := m.checkSealed(ctx, run.source, r, ts); err != nil {
			m.discardArtifact(ctx, run.adapter, key)
			return catalog.Record{}, m.backupError(ctx, job, pol, err)
		}
	}

	meta := ArtifactMetadata{
		Routine:   r.Name,
		Kind:      run.kind,
		Created:   ts,
		From:      from,
		Namespace: r.Namespace,
		Records:   rec.RecordCount,
		Bytes:     rec.ByteCount,
		Files:     rec.FileCount,
	}
	if err := writeMetadata(ctx, run.adapter, key, meta, pol.socketTimeout()); err != nil {
		m.discardArtifact(ctx, run.adapter, key)
		return catalog.Record{}, m.backupError(ctx, job, pol, err)
	}

	if err := m.catalog.Append(rec); err != nil {
		m.discardArtifact(ctx, run.adapter, key)
		return catalog.Record{}, fmt.Errorf("append to catalog: %w", err)
	}
	metrics.RecordRecords(r.Name, "backup", "read", rec.RecordCount)
	metrics.BytesTotal.WithLabelValues(r.Name, "backup").Add(float64(rec.ByteCount))
	if m.observer != nil {
		m.observer.BackupAppended(rec)
	}

	log.Info().
		Str("artifact", key).
		Int64("records", rec.RecordCount).
		Int64("bytes", rec.ByteCount).
		Int("files", rec.FileCount).
		Msg("Backup appended to catalog")

	if run.kind == catalog.KindFull {
		// Retention failures never fail the backup that triggered them.
		if _, err := m.enforceRetention(context.WithoutCancel(ctx), r, run.adapter); err != nil {
			log.Warn().Err(err).Msg("Retention left backups behind")
		}
	}
	return rec, nil
}

func scanWorker(ctx context.Context, job *jobs.Job, src cluster.Source, gov *bandwidth.Governor, w *artifactWriter, scan cluster.Scan) error {
	for rec, err := range src.ReadRecordsSince(ctx, scan) {
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		job.AddRead(1)
		line, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		if err := gov.Acquire(ctx, 1, len(line)); err != nil {
			return err
		}
		if err := w.append(ctx, line); err != nil {
			return err
		}
		job.AddBytes(int64(len(line)))
		job.AddDone(1)
	}
	return w.close(ctx)
}

// checkSealed fails when any matching source record changed after ts.
func (m *Manager) checkSealed(ctx context.Context, src cluster.Source, r Routine, ts time.Time) error {
	scan := r.scan()
	scan.After = ts
	for rec, err := range src.ReadRecordsSince(ctx, scan) {
		if err != nil {
			return fmt.Errorf("sealed check: %w", err)
		}
		return fmt.Errorf("%w: %s updated at %s", ErrNotSealed, rec.Key, rec.LastUpdate.Format(time.RFC3339Nano))
	}
	return nil
}

// discardArtifact removes a partially written artifact. Leftovers are
// harmless because nothing references them from the catalog.
func (m *Manager) discardArtifact(ctx context.Context, a storage.Adapter, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if _, err := storage.DeletePrefix(ctx, a, key+"/"); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("artifact", key).Msg("Failed to discard partial artifact")
	}
}

func (m *Manager) backupError(ctx context.Context, job *jobs.Job, pol Policy, err error) error {
	err = timeoutError(err, pol.totalTimeout(), job.CancelRequested())
	if !errors.Is(err, context.Canceled) {
		logging.Ctx(ctx).Error().Err(err).Msg("Backup failed")
	}
	return err
}
