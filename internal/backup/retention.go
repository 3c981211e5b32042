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

	"github.com/hashicorp/go-multierror"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
	"github.com/tomtom215/backstop/internal/storage"
)

// Retention reasons shown in previews and logs.
const (
	reasonRecentFull    = "within full retention"
	reasonExcessFull    = "older than the retained full backups"
	reasonDeletedWindow = "belongs to a deleted full backup"
	reasonRecentInc     = "within incremental retention"
	reasonExcessInc     = "older than the retained incrementals"
	reasonUnbounded     = "incremental retention unbounded"
)

// windowOwner returns the index of the full whose window (f.ts, next.ts)
// contains ts, or -1 when ts precedes every full.
func windowOwner(fulls []catalog.Record, ts time.Time) int {
	owner := -1
	for i, f := range fulls {
		if f.Timestamp.Before(ts) {
			owner = i
		} else {
			break
		}
	}
	return owner
}

// Plan decides which of records (one routine, ascending) policy keeps.
//
// The last Full fulls survive; incrementals in the window of a deleted full
// go with it. Among the rest, the newest Incremental incrementals survive,
// and a bound of zero still keeps one. When the newest record is a full,
// its window is empty and the next incremental lands there, so one slot of
// the bound is left for it.
func Plan(records []catalog.Record, policy RetentionPolicy) RetentionPlan {
	plan := RetentionPlan{Policy: policy}
	if len(records) > 0 {
		plan.Routine = records[0].RoutineID
	}

	var fulls, incs []catalog.Record
	for _, r := range records {
		if r.Kind == catalog.KindFull {
			fulls = append(fulls, r)
		} else {
			incs = append(incs, r)
		}
	}

	firstKept := 0
	if policy.Full != nil {
		firstKept = max(len(fulls)-max(*policy.Full, 1), 0)
	}
	for i, f := range fulls {
		if i < firstKept {
			plan.Delete = append(plan.Delete, RetentionDecision{Record: f, Reason: reasonExcessFull})
		} else {
			plan.Keep = append(plan.Keep, RetentionDecision{Record: f, Reason: reasonRecentFull})
		}
	}

	var candidates []catalog.Record
	for _, inc := range incs {
		if owner := windowOwner(fulls, inc.Timestamp); owner >= 0 && owner < firstKept {
			plan.Delete = append(plan.Delete, RetentionDecision{Record: inc, Reason: reasonDeletedWindow})
			continue
		}
		candidates = append(candidates, inc)
	}

	if policy.Incremental == nil {
		for _, inc := range candidates {
			plan.Keep = append(plan.Keep, RetentionDecision{Record: inc, Reason: reasonUnbounded})
		}
		return plan
	}

	budget := max(*policy.Incremental, 1)
	if n := len(records); n > 0 && records[n-1].Kind == catalog.KindFull {
		budget--
	}
	firstInc := max(len(candidates)-budget, 0)
	for i, inc := range candidates {
		if i < firstInc {
			plan.Delete = append(plan.Delete, RetentionDecision{Record: inc, Reason: reasonExcessInc})
		} else {
			plan.Keep = append(plan.Keep, RetentionDecision{Record: inc, Reason: reasonRecentInc})
		}
	}
	return plan
}

// RetentionPreview shows what retention would do to routine right now
// without deleting anything.
func (m *Manager) RetentionPreview(routine string) (RetentionPlan, error) {
	r, err := m.Routine(routine)
	if err != nil {
		return RetentionPlan{}, err
	}
	plan := Plan(m.catalog.All(routine), r.Policy.Retention)
	plan.Routine = routine
	return plan, nil
}

// enforceRetention prunes routine according to its policy. Incrementals
// are deleted before fulls, and a full leaves the catalog only once every
// incremental in its window is gone, so the catalog never holds an
// incremental without its base. Storage is deleted before the catalog entry.
func (m *Manager) enforceRetention(ctx context.Context, r Routine, adapter storage.Adapter) (PruneReport, error) {
	all := m.catalog.All(r.Name)
	plan := Plan(all, r.Policy.Retention)
	plan.Routine = r.Name
	report := PruneReport{Routine: r.Name, Plan: plan}
	if len(plan.Delete) == 0 {
		return report, nil
	}

	log := logging.Ctx(ctx).With().Str("retention", r.Policy.Retention.String()).Logger()
	var errs *multierror.Error
	var fulls []catalog.Record
	blocked := make(map[int64]bool) // full timestamps whose window still holds an incremental

	var allFulls []catalog.Record
	for _, rec := range all {
		if rec.Kind == catalog.KindFull {
			allFulls = append(allFulls, rec)
		}
	}

	var deletedFulls, deletedIncs int
	for _, d := range plan.Delete {
		rec := d.Record
		if rec.Kind == catalog.KindFull {
			fulls = append(fulls, rec)
			continue
		}
		if err := m.prune(ctx, adapter, rec, &report); err != nil {
			errs = multierror.Append(errs, err)
			report.Failed = append(report.Failed, rec)
			if owner := windowOwner(allFulls, rec.Timestamp); owner >= 0 {
				blocked[allFulls[owner].Timestamp.UnixNano()] = true
			}
			continue
		}
		deletedIncs++
	}

	for _, rec := range fulls {
		if blocked[rec.Timestamp.UnixNano()] {
			errs = multierror.Append(errs, fmt.Errorf("full %s kept: its window still holds incrementals", rec.ArtifactKey))
			report.Failed = append(report.Failed, rec)
			continue
		}
		if err := m.prune(ctx, adapter, rec, &report); err != nil {
			errs = multierror.Append(errs, err)
			report.Failed = append(report.Failed, rec)
			continue
		}
		deletedFulls++
	}

	metrics.RecordPrune(r.Name, deletedFulls, deletedIncs, len(report.Failed))
	if m.observer != nil && len(report.Deleted) > 0 {
		m.observer.BackupsPruned(report)
	}
	log.Info().
		Int("deleted_full", deletedFulls).
		Int("deleted_incremental", deletedIncs).
		Int("failed", len(report.Failed)).
		Msg("Retention applied")

	if errs.ErrorOrNil() != nil {
		return report, &PartialPruneFailure{Routine: r.Name, Failed: report.Failed, Errs: errs}
	}
	return report, nil
}

// prune deletes one backup's artifact and then its catalog entry.
func (m *Manager) prune(ctx context.Context, adapter storage.Adapter, rec catalog.Record, report *PruneReport) error {
	prefix := rec.ArtifactKey + "/"
	class, err := storage.ClassOfPrefix(ctx, adapter, prefix)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		logging.Ctx(ctx).Debug().Err(err).Str("artifact", rec.ArtifactKey).Msg("Storage class lookup failed")
	}

	n, err := storage.DeletePrefix(ctx, adapter, prefix)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("artifact", rec.ArtifactKey).Msg("Failed to delete backup")
		return fmt.Errorf("delete artifact %s: %w", rec.ArtifactKey, err)
	}
	if err := m.catalog.Remove(rec.RoutineID, rec); err != nil {
		return fmt.Errorf("remove %s from catalog: %w", rec.ArtifactKey, err)
	}
	report.Deleted = append(report.Deleted, PrunedBackup{Record: rec, StorageClass: class, Objects: n})
	return nil
}
