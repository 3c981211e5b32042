// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

// sampleCount reads a histogram's observation count.
func sampleCount(t *testing.T, obs prometheus.Observer) uint64 {
	t.Helper()
	var m io_prometheus_client.Metric
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestRecordRecords(t *testing.T) {
	before := testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics-test", "restore", "inserted"))

	RecordRecords("metrics-test", "restore", "inserted", 5)
	RecordRecords("metrics-test", "restore", "inserted", 0)
	RecordRecords("metrics-test", "restore", "inserted", -3)

	after := testutil.ToFloat64(RecordsTotal.WithLabelValues("metrics-test", "restore", "inserted"))
	if after-before != 5 {
		t.Errorf("expected counter to grow by 5, grew by %v", after-before)
	}
}

func TestRecordPrune(t *testing.T) {
	tests := []struct {
		name         string
		fulls        int
		incrementals int
		failures     int
	}{
		{"fulls and incrementals", 2, 3, 0},
		{"failures only", 0, 0, 1},
		{"nothing", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			routine := "prune-" + tt.name
			RecordPrune(routine, tt.fulls, tt.incrementals, tt.failures)

			if got := testutil.ToFloat64(RetentionDeleted.WithLabelValues(routine, "full")); got != float64(tt.fulls) {
				t.Errorf("full deletions = %v, want %d", got, tt.fulls)
			}
			if got := testutil.ToFloat64(RetentionDeleted.WithLabelValues(routine, "incremental")); got != float64(tt.incrementals) {
				t.Errorf("incremental deletions = %v, want %d", got, tt.incrementals)
			}
			if got := testutil.ToFloat64(PruneFailures.WithLabelValues(routine)); got != float64(tt.failures) {
				t.Errorf("failures = %v, want %d", got, tt.failures)
			}
		})
	}
}

func TestSetCatalogSize(t *testing.T) {
	SetCatalogSize("catalog-test", 3, 7)

	if got := testutil.ToFloat64(CatalogEntries.WithLabelValues("catalog-test", "full")); got != 3 {
		t.Errorf("full gauge = %v, want 3", got)
	}
	if got := testutil.ToFloat64(CatalogEntries.WithLabelValues("catalog-test", "incremental")); got != 7 {
		t.Errorf("incremental gauge = %v, want 7", got)
	}
}

func TestRecordJobFinished(t *testing.T) {
	before := testutil.ToFloat64(JobsTotal.WithLabelValues("jobs-test", "backup_full", "DONE"))
	durations := sampleCount(t, JobDuration.WithLabelValues("backup_full"))

	RecordJobFinished("jobs-test", "backup_full", "DONE", 2*time.Second)

	if got := testutil.ToFloat64(JobsTotal.WithLabelValues("jobs-test", "backup_full", "DONE")); got-before != 1 {
		t.Errorf("expected one finished job, got %v", got-before)
	}
	if got := sampleCount(t, JobDuration.WithLabelValues("backup_full")); got-durations != 1 {
		t.Errorf("duration samples grew by %d, want 1", got-durations)
	}
}

func TestRecordGovernorWait(t *testing.T) {
	before := sampleCount(t, GovernorWait.WithLabelValues("records"))
	RecordGovernorWait("records", 10*time.Millisecond)
	RecordGovernorWait("records", 0)
	if got := sampleCount(t, GovernorWait.WithLabelValues("records")); got-before != 2 {
		t.Errorf("wait samples grew by %d, want 2", got-before)
	}
}
