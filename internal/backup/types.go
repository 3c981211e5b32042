// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package backup

import (
	"fmt"
	"time"

	"github.com/tomtom215/backstop/internal/bandwidth"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/storage"
)

// RetentionPolicy bounds how many backups a routine keeps. A nil bound is
// unbounded.
type RetentionPolicy struct {
	// Full is the number of most recent full backups to keep (at least 1).
	Full *int `json:"full,omitempty"`
	// Incremental is the number of most recent incrementals to keep across
	// retained windows, counting the one the newest full's window has yet to
	// receive. Zero behaves like one.
	Incremental *int `json:"incremental,omitempty"`
}

func (p RetentionPolicy) String() string {
	return fmt.Sprintf("full=%s incremental=%s", boundString(p.Full), boundString(p.Incremental))
}

func boundString(n *int) string {
	if n == nil {
		return "unbounded"
	}
	return fmt.Sprintf("%d", *n)
}

// Policy governs how a routine's backups run.
type Policy struct {
	BandwidthMiBps   int             `json:"bandwidth_mibps,omitempty"`
	RecordsPerSecond int             `json:"records_per_second,omitempty"`
	SocketTimeoutMs  int             `json:"socket_timeout_ms,omitempty"`
	TotalTimeoutMs   int             `json:"total_timeout_ms,omitempty"`
	FileLimitMiB     int             `json:"file_limit_mib,omitempty"`
	Parallel         int             `json:"parallel,omitempty"`
	ParallelWrite    int             `json:"parallel_write,omitempty"`
	Retention        RetentionPolicy `json:"retention"`
}

func (p Policy) limits() bandwidth.Limits {
	return bandwidth.Limits{
		BytesPerSecond:   bandwidth.MiBps(p.BandwidthMiBps),
		RecordsPerSecond: p.RecordsPerSecond,
		Parallel:         p.ParallelWrite,
	}
}

func (p Policy) socketTimeout() time.Duration { return millis(p.SocketTimeoutMs) }
func (p Policy) totalTimeout() time.Duration  { return millis(p.TotalTimeoutMs) }

func (p Policy) fileLimitBytes() int64 {
	if p.FileLimitMiB <= 0 {
		return 0
	}
	return int64(p.FileLimitMiB) << 20
}

// RestorePolicy governs how a restore writes to its destination.
type RestorePolicy struct {
	BandwidthMiBps   int `json:"bandwidth_mibps,omitempty"`
	RecordsPerSecond int `json:"records_per_second,omitempty"`
	TPS              int `json:"tps,omitempty"`
	// Parallel is the number of concurrent destination writers.
	Parallel           int  `json:"parallel,omitempty"`
	BatchSize          int  `json:"batch_size,omitempty"`
	DisableBatchWrites bool `json:"disable_batch_writes,omitempty"`
	MaxRetries         int  `json:"max_retries,omitempty"`
	RetryDelayMs       int  `json:"retry_delay_ms,omitempty"`
	SocketTimeoutMs    int  `json:"socket_timeout_ms,omitempty"`
	TotalTimeoutMs     int  `json:"total_timeout_ms,omitempty"`

	SetList         []string                `json:"set_list,omitempty"`
	PartitionFilter *cluster.PartitionRange `json:"partition_filter,omitempty"`
}

// DefaultBatchSize is used when a restore policy leaves BatchSize unset.
const DefaultBatchSize = 128

// DefaultRestorePolicy returns the policy used when a request carries none.
func DefaultRestorePolicy() RestorePolicy {
	return RestorePolicy{
		Parallel:     4,
		BatchSize:    DefaultBatchSize,
		MaxRetries:   5,
		RetryDelayMs: 100,
	}
}

func (p RestorePolicy) limits() bandwidth.Limits {
	return bandwidth.Limits{
		BytesPerSecond:   bandwidth.MiBps(p.BandwidthMiBps),
		RecordsPerSecond: bandwidth.EffectiveRecordRate(p.RecordsPerSecond, p.TPS),
		Parallel:         p.writers(),
	}
}

func (p RestorePolicy) writers() int { return max(p.Parallel, 1) }

func (p RestorePolicy) batchSize() int {
	if p.DisableBatchWrites {
		return 1
	}
	if p.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return p.BatchSize
}

func (p RestorePolicy) attempts() uint {
	return uint(max(p.MaxRetries, 0) + 1)
}

func (p RestorePolicy) retryDelay() time.Duration { return millis(p.RetryDelayMs) }
func (p RestorePolicy) socketTimeout() time.Duration { return millis(p.SocketTimeoutMs) }
func (p RestorePolicy) totalTimeout() time.Duration  { return millis(p.TotalTimeoutMs) }

// filter returns a scan that matches what the policy lets through.
func (p RestorePolicy) filter() cluster.Scan {
	s := cluster.Scan{SetList: p.SetList}
	if p.PartitionFilter != nil {
		s.Partitions = *p.PartitionFilter
	}
	return s
}

func millis(ms int) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Routine is a named, recurring backup definition.
type Routine struct {
	Name            string                  `json:"name"`
	SourceCluster   string                  `json:"source_cluster"`
	Namespace       string                  `json:"namespace"`
	SetList         []string                `json:"set_list,omitempty"`
	PartitionFilter *cluster.PartitionRange `json:"partition_filter,omitempty"`
	// NodeList is informational; the embedded cluster has a single node.
	NodeList []string `json:"node_list,omitempty"`
	Policy   Policy   `json:"policy"`
	Storage  string   `json:"storage"`
	// Sealed routines fail a backup when the source changed while it ran.
	Sealed              bool          `json:"sealed,omitempty"`
	FullInterval        time.Duration `json:"full_interval,omitempty"`
	IncrementalInterval time.Duration `json:"incremental_interval,omitempty"`
}

func (r Routine) scan() cluster.Scan {
	s := cluster.Scan{Namespace: r.Namespace, SetList: r.SetList}
	if r.PartitionFilter != nil {
		s.Partitions = *r.PartitionFilter
	}
	return s
}

// RestoreKind selects how far a restore replays.
type RestoreKind string

const (
	// RestoreFull replays only the base full backup.
	RestoreFull RestoreKind = "full"
	// RestoreTimestamp replays the base full plus incrementals up to Target.
	RestoreTimestamp RestoreKind = "timestamp"
)

// RestoreRequest describes one restore.
type RestoreRequest struct {
	Routine string      `json:"routine"`
	Kind    RestoreKind `json:"kind"`
	// Target is the point in time to restore to. Zero means now.
	Target time.Time `json:"target,omitempty"`
	// Destination names the cluster to write to. Empty means the routine's source.
	Destination       string        `json:"destination,omitempty"`
	Policy            RestorePolicy `json:"policy"`
	DisableReordering bool          `json:"disable_reordering,omitempty"`
}

// RetentionDecision is one backup's fate under a retention plan.
type RetentionDecision struct {
	Record catalog.Record `json:"record"`
	Reason string         `json:"reason"`
}

// RetentionPlan lists what a policy keeps and deletes.
type RetentionPlan struct {
	Routine string              `json:"routine"`
	Policy  RetentionPolicy     `json:"policy"`
	Keep    []RetentionDecision `json:"keep"`
	Delete  []RetentionDecision `json:"delete"`
}

// PrunedBackup is a backup removed by retention.
type PrunedBackup struct {
	Record       catalog.Record `json:"record"`
	StorageClass storage.Class  `json:"storage_class,omitempty"`
	Objects      int            `json:"objects"`
}

// PruneReport is the outcome of one retention pass.
type PruneReport struct {
	Routine string           `json:"routine"`
	Plan    RetentionPlan    `json:"plan"`
	Deleted []PrunedBackup   `json:"deleted"`
	Failed  []catalog.Record `json:"failed,omitempty"`
}

// Observer is notified of catalog changes.
type Observer interface {
	BackupAppended(rec catalog.Record)
	BackupsPruned(report PruneReport)
}

func backupJobKind(k catalog.Kind) jobs.Kind {
	if k == catalog.KindIncremental {
		return jobs.KindBackupIncremental
	}
	return jobs.KindBackupFull
}

func restoreJobKind(k RestoreKind) jobs.Kind {
	if k == RestoreTimestamp {
		return jobs.KindRestoreTimestamp
	}
	return jobs.KindRestoreFull
}

// ParseKind maps "full" and "incremental" (any case) to a catalog kind.
func ParseKind(s string) (catalog.Kind, error) {
	switch s {
	case "full", "FULL":
		return catalog.KindFull, nil
	case "incremental", "INCREMENTAL":
		return catalog.KindIncremental, nil
	}
	return "", fmt.Errorf("%w: unknown backup kind %q", ErrInvalidRequest, s)
}
