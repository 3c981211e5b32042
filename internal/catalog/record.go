// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package catalog

import (
	"errors"
	"fmt"
	"time"
)

// Kind distinguishes full snapshots from incremental deltas.
type Kind string

const (
	KindFull        Kind = "FULL"
	KindIncremental Kind = "INCREMENTAL"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFull || k == KindIncremental
}

// Record is one completed backup. Records are immutable once appended.
type Record struct {
	RoutineID string    `json:"routine_id"`
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	// FromTimestamp is the exclusive lower bound of an incremental scan
	// (the timestamp of the backup it builds on). Zero for fulls.
	FromTimestamp time.Time `json:"from_timestamp,omitempty"`
	Namespace     string    `json:"namespace,omitempty"`
	RecordCount   int64     `json:"record_count"`
	ByteCount     int64     `json:"byte_count"`
	FileCount     int       `json:"file_count"`
	ArtifactKey   string    `json:"artifact_key"`
}

// IsFull reports whether r is a full backup.
func (r Record) IsFull() bool {
	return r.Kind == KindFull
}

var (
	// ErrOrphanIncremental is returned when an incremental is appended to a
	// routine that has no full backup yet.
	ErrOrphanIncremental = errors.New("incremental backup has no preceding full backup")

	// ErrInvalidRecord is returned for records missing a routine, kind or timestamp.
	ErrInvalidRecord = errors.New("invalid catalog record")
)

// OutOfOrderError reports an append whose timestamp does not strictly
// follow the routine's last entry.
type OutOfOrderError struct {
	Routine   string
	Timestamp time.Time
	Last      time.Time
}

func (e *OutOfOrderError) Error() string {
	return fmt.Sprintf("catalog: out-of-order append for routine %q: %s is not after %s",
		e.Routine, e.Timestamp.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}
