// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package cluster defines how Backstop reads from and writes to a database
// cluster, and ships an embedded BadgerDB-backed cluster that implements both
// sides.
//
// Records are addressed by (namespace, set, user key). Every key hashes into
// one of PartitionCount partitions so scans can be split across workers and
// restricted by partition filters.
package cluster

import (
	"context"
	"fmt"
	"hash/fnv"
	"iter"
	"slices"
	"strconv"
	"time"
)

// PartitionCount is the number of partitions keys hash into.
const PartitionCount = 4096

// Key identifies a record.
type Key struct {
	Namespace string `json:"ns"`
	Set       string `json:"set,omitempty"`
	UserKey   string `json:"key"`
}

// String is the readable form used in logs. It is ambiguous when a set or
// user key contains "/"; use ID to address records.
func (k Key) String() string {
	return k.Namespace + "/" + k.Set + "/" + k.UserKey
}

// ID encodes the key unambiguously by length-prefixing each part.
func (k Key) ID() string {
	return idPart(k.Namespace) + idPart(k.Set) + idPart(k.UserKey)
}

func idPart(s string) string {
	return strconv.Itoa(len(s)) + ":" + s
}

// Digest is a stable 64-bit hash of the key.
func (k Key) Digest() uint64 {
	h := fnv.New64a()
	h.Write([]byte(k.ID()))
	return h.Sum64()
}

// Partition returns the key's partition in [0, PartitionCount).
func (k Key) Partition() int {
	return int(k.Digest() % PartitionCount)
}

// Record is one versioned record. Deleted marks a durable-delete tombstone,
// which backups carry so restores can replay deletions.
type Record struct {
	Key        Key            `json:"key"`
	Bins       map[string]any `json:"bins,omitempty"`
	LastUpdate time.Time      `json:"lut"`
	Generation uint32         `json:"gen"`
	Deleted    bool           `json:"deleted,omitempty"`
}

// PartitionRange selects partitions [Begin, Begin+Count). A zero Count
// means every partition.
type PartitionRange struct {
	Begin int `json:"begin"`
	Count int `json:"count"`
}

// AllPartitions covers the whole key space.
func AllPartitions() PartitionRange {
	return PartitionRange{Begin: 0, Count: PartitionCount}
}

func (p PartitionRange) normalized() PartitionRange {
	if p.Count <= 0 {
		return AllPartitions()
	}
	return p
}

// Validate checks the range lies inside the key space.
func (p PartitionRange) Validate() error {
	if p.Count == 0 {
		return nil
	}
	if p.Begin < 0 || p.Count < 0 || p.Begin+p.Count > PartitionCount {
		return fmt.Errorf("partition range [%d, %d) outside [0, %d)", p.Begin, p.Begin+p.Count, PartitionCount)
	}
	return nil
}

// Contains reports whether partition id is in the range.
func (p PartitionRange) Contains(id int) bool {
	n := p.normalized()
	return id >= n.Begin && id < n.Begin+n.Count
}

// Split divides the range into at most n contiguous, non-overlapping parts.
func (p PartitionRange) Split(n int) []PartitionRange {
	r := p.normalized()
	if n <= 1 || r.Count <= 1 {
		return []PartitionRange{r}
	}
	n = min(n, r.Count)
	out := make([]PartitionRange, 0, n)
	size, extra := r.Count/n, r.Count%n
	begin := r.Begin
	for i := 0; i < n; i++ {
		c := size
		if i < extra {
			c++
		}
		out = append(out, PartitionRange{Begin: begin, Count: c})
		begin += c
	}
	return out
}

// Scan selects records to read.
type Scan struct {
	Namespace  string
	SetList    []string
	After      time.Time // exclusive lower bound on LastUpdate; zero = none
	Before     time.Time // inclusive upper bound on LastUpdate; zero = none
	Partitions PartitionRange
	// LiveOnly drops tombstones.
	LiveOnly bool
}

// Matches applies every filter of the scan to r.
func (s Scan) Matches(r Record) bool {
	if s.Namespace != "" && r.Key.Namespace != s.Namespace {
		return false
	}
	if s.LiveOnly && r.Deleted {
		return false
	}
	if len(s.SetList) > 0 && !slices.Contains(s.SetList, r.Key.Set) {
		return false
	}
	if !s.After.IsZero() && !r.LastUpdate.After(s.After) {
		return false
	}
	if !s.Before.IsZero() && r.LastUpdate.After(s.Before) {
		return false
	}
	return s.Partitions.Contains(r.Key.Partition())
}

// Source is the read side used by backups.
type Source interface {
	// ReadRecordsSince lazily yields records matching scan. Iteration stops
	// at the first error or when the consumer stops pulling.
	ReadRecordsSince(ctx context.Context, scan Scan) iter.Seq2[Record, error]
	Count(ctx context.Context, scan Scan) (int64, error)
	// Cut returns a backup timestamp from clock that splits source writes
	// cleanly: writes stamped at or before it are visible to scans opened
	// afterwards, and later writes are stamped after it.
	Cut(clock func() time.Time) time.Time
}

// Destination is the write side used by restores. Writes of the same record
// are idempotent. WriteBatch applies records in order; a Deleted record
// deletes the key.
type Destination interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, key Key) error
	WriteBatch(ctx context.Context, recs []Record) error
}
