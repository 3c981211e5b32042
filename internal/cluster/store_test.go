// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package cluster

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock advances one second per call.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := Open(Options{Name: "test", InMemory: true, Clock: clock.Now})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func key(set, user string) Key {
	return Key{Namespace: "test", Set: set, UserKey: user}
}

func TestPartitionRangeSplit(t *testing.T) {
	tests := []struct {
		name  string
		r     PartitionRange
		n     int
		parts int
	}{
		{"whole space in four", AllPartitions(), 4, 4},
		{"zero range means all", PartitionRange{}, 3, 3},
		{"more workers than partitions", PartitionRange{Begin: 10, Count: 2}, 5, 2},
		{"single worker", AllPartitions(), 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := tt.r.Split(tt.n)
			if len(parts) != tt.parts {
				t.Fatalf("got %d parts, want %d", len(parts), tt.parts)
			}
			want := tt.r.normalized()
			next, total := want.Begin, 0
			for _, p := range parts {
				if p.Begin != next {
					t.Errorf("gap or overlap at %d (expected %d)", p.Begin, next)
				}
				next = p.Begin + p.Count
				total += p.Count
			}
			if total != want.Count {
				t.Errorf("parts cover %d partitions, want %d", total, want.Count)
			}
		})
	}
}

func TestPartitionRangeValidate(t *testing.T) {
	if err := (PartitionRange{Begin: 4000, Count: 200}).Validate(); err == nil {
		t.Error("expected error for range past the key space")
	}
	if err := (PartitionRange{Begin: 0, Count: 4096}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestScanFilters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)

	var stamps []time.Time
	for _, k := range []Key{key("users", "a"), key("users", "b"), key("orders", "c")} {
		rec, err := s.Put(ctx, k, map[string]any{"v": k.UserKey})
		if err != nil {
			t.Fatal(err)
		}
		stamps = append(stamps, rec.LastUpdate)
	}

	tests := []struct {
		name string
		scan Scan
		want int64
	}{
		{"namespace", Scan{Namespace: "test"}, 3},
		{"other namespace", Scan{Namespace: "nope"}, 0},
		{"set list", Scan{Namespace: "test", SetList: []string{"users"}}, 2},
		{"after is exclusive", Scan{Namespace: "test", After: stamps[0]}, 2},
		{"before is inclusive", Scan{Namespace: "test", Before: stamps[1]}, 2},
		{"window", Scan{Namespace: "test", After: stamps[0], Before: stamps[1]}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := s.Count(ctx, tt.scan)
			if err != nil {
				t.Fatal(err)
			}
			if n != tt.want {
				t.Errorf("Count = %d, want %d", n, tt.want)
			}
		})
	}
}

func TestKeysWithSeparatorsStayDistinct(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)

	left := Key{Namespace: "test", Set: "a/b", UserKey: "c"}
	right := Key{Namespace: "test", Set: "a", UserKey: "b/c"}
	if left.String() != right.String() {
		t.Fatalf("test keys should share a display form")
	}
	if left.ID() == right.ID() {
		t.Fatalf("ID collision: %q", left.ID())
	}

	for _, k := range []Key{left, right} {
		if _, err := s.Put(ctx, k, map[string]any{"v": k.Set}); err != nil {
			t.Fatal(err)
		}
	}
	snap, err := s.Snapshot(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 || snap[left.ID()].Key != left || snap[right.ID()].Key != right {
		t.Errorf("snapshot = %+v, want both keys", snap)
	}

	// A namespace that extends another is not swept into its scans.
	if _, err := s.Put(ctx, Key{Namespace: "test2", Set: "a", UserKey: "x"}, nil); err != nil {
		t.Fatal(err)
	}
	if n := scanCount(t, s, Scan{Namespace: "test"}); n != 2 {
		t.Errorf("namespace scan saw %d records, want 2", n)
	}
}

func TestPartitionsCoverEveryRecordOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)
	for i := 0; i < 200; i++ {
		if _, err := s.Put(ctx, key("users", string(rune('a'+i%26))+string(rune('a'+i/26))), nil); err != nil {
			t.Fatal(err)
		}
	}

	var total int64
	for _, part := range AllPartitions().Split(7) {
		n, err := s.Count(ctx, Scan{Namespace: "test", Partitions: part})
		if err != nil {
			t.Fatal(err)
		}
		total += n
	}
	if total != 200 {
		t.Errorf("partitioned scans saw %d records, want 200", total)
	}
}

func TestRemoveLeavesTombstone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)

	first, _ := s.Put(ctx, key("users", "a"), map[string]any{"name": "ann"})
	tomb, err := s.Remove(ctx, key("users", "a"))
	if err != nil {
		t.Fatal(err)
	}
	if !tomb.Deleted || tomb.Generation != first.Generation+1 {
		t.Errorf("unexpected tombstone: %+v", tomb)
	}

	var seen []Record
	for rec, err := range s.ReadRecordsSince(ctx, Scan{Namespace: "test", After: first.LastUpdate}) {
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, rec)
	}
	if len(seen) != 1 || !seen[0].Deleted {
		t.Errorf("incremental scan should yield the tombstone, got %+v", seen)
	}

	snap, _ := s.Snapshot(ctx, "test")
	if len(snap) != 0 {
		t.Errorf("snapshot should hide tombstones, got %d records", len(snap))
	}
}

func scanCount(t *testing.T, s *Store, scan Scan) int {
	t.Helper()
	n, err := s.Count(context.Background(), scan)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	return int(n)
}

func TestCutWaitsForInflightWrite(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	stamping := make(chan struct{})
	release := make(chan struct{})
	var block atomic.Bool
	block.Store(true)
	clock := func() time.Time {
		if block.CompareAndSwap(true, false) {
			close(stamping)
			<-release
		}
		return base
	}
	s, err := Open(Options{Name: "test", InMemory: true, Clock: clock})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	putDone := make(chan error, 1)
	go func() {
		_, err := s.Put(context.Background(), key("users", "a"), map[string]any{"v": 1})
		putDone <- err
	}()
	<-stamping

	// The write is stamped but not committed; a cut taken now must wait.
	cutCh := make(chan time.Time, 1)
	go func() { cutCh <- s.Cut(func() time.Time { return base.Add(time.Minute) }) }()
	select {
	case <-cutCh:
		t.Fatal("Cut returned while a write was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)

	cut := <-cutCh
	if err := <-putDone; err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n := scanCount(t, s, Scan{Namespace: "test", Before: cut}); n != 1 {
		t.Errorf("scan up to the cut saw %d records, want the committed write", n)
	}
}

func TestWritesAfterCutStampLater(t *testing.T) {
	t.Parallel()

	// A stuck clock would give later writes the cut's own timestamp.
	stuck := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return stuck }
	s, err := Open(Options{Name: "test", InMemory: true, Clock: clock})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if _, err := s.Put(ctx, key("users", "a"), map[string]any{"v": 1}); err != nil {
		t.Fatal(err)
	}
	cut := s.Cut(clock)
	late, err := s.Put(ctx, key("users", "b"), map[string]any{"v": 2})
	if err != nil {
		t.Fatal(err)
	}
	if !late.LastUpdate.After(cut) {
		t.Fatalf("write after cut stamped %s, cut %s", late.LastUpdate, cut)
	}

	if n := scanCount(t, s, Scan{Namespace: "test", Before: cut}); n != 1 {
		t.Errorf("full scan saw %d records, want 1", n)
	}
	if n := scanCount(t, s, Scan{Namespace: "test", After: cut}); n != 1 {
		t.Errorf("incremental scan saw %d records, want 1", n)
	}
}

func TestWriteBatchIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)
	lut := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	batch := []Record{
		{Key: key("users", "a"), Bins: map[string]any{"name": "ann"}, LastUpdate: lut, Generation: 3},
		{Key: key("users", "b"), Bins: map[string]any{"name": "bob"}, LastUpdate: lut, Generation: 1},
		{Key: key("users", "c"), Deleted: true, LastUpdate: lut},
	}
	for i := 0; i < 2; i++ {
		if err := s.WriteBatch(ctx, batch); err != nil {
			t.Fatalf("WriteBatch #%d failed: %v", i+1, err)
		}
	}

	snap, err := s.Snapshot(ctx, "test")
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 2 {
		t.Fatalf("expected 2 live records, got %d", len(snap))
	}
	got := snap[key("users", "a").ID()]
	if got.Generation != 3 || !got.LastUpdate.Equal(lut) || got.Bins["name"] != "ann" {
		t.Errorf("WriteBatch must preserve record metadata, got %+v", got)
	}
}

func TestReadStopsEarly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := newTestStore(t)
	for _, u := range []string{"a", "b", "c"} {
		if _, err := s.Put(ctx, key("users", u), nil); err != nil {
			t.Fatal(err)
		}
	}

	n := 0
	for _, err := range s.ReadRecordsSince(ctx, Scan{Namespace: "test"}) {
		if err != nil {
			t.Fatal(err)
		}
		n++
		if n == 2 {
			break
		}
	}
	if n != 2 {
		t.Errorf("expected to stop after 2, got %d", n)
	}
}

func TestReadObservesCancellation(t *testing.T) {
	t.Parallel()

	s, _ := newTestStore(t)
	if _, err := s.Put(context.Background(), key("users", "a"), nil); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range s.ReadRecordsSince(ctx, Scan{Namespace: "test"}) {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	}
}
