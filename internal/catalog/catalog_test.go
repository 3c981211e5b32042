// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package catalog

import (
	"errors"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func full(routine string, minutes int) Record {
	return Record{RoutineID: routine, Kind: KindFull, Timestamp: at(minutes), ArtifactKey: routine + "/full"}
}

func incr(routine string, minutes int) Record {
	return Record{RoutineID: routine, Kind: KindIncremental, Timestamp: at(minutes), ArtifactKey: routine + "/incremental"}
}

// seed appends F@0 I@10 I@20 F@30 I@40 F@60.
func seed(t *testing.T, c *Catalog, routine string) {
	t.Helper()
	for _, r := range []Record{
		full(routine, 0), incr(routine, 10), incr(routine, 20),
		full(routine, 30), incr(routine, 40), full(routine, 60),
	} {
		if err := c.Append(r); err != nil {
			t.Fatalf("Append(%s@%s) failed: %v", r.Kind, r.Timestamp, err)
		}
	}
}

func timestamps(recs []Record) []time.Time {
	out := make([]time.Time, len(recs))
	for i, r := range recs {
		out[i] = r.Timestamp
	}
	return out
}

func equalTimes(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.Append(full("orders", 10)); err != nil {
		t.Fatalf("first append failed: %v", err)
	}

	tests := []struct {
		name string
		rec  Record
	}{
		{"equal timestamp", full("orders", 10)},
		{"earlier timestamp", incr("orders", 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Append(tt.rec)
			var ooo *OutOfOrderError
			if !errors.As(err, &ooo) {
				t.Fatalf("expected OutOfOrderError, got %v", err)
			}
			if !ooo.Last.Equal(at(10)) {
				t.Errorf("Last = %v, want %v", ooo.Last, at(10))
			}
		})
	}

	if got := len(c.All("orders")); got != 1 {
		t.Errorf("rejected appends must not change the ledger, have %d records", got)
	}
}

func TestAppendRejectsOrphanIncremental(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.Append(incr("orders", 1)); !errors.Is(err, ErrOrphanIncremental) {
		t.Fatalf("expected ErrOrphanIncremental, got %v", err)
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	t.Parallel()

	c := New(nil)
	tests := []Record{
		{Kind: KindFull, Timestamp: at(0)},
		{RoutineID: "orders", Kind: "WEEKLY", Timestamp: at(0)},
		{RoutineID: "orders", Kind: KindFull},
	}
	for _, rec := range tests {
		if err := c.Append(rec); !errors.Is(err, ErrInvalidRecord) {
			t.Errorf("Append(%+v) = %v, want ErrInvalidRecord", rec, err)
		}
	}
}

func TestRoutinesAreIndependent(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.Append(full("a", 50)); err != nil {
		t.Fatal(err)
	}
	// Earlier than routine a's last entry, but b has its own ledger.
	if err := c.Append(full("b", 10)); err != nil {
		t.Fatalf("routines must not share ordering: %v", err)
	}
	if got := c.Routines(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Routines() = %v", got)
	}
}

func TestRangeQueries(t *testing.T) {
	t.Parallel()

	c := New(nil)
	seed(t, c, "orders")

	from, to := at(10), at(40)
	tests := []struct {
		name string
		got  []Record
		want []time.Time
	}{
		{"all fulls", c.FullsInRange("orders", nil, nil), []time.Time{at(0), at(30), at(60)}},
		{"fulls bounded inclusive", c.FullsInRange("orders", &from, &to), []time.Time{at(30)}},
		{"incrementals bounded inclusive", c.IncrementalsInRange("orders", &from, &to), []time.Time{at(10), at(20), at(40)}},
		{"incrementals open start", c.IncrementalsInRange("orders", nil, &from), []time.Time{at(10)}},
		{"unknown routine", c.FullsInRange("missing", nil, nil), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := timestamps(tt.got); !equalTimes(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLatestFullAtOrBefore(t *testing.T) {
	t.Parallel()

	c := New(nil)
	seed(t, c, "orders")

	tests := []struct {
		name   string
		target time.Time
		want   time.Time
		found  bool
	}{
		{"before first full", at(-1), time.Time{}, false},
		{"exactly at full", at(30), at(30), true},
		{"between fulls", at(45), at(30), true},
		{"after last", at(1000), at(60), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := c.LatestFullAtOrBefore("orders", tt.target)
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if ok && !rec.Timestamp.Equal(tt.want) {
				t.Errorf("got %v, want %v", rec.Timestamp, tt.want)
			}
		})
	}
}

func TestIncrementalsBetweenIsHalfOpen(t *testing.T) {
	t.Parallel()

	c := New(nil)
	seed(t, c, "orders")

	tests := []struct {
		name         string
		full, target time.Time
		want         []time.Time
	}{
		{"target on incremental is inclusive", at(0), at(20), []time.Time{at(10), at(20)}},
		{"target between incrementals", at(0), at(15), []time.Time{at(10)}},
		{"full itself excluded", at(30), at(40), []time.Time{at(40)}},
		{"target equals full", at(30), at(30), nil},
		{"spans later full", at(0), at(45), []time.Time{at(10), at(20), at(40)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := timestamps(c.IncrementalsBetween("orders", tt.full, tt.target))
			if !equalTimes(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	t.Parallel()

	c := New(nil)
	seed(t, c, "orders")

	victim := incr("orders", 10)
	if err := c.Remove("orders", victim); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := c.Remove("orders", victim); err != nil {
		t.Fatalf("second Remove failed: %v", err)
	}
	if got := len(c.All("orders")); got != 5 {
		t.Errorf("expected 5 records after removal, got %d", got)
	}

	// The ledger still only accepts strictly newer timestamps.
	var ooo *OutOfOrderError
	if err := c.Append(incr("orders", 10)); !errors.As(err, &ooo) {
		t.Errorf("re-append of an old timestamp must be rejected, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	c := New(nil)
	seed(t, c, "orders")
	if err := c.Truncate("orders"); err != nil {
		t.Fatalf("Truncate failed: %v", err)
	}
	if _, ok := c.Last("orders"); ok {
		t.Error("expected empty ledger after Truncate")
	}
}

func TestSnapshotsAreStableDuringAppends(t *testing.T) {
	t.Parallel()

	c := New(nil)
	if err := c.Append(full("orders", 0)); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			if err := c.Append(incr("orders", i)); err != nil {
				t.Errorf("Append failed: %v", err)
				return
			}
		}
	}()

	for i := 0; i < 200; i++ {
		recs := c.All("orders")
		for j := 1; j < len(recs); j++ {
			if !recs[j].Timestamp.After(recs[j-1].Timestamp) {
				t.Fatalf("snapshot not strictly ordered at %d", j)
			}
		}
	}
	wg.Wait()

	if got := len(c.All("orders")); got != 501 {
		t.Errorf("expected 501 records, got %d", got)
	}
}
