// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package catalog

import (
	"testing"
)

func TestBadgerStoreRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("OpenBadgerStore failed: %v", err)
	}

	c := New(store)
	seed(t, c, "orders")
	if err := c.Append(full("billing", 5)); err != nil {
		t.Fatal(err)
	}
	if err := c.Remove("orders", incr("orders", 20)); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenBadgerStore(BadgerConfig{Path: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	c2, err := Open(reopened)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	orders := c2.All("orders")
	if len(orders) != 5 {
		t.Fatalf("expected 5 orders records after reload, got %d", len(orders))
	}
	for i := 1; i < len(orders); i++ {
		if !orders[i].Timestamp.After(orders[i-1].Timestamp) {
			t.Errorf("reloaded ledger out of order at %d", i)
		}
	}
	if last, ok := c2.Last("billing"); !ok || !last.Timestamp.Equal(at(5)) {
		t.Errorf("billing ledger not restored: %+v", last)
	}

	// Ordering is still enforced after reload.
	if err := c2.Append(full("orders", 60)); err == nil {
		t.Error("expected out-of-order error after reload")
	}
}

func TestBadgerStoreInMemory(t *testing.T) {
	t.Parallel()

	store, err := OpenBadgerStore(BadgerConfig{InMemory: true})
	if err != nil {
		t.Fatalf("OpenBadgerStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Put(full("orders", 0)); err != nil {
		t.Fatal(err)
	}
	recs, err := store.LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Kind != KindFull {
		t.Errorf("unexpected records: %+v", recs)
	}
	if err := store.RunGC(0.5); err != nil {
		t.Errorf("RunGC on in-memory store should be a no-op, got %v", err)
	}
}

func TestOpenBadgerStoreRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := OpenBadgerStore(BadgerConfig{}); err == nil {
		t.Error("expected error without path")
	}
}
