// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package backup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/storage"
)

const testNS = "test"

// tickClock advances one millisecond per call, so every write and backup
// gets a distinct, ordered timestamp.
type tickClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

// testEnv holds the common test environment setup
type testEnv struct {
	clock   *tickClock
	src     *cluster.Store
	dst     *cluster.Store
	adapter storage.Adapter
	catalog *catalog.Catalog
	tracker *jobs.Tracker

	destinations map[string]cluster.Destination
	observer     *recordingObserver
}

// newTestEnv creates in-memory clusters, local storage in a temp dir and an
// empty catalog.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clock := &tickClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	open := func(name string) *cluster.Store {
		s, err := cluster.Open(cluster.Options{Name: name, InMemory: true, Clock: clock.Now})
		if err != nil {
			t.Fatalf("open cluster %s: %v", name, err)
		}
		t.Cleanup(func() { s.Close() })
		return s
	}
	local, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	env := &testEnv{
		clock:    clock,
		src:      open("src"),
		dst:      open("dst"),
		adapter:  local,
		catalog:  catalog.New(nil),
		tracker:  jobs.NewTracker(),
		observer: &recordingObserver{},
	}
	env.destinations = map[string]cluster.Destination{"src": env.src, "dst": env.dst}
	return env
}

// testRoutine returns a routine named name backing up the test namespace.
func testRoutine(name string) Routine {
	return Routine{
		Name:          name,
		SourceCluster: "src",
		Namespace:     testNS,
		Storage:       "local",
		Policy:        Policy{Parallel: 2},
	}
}

// newManager creates a manager over env with the given routines.
func (e *testEnv) newManager(t *testing.T, routines ...Routine) *Manager {
	t.Helper()
	m, err := NewManager(Options{
		Routines:     routines,
		Sources:      map[string]cluster.Source{"src": e.src},
		Destinations: e.destinations,
		Storage:      map[string]storage.Adapter{"local": e.adapter},
		Catalog:      e.catalog,
		Tracker:      e.tracker,
		Breaker:      &cluster.BreakerSettings{MinRequests: 1 << 20, FailureRatio: 1, OpenTimeout: time.Second},
		Observer:     e.observer,
		Clock:        e.clock.Now,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func testKey(set string, i int) cluster.Key {
	return cluster.Key{Namespace: testNS, Set: set, UserKey: fmt.Sprintf("k%03d", i)}
}

// put writes value v to keys [from, to) of set.
func (e *testEnv) put(t *testing.T, set string, from, to int, v string) {
	t.Helper()
	for i := from; i < to; i++ {
		if _, err := e.src.Put(context.Background(), testKey(set, i), map[string]any{"v": v}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
}

func (e *testEnv) remove(t *testing.T, set string, from, to int) {
	t.Helper()
	for i := from; i < to; i++ {
		if _, err := e.src.Remove(context.Background(), testKey(set, i)); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}
}

func snapshot(t *testing.T, s *cluster.Store) map[string]cluster.Record {
	t.Helper()
	snap, err := s.Snapshot(context.Background(), testNS)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return snap
}

// assertSameState compares two snapshots key by key.
func assertSameState(t *testing.T, want, got map[string]cluster.Record) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("state has %d keys, want %d", len(got), len(want))
	}
	for k, w := range want {
		g, ok := got[k]
		if !ok {
			t.Fatalf("key %s missing", k)
		}
		if fmt.Sprint(g.Bins) != fmt.Sprint(w.Bins) {
			t.Errorf("key %s bins = %v, want %v", k, g.Bins, w.Bins)
		}
		if !g.LastUpdate.Equal(w.LastUpdate) {
			t.Errorf("key %s last update = %s, want %s", k, g.LastUpdate, w.LastUpdate)
		}
		if g.Generation != w.Generation {
			t.Errorf("key %s generation = %d, want %d", k, g.Generation, w.Generation)
		}
	}
}

func mustBackup(t *testing.T, m *Manager, routine string, kind catalog.Kind) catalog.Record {
	t.Helper()
	rec, err := m.RunBackup(context.Background(), routine, kind)
	if err != nil {
		t.Fatalf("%s backup: %v", kind, err)
	}
	return rec
}

func intPtr(n int) *int { return &n }

// recordingObserver captures catalog notifications.
type recordingObserver struct {
	mu       sync.Mutex
	appended []catalog.Record
	pruned   []PruneReport
}

func (o *recordingObserver) BackupAppended(rec catalog.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appended = append(o.appended, rec)
}

func (o *recordingObserver) BackupsPruned(r PruneReport) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pruned = append(o.pruned, r)
}

var errFlaky = errors.New("destination unavailable")

// flakyDestination fails the first `failures` write calls.
type flakyDestination struct {
	inner    cluster.Destination
	failures atomic.Int64
	calls    atomic.Int64
}

func newFlakyDestination(inner cluster.Destination, failures int64) *flakyDestination {
	d := &flakyDestination{inner: inner}
	d.failures.Store(failures)
	return d
}

func (d *flakyDestination) fail() error {
	d.calls.Add(1)
	if d.failures.Add(-1) >= 0 {
		return errFlaky
	}
	return nil
}

func (d *flakyDestination) Upsert(ctx context.Context, rec cluster.Record) error {
	if err := d.fail(); err != nil {
		return err
	}
	return d.inner.Upsert(ctx, rec)
}

func (d *flakyDestination) Delete(ctx context.Context, k cluster.Key) error {
	if err := d.fail(); err != nil {
		return err
	}
	return d.inner.Delete(ctx, k)
}

func (d *flakyDestination) WriteBatch(ctx context.Context, recs []cluster.Record) error {
	if err := d.fail(); err != nil {
		return err
	}
	return d.inner.WriteBatch(ctx, recs)
}

// stickyAdapter refuses to delete keys containing failOn.
type stickyAdapter struct {
	storage.Adapter
	failOn string
}

func (a *stickyAdapter) Delete(ctx context.Context, key string) error {
	if a.failOn != "" && strings.Contains(key, a.failOn) {
		return fmt.Errorf("permission denied: %s", key)
	}
	return a.Adapter.Delete(ctx, key)
}

// waitDone waits for a background job.
func waitDone(t *testing.T, j *jobs.Job) jobs.Snapshot {
	t.Helper()
	select {
	case <-j.Done():
	case <-time.After(10 * time.Second):
		t.Fatal("job did not finish")
	}
	return j.Snapshot()
}
