// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package backup

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/backstop/internal/catalog"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSchedulerRunsFirstFullImmediately(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	r := testRoutine("orders")
	r.FullInterval = time.Hour
	r.IncrementalInterval = 30 * time.Minute
	m := env.newManager(t, r)
	env.put(t, "a", 0, 5, "x")

	s := NewScheduler(m)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })

	if err := s.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}

	waitFor(t, "first full", func() bool {
		_, ok := env.catalog.Last("orders")
		return ok
	})
	if last, _ := env.catalog.Last("orders"); last.Kind != catalog.KindFull {
		t.Errorf("first scheduled backup is %s, want full", last.Kind)
	}

	runs := s.NextRuns()
	if len(runs) != 2 {
		t.Fatalf("NextRuns = %+v, want full and incremental", runs)
	}
	if runs[0].Kind != catalog.KindIncremental || !runs[0].Next.Before(runs[1].Next) {
		t.Errorf("NextRuns not ordered by time: %+v", runs)
	}
	for _, run := range runs {
		if !run.Next.After(time.Now()) {
			t.Errorf("%s run at %s is not in the future", run.Kind, run.Next)
		}
	}
}

func TestSchedulerRepeatsOnInterval(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	r := testRoutine("orders")
	r.FullInterval = 30 * time.Millisecond
	m := env.newManager(t, r)
	env.put(t, "a", 0, 3, "x")

	s := NewScheduler(m)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "three fulls", func() bool {
		return len(env.catalog.FullsInRange("orders", nil, nil)) >= 3
	})
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestSchedulerSkipsIncrementalWithoutBase(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	r := testRoutine("orders")
	r.IncrementalInterval = 20 * time.Millisecond
	m := env.newManager(t, r)

	s := NewScheduler(m)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, ok := env.tracker.Last("orders"); ok {
		t.Error("an incremental ran without a full backup")
	}
	if n := len(env.catalog.All("orders")); n != 0 {
		t.Errorf("catalog has %d entries", n)
	}
}

func TestSchedulerIdleWithoutIntervals(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	m := env.newManager(t, testRoutine("orders"))

	s := NewScheduler(m)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if runs := s.NextRuns(); len(runs) != 0 {
		t.Errorf("NextRuns = %+v, want none", runs)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
