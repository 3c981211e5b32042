// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

type failingDestination struct {
	calls int
	err   error
}

func (f *failingDestination) Upsert(context.Context, Record) error { f.calls++; return f.err }
func (f *failingDestination) Delete(context.Context, Key) error    { f.calls++; return f.err }
func (f *failingDestination) WriteBatch(context.Context, []Record) error {
	f.calls++
	return f.err
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	t.Parallel()

	dest := &failingDestination{err: errors.New("connection refused")}
	b := NewBreakerDestination("trip-test", dest, BreakerSettings{MinRequests: 3, FailureRatio: 0.5, OpenTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		if err := b.WriteBatch(context.Background(), nil); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", b.State())
	}

	err := b.Upsert(context.Background(), Record{})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if dest.calls != 3 {
		t.Errorf("open breaker must not call the destination, calls = %d", dest.calls)
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	t.Parallel()

	dest := &failingDestination{err: context.Canceled}
	b := NewBreakerDestination("cancel-test", dest, BreakerSettings{MinRequests: 1, FailureRatio: 0.1, OpenTimeout: time.Minute})

	for i := 0; i < 5; i++ {
		_ = b.Delete(context.Background(), Key{})
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("cancellations must not trip the breaker, state = %s", b.State())
	}
}
