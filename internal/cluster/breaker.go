// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package cluster

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
)

// BreakerSettings tunes the destination circuit breaker.
type BreakerSettings struct {
	// MinRequests before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio at or above which the circuit opens.
	FailureRatio float64
	// OpenTimeout before a half-open probe.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns conservative defaults.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MinRequests:  10,
		FailureRatio: 0.6,
		OpenTimeout:  30 * time.Second,
	}
}

// BreakerDestination wraps a Destination with a circuit breaker so a dead
// cluster fails restore batches fast instead of burning every retry on
// timeouts. Cancellation is not counted as a failure.
type BreakerDestination struct {
	dest Destination
	cb   *gobreaker.CircuitBreaker[struct{}]
	name string
}

// NewBreakerDestination wraps dest.
func NewBreakerDestination(name string, dest Destination, s BreakerSettings) *BreakerDestination {
	cbName := "destination-" + name
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < s.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= s.FailureRatio {
				logging.Warn().Str("breaker", cbName).Uint32("failures", counts.TotalFailures).Float64("failure_rate", ratio*100).Msg("Opening destination circuit")
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Destination circuit state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerDestination{dest: dest, cb: cb, name: cbName}
}

func (b *BreakerDestination) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	switch {
	case err == nil:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "success").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "rejected").Inc()
	default:
		metrics.CircuitBreakerRequests.WithLabelValues(b.name, "failure").Inc()
	}
	return err
}

func (b *BreakerDestination) Upsert(ctx context.Context, rec Record) error {
	return b.execute(func() error { return b.dest.Upsert(ctx, rec) })
}

func (b *BreakerDestination) Delete(ctx context.Context, k Key) error {
	return b.execute(func() error { return b.dest.Delete(ctx, k) })
}

func (b *BreakerDestination) WriteBatch(ctx context.Context, recs []Record) error {
	return b.execute(func() error { return b.dest.WriteBatch(ctx, recs) })
}

// State returns the breaker state.
func (b *BreakerDestination) State() gobreaker.State {
	return b.cb.State()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
