// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package metrics exposes Backstop's Prometheus instrumentation.

Metrics are registered on the default registry through promauto and served
by the API at /metrics:

	curl http://localhost:8480/metrics

Families:
  - backstop_records_total{routine,operation,outcome}: records read, inserted, skipped and ignored
  - backstop_jobs_total{routine,kind,status}: finished jobs by terminal status
  - backstop_job_duration_seconds{kind}: wall time of finished jobs
  - backstop_retention_deleted_total{routine,kind}: artifacts pruned
  - backstop_prune_failures_total{routine}: artifacts that failed to prune
  - backstop_governor_wait_seconds{limit}: time spent throttled
  - backstop_catalog_entries{routine,kind}: catalog size
  - backstop_circuit_breaker_*: destination breaker state
*/
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Record flow
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_records_total",
			Help: "Records processed by backup and restore jobs",
		},
		[]string{"routine", "operation", "outcome"}, // operation: backup, restore; outcome: read, inserted, skipped, ignored
	)

	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_bytes_total",
			Help: "Uncompressed record bytes moved by backup and restore jobs",
		},
		[]string{"routine", "operation"},
	)

	// Jobs
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_jobs_total",
			Help: "Finished jobs by kind and terminal status",
		},
		[]string{"routine", "kind", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backstop_job_duration_seconds",
			Help:    "Wall time of finished jobs",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10), // 100ms .. ~7h
		},
		[]string{"kind"},
	)

	JobsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backstop_jobs_running",
			Help: "Jobs currently running across all routines",
		},
	)

	WriteRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_write_retries_total",
			Help: "Destination batch write retries",
		},
		[]string{"routine"},
	)

	// Retention
	RetentionDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_retention_deleted_total",
			Help: "Backup artifacts removed by retention",
		},
		[]string{"routine", "kind"},
	)

	PruneFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_prune_failures_total",
			Help: "Backup artifacts that failed to be removed by retention",
		},
		[]string{"routine"},
	)

	// Catalog
	CatalogEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backstop_catalog_entries",
			Help: "Catalog entries per routine and kind",
		},
		[]string{"routine", "kind"},
	)

	// Governor
	GovernorWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backstop_governor_wait_seconds",
			Help:    "Time spent waiting on throughput limits",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		},
		[]string{"limit"}, // bytes, records, parallel
	)

	// Destination circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backstop_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backstop_events_published_total",
			Help: "Lifecycle events published by topic and result",
		},
		[]string{"topic", "result"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backstop_websocket_clients",
			Help: "Connected event stream clients",
		},
	)

	WebSocketDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backstop_websocket_dropped_total",
			Help: "Event stream messages dropped because a buffer was full",
		},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backstop_api_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordJobFinished records a terminal job transition.
func RecordJobFinished(routine, kind, status string, duration time.Duration) {
	JobsTotal.WithLabelValues(routine, kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordRecords adds n to the records counter; zero is ignored.
func RecordRecords(routine, operation, outcome string, n int64) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(routine, operation, outcome).Add(float64(n))
}

// RecordGovernorWait observes a throttling delay for the given limit.
func RecordGovernorWait(limit string, d time.Duration) {
	GovernorWait.WithLabelValues(limit).Observe(d.Seconds())
}

// RecordPrune records one retention pass.
func RecordPrune(routine string, deletedFulls, deletedIncrementals, failures int) {
	if deletedFulls > 0 {
		RetentionDeleted.WithLabelValues(routine, "full").Add(float64(deletedFulls))
	}
	if deletedIncrementals > 0 {
		RetentionDeleted.WithLabelValues(routine, "incremental").Add(float64(deletedIncrementals))
	}
	if failures > 0 {
		PruneFailures.WithLabelValues(routine).Add(float64(failures))
	}
}

// SetCatalogSize sets the catalog gauges for one routine.
func SetCatalogSize(routine string, fulls, incrementals int) {
	CatalogEntries.WithLabelValues(routine, "full").Set(float64(fulls))
	CatalogEntries.WithLabelValues(routine, "incremental").Set(float64(incrementals))
}
