// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	jobKey           contextKey = "job"
)

// JobFields identifies the job a log line belongs to.
type JobFields struct {
	Routine string
	JobID   string
	Kind    string
}

// GenerateCorrelationID creates a short correlation ID (first 8 chars of a UUID).
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a new context carrying the correlation ID.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID attaches a freshly generated correlation ID.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation ID or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithRequestID returns a new context carrying the HTTP request ID.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithJob attaches job identity so every Ctx(ctx) line inside the job
// carries routine, job_id and kind.
func ContextWithJob(ctx context.Context, f JobFields) context.Context {
	return context.WithValue(ctx, jobKey, f)
}

// JobFromContext returns the job identity stored by ContextWithJob.
func JobFromContext(ctx context.Context) (JobFields, bool) {
	f, ok := ctx.Value(jobKey).(JobFields)
	return f, ok
}

// Ctx returns a logger with the context's correlation, request and job fields.
//
//	logging.Ctx(ctx).Info().Int64("records", n).Msg("Batch written")
func Ctx(ctx context.Context) *zerolog.Logger {
	l := CtxWith(ctx).Logger()
	return &l
}

// CtxWith returns a logger context pre-populated from ctx, for adding more fields.
func CtxWith(ctx context.Context) zerolog.Context {
	c := Logger().With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		c = c.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		c = c.Str("request_id", id)
	}
	if f, ok := JobFromContext(ctx); ok {
		c = c.Str("routine", f.Routine)
		if f.JobID != "" {
			c = c.Str("job_id", f.JobID)
		}
		if f.Kind != "" {
			c = c.Str("kind", f.Kind)
		}
	}
	return c
}
