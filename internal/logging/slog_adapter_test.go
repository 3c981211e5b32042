// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

func TestSlogHandler(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	logger := NewSlogLogger().With("service", "scheduler").WithGroup("job")
	logger.Warn("service restarted", "attempt", 3, "backoff", time.Second)

	out := buf.String()
	checks := []string{`"level":"warn"`, `"service":"scheduler"`, `"job.attempt":3`, "service restarted"}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "debug"},
		{slog.LevelInfo, "info"},
		{slog.LevelWarn, "warn"},
		{slog.LevelError, "error"},
		{slog.LevelError + 4, "error"},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.level).String(); got != tt.want {
			t.Errorf("slogToZerologLevel(%v) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(NewTestLogger(&buf))
	defer Init(DefaultConfig())

	adapter := NewWatermillAdapter().With(watermill.LogFields{"topic": "backstop.jobs"})
	adapter.Error("publish failed", errors.New("nats down"), watermill.LogFields{"attempt": 2})

	out := buf.String()
	for _, want := range []string{`"component":"events"`, `"topic":"backstop.jobs"`, `"error":"nats down"`, `"attempt":2`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in output, got: %s", want, out)
		}
	}
}
