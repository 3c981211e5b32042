// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"

	"github.com/tomtom215/backstop/internal/metrics"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func TestRequestIDWithLogging(t *testing.T) {
	t.Parallel()
	var seen string
	h := RequestIDWithLogging()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = chimiddleware.GetReqID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("generates an id", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		if got := w.Header().Get(chimiddleware.RequestIDHeader); got == "" || got != seen {
			t.Errorf("response id %q, context id %q", got, seen)
		}
	})

	t.Run("propagates the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(chimiddleware.RequestIDHeader, "abc-123")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get(chimiddleware.RequestIDHeader); got != "abc-123" {
			t.Errorf("request id = %q", got)
		}
	})
}

func TestRateLimit(t *testing.T) {
	t.Parallel()
	h := RateLimit(MiddlewareConfig{RateLimitRequests: 2, RateLimitWindow: time.Minute})(http.HandlerFunc(okHandler))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/routines/orders/backups/full", nil)
		req.RemoteAddr = "10.0.0.1:5000"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if w.Code == http.StatusTooManyRequests && !strings.Contains(w.Body.String(), ErrCodeRateLimited) {
			t.Errorf("429 body = %s", w.Body.String())
		}
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusNoContent || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v, want [204 204 429]", codes)
	}

	// Another client has its own budget.
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "10.0.0.2:5000"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("second client = %d", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	t.Parallel()
	h := RateLimit(MiddlewareConfig{RateLimitRequests: 1, RateLimitWindow: time.Minute, RateLimitDisabled: true})(http.HandlerFunc(okHandler))
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
		if w.Code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i, w.Code)
		}
	}
}

func TestCORS(t *testing.T) {
	t.Parallel()
	h := CORS(MiddlewareConfig{CORSAllowedOrigins: []string{"https://ops.example.com"}, CORSMaxAge: 60})(http.HandlerFunc(okHandler))

	tests := []struct {
		origin string
		want   string
	}{
		{"https://ops.example.com", "https://ops.example.com"},
		{"https://evil.example.com", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/routines", nil)
		req.Header.Set("Origin", tt.origin)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestPrometheusMetricsUsesRoutePattern(t *testing.T) {
	t.Parallel()
	r := chi.NewRouter()
	r.Use(PrometheusMetrics())
	r.Get("/v1/routines/{routine}/job", okHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/routines/orders/job", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	// The pattern label keeps routine names out of the series set.
	var m io_prometheus_client.Metric
	obs := metrics.APIRequestDuration.WithLabelValues(http.MethodGet, "/v1/routines/{routine}/job", "204")
	if err := obs.(prometheus.Metric).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	if m.GetHistogram().GetSampleCount() < 1 {
		t.Error("no observation recorded for route pattern")
	}
}
