// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/events"
	"github.com/tomtom215/backstop/internal/jobs"
	ws "github.com/tomtom215/backstop/internal/websocket"
)

func TestEventsUnavailable(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	code, env := s.do(t, http.MethodGet, "/v1/events", "")
	if code != http.StatusServiceUnavailable || env.Error == nil || env.Error.Code != ErrCodeUnavailable {
		t.Errorf("events without hub = %d %+v", code, env.Error)
	}
}

func TestEventStream(t *testing.T) {
	t.Parallel()

	pub, err := events.NewPublisher(events.Config{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { pub.Close() })

	s := newTestServer(t, false, func(o *backup.Options) {
		o.Tracker = jobs.NewTracker(jobs.WithFinishHook(pub.JobFinished))
		o.Observer = pub
	})

	hub := ws.NewHub()
	s.api.SetEventHub(hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Serve(ctx) }()
	go func() { _ = ws.NewRelay(hub, pub, events.TopicJobs, events.TopicCatalog).Serve(ctx) }()

	// Unknown routines are rejected before the upgrade.
	if code, env := s.do(t, http.MethodGet, "/v1/events?routine=nope", ""); code != http.StatusNotFound {
		t.Errorf("unknown routine = %d %+v", code, env.Error)
	}

	srv := httptest.NewServer(s.handler)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events?routine=orders"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// The relay subscribes asynchronously; a ping round trip shows the
	// client is registered, and a short wait covers the subscription.
	if err := conn.WriteJSON(ws.Message{Type: ws.MessageTypePing}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var pong ws.Message
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != ws.MessageTypePong {
		t.Fatalf("pong = (%+v, %v)", pong, err)
	}
	time.Sleep(100 * time.Millisecond)

	if code, env := s.do(t, http.MethodPost, "/v1/routines/orders/backups/full", ""); code != http.StatusAccepted {
		t.Fatalf("start backup = %d %+v", code, env.Error)
	}

	seen := map[string]bool{}
	for !seen[events.TypeJobFinished] || !seen[events.TypeBackupAppended] {
		var msg ws.Message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read event (seen %v): %v", seen, err)
		}
		if msg.Routine != "orders" {
			t.Errorf("event for routine %q", msg.Routine)
		}
		seen[msg.Type] = true
	}
}
