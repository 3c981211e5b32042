// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	ps := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	t.Cleanup(func() { _ = ps.Close() })
	return ps
}

// signalSource reports each subscription so tests publish after it exists;
// gochannel drops messages that have no subscriber.
type signalSource struct {
	*gochannel.GoChannel
	subscribed chan string
}

func (s signalSource) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := s.GoChannel.Subscribe(ctx, topic)
	s.subscribed <- topic
	return ch, err
}

func TestRelayForwardsEvents(t *testing.T) {
	t.Parallel()
	src := signalSource{GoChannel: newPubSub(t), subscribed: make(chan string, 2)}
	h := NewHub()
	runHub(t, h)

	c := testClient(h, "orders")
	h.Register(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relayDone := make(chan error, 1)
	go func() { relayDone <- NewRelay(h, src, "jobs", "catalog").Serve(ctx) }()
	for range 2 {
		select {
		case <-src.subscribed:
		case <-time.After(2 * time.Second):
			t.Fatal("relay did not subscribe")
		}
	}

	events := []struct{ topic, payload, wantType string }{
		{"jobs", `{"type":"job.finished","job":{"routine":"orders","id":"j1"}}`, "job.finished"},
		{"catalog", `{"type":"backup.appended","routine":"billing","backups":[]}`, ""},
		{"catalog", `{"type":"backups.pruned","routine":"orders","backups":[]}`, "backups.pruned"},
	}
	for _, ev := range events {
		if err := src.Publish(ev.topic, message.NewMessage(watermill.NewUUID(), []byte(ev.payload))); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if ev.wantType != "" {
			expectMessage(t, c, ev.wantType)
		}
	}
	expectNothing(t, c)

	cancel()
	select {
	case err := <-relayDone:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelayForwardShape(t *testing.T) {
	t.Parallel()
	h := NewHub()
	r := NewRelay(h, nil)

	r.forward("backstop.jobs", message.NewMessage("m1", []byte(`{"type":"job.finished","job":{"routine":"orders"}}`)))
	r.forward("backstop.jobs", message.NewMessage("m2", []byte(`not json`)))

	select {
	case msg := <-h.broadcast:
		if msg.Type != "job.finished" || msg.Routine != "orders" || !strings.Contains(string(msg.Data), `"job"`) {
			t.Errorf("message = %+v", msg)
		}
	default:
		t.Fatal("nothing broadcast")
	}
	select {
	case msg := <-h.broadcast:
		t.Errorf("undecodable event broadcast: %+v", msg)
	default:
	}
}

type failingSource struct{}

func (failingSource) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return nil, errors.New("closed")
}

func TestRelaySubscribeError(t *testing.T) {
	t.Parallel()
	err := NewRelay(NewHub(), failingSource{}, "jobs").Serve(context.Background())
	if err == nil || !strings.Contains(err.Error(), "subscribe jobs") {
		t.Errorf("Serve = %v", err)
	}
}

func TestCheckOrigin(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		origin  string
		allowed []string
		want    bool
	}{
		{"no origin", "", nil, true},
		{"same host", "http://backstop:8480", nil, true},
		{"listed", "https://ops.example.com", []string{"https://ops.example.com"}, true},
		{"wildcard", "https://evil.example.com", []string{"*"}, true},
		{"foreign", "https://evil.example.com", []string{"https://ops.example.com"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://backstop:8480/v1/events", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := checkOrigin(r, tt.allowed); got != tt.want {
				t.Errorf("checkOrigin = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSanitizeLogValue(t *testing.T) {
	t.Parallel()
	if got := sanitizeLogValue("a\nb\x1bc"); got != "abc" {
		t.Errorf("sanitizeLogValue = %q", got)
	}
	if got := sanitizeLogValue(strings.Repeat("x", 300)); len(got) != 203 {
		t.Errorf("len = %d", len(got))
	}
}

func TestAcceptEndToEnd(t *testing.T) {
	t.Parallel()
	h := NewHub()
	runHub(t, h)
	upgrader := NewUpgrader(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = Accept(h, &upgrader, w, r, r.URL.Query().Get("routine"))
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?routine=orders"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var pong Message
	if err := conn.ReadJSON(&pong); err != nil || pong.Type != MessageTypePong {
		t.Fatalf("pong = (%+v, %v)", pong, err)
	}

	h.Broadcast(Message{Type: "backup.appended", Routine: "billing"})
	h.Broadcast(Message{Type: "job.finished", Routine: "orders"})

	var got Message
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "job.finished" {
		t.Errorf("first event = %+v, want the orders event", got)
	}
}
