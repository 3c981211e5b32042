// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypePing = "ping"
	MessageTypePong = "pong"
)

// Message is one frame on the event stream. Type is the lifecycle event
// type for relayed events.
type Message struct {
	Type    string          `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Routine string          `json:"routine,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Hub fans messages out to connected clients.
type Hub struct {
	broadcast chan Message

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. Serve must run for messages to be delivered.
func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan Message, 256),
		clients:   make(map[*Client]struct{}),
	}
}

// String names the hub for the supervisor.
func (h *Hub) String() string {
	return "websocket-hub"
}

// Register adds a client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	logging.Info().Uint64("client", c.id).Str("routine", c.routine).Int("total_clients", n).Msg("websocket client connected")
}

// Unregister removes a client and closes its send channel. Unknown or
// already removed clients are ignored.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		metrics.WebSocketClients.Set(float64(n))
		logging.Info().Uint64("client", c.id).Int("total_clients", n).Msg("websocket client disconnected")
	}
}

// Serve delivers broadcast messages until ctx is done, then closes every
// client. It implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	for {
		// Shutdown wins over pending broadcasts.
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	n := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", n).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// sortedClients returns clients in ID order. Caller holds mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// broadcastToClients queues msg for every interested client. Clients whose
// buffer is full are dropped.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			close(c.send)
			delete(h.clients, c)
			metrics.WebSocketDropped.Inc()
			logging.Warn().Uint64("client", c.id).Msg("websocket client too slow, disconnecting")
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WebSocketClients.Set(0)
}

// Broadcast queues msg without blocking. It reports false when the
// broadcast buffer is full and the message was dropped.
func (h *Hub) Broadcast(msg Message) bool {
	select {
	case h.broadcast <- msg:
		return true
	default:
		metrics.WebSocketDropped.Inc()
		logging.Warn().Str("type", msg.Type).Msg("broadcast channel full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
