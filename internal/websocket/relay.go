// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package websocket

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/backstop/internal/logging"
)

// Source yields lifecycle event messages per topic.
type Source interface {
	Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error)
}

// Relay forwards lifecycle events from a Source to a Hub.
type Relay struct {
	hub    *Hub
	source Source
	topics []string
}

// NewRelay creates a relay for topics.
func NewRelay(hub *Hub, source Source, topics ...string) *Relay {
	return &Relay{hub: hub, source: source, topics: topics}
}

// String names the relay for the supervisor.
func (r *Relay) String() string {
	return "event-relay"
}

// Serve forwards events until ctx is done. A subscription that closes on
// its own is an error so the supervisor resubscribes.
func (r *Relay) Serve(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, topic := range r.topics {
		ch, err := r.source.Subscribe(gctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case msg, ok := <-ch:
					if !ok {
						if gctx.Err() != nil {
							return gctx.Err()
						}
						return fmt.Errorf("subscription %s closed", topic)
					}
					r.forward(topic, msg)
					msg.Ack()
				}
			}
		})
	}
	return g.Wait()
}

// envelope picks the fields the stream filters on from either event shape.
type envelope struct {
	Type    string `json:"type"`
	Routine string `json:"routine"`
	Job     *struct {
		Routine string `json:"routine"`
	} `json:"job"`
}

func (r *Relay) forward(topic string, msg *message.Message) {
	var env envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		logging.Warn().Err(err).Str("topic", topic).Str("message_id", msg.UUID).Msg("dropping undecodable event")
		return
	}
	routine := env.Routine
	if routine == "" && env.Job != nil {
		routine = env.Job.Routine
	}
	r.hub.Broadcast(Message{
		Type:    env.Type,
		Topic:   topic,
		Routine: routine,
		Data:    json.RawMessage(msg.Payload),
	})
}
