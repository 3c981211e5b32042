// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
)

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("publisher is closed")

// Config selects and tunes the transport.
type Config struct {
	// NATSURL enables NATS publication. Empty means in-process only.
	NATSURL         string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	// OutputBuffer sizes each in-process subscriber's channel.
	OutputBuffer int64
}

// DefaultConfig returns in-process defaults.
func DefaultConfig() Config {
	return Config{
		MaxReconnects:   -1,
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 8 << 20,
		OutputBuffer:    256,
	}
}

// Publisher sends lifecycle events. It implements backup.Observer and its
// JobFinished method is a jobs.FinishHook.
type Publisher struct {
	cfg       Config
	publisher message.Publisher
	local     *gochannel.GoChannel
	cb        *gobreaker.CircuitBreaker[struct{}]
	logger    watermill.LoggerAdapter

	// subscriber is the gochannel in-process, or a core NATS subscriber
	// opened on first Subscribe.
	subscriber message.Subscriber

	mu     sync.RWMutex
	closed bool
}

var _ backup.Observer = (*Publisher)(nil)

// NewPublisher creates a publisher for cfg.
func NewPublisher(cfg Config) (*Publisher, error) {
	def := DefaultConfig()
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.ReconnectBuffer <= 0 {
		cfg.ReconnectBuffer = def.ReconnectBuffer
	}
	if cfg.OutputBuffer <= 0 {
		cfg.OutputBuffer = def.OutputBuffer
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = def.MaxReconnects
	}

	logger := logging.NewWatermillAdapter()
	p := &Publisher{cfg: cfg, logger: logger}

	if cfg.NATSURL == "" {
		p.local = gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: cfg.OutputBuffer,
		}, logger)
		p.publisher = p.local
		p.subscriber = p.local
		logger.Info("Publishing events in-process", nil)
		return p, nil
	}

	pub, err := newNATSPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}
	p.publisher = pub
	p.cb = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "events-nats",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Events circuit state change")
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
	logger.Info("Publishing events to NATS", watermill.LogFields{"url": cfg.NATSURL})
	return p, nil
}

func natsOptions(cfg Config, logger watermill.LoggerAdapter) []natsgo.Option {
	return []natsgo.Option{
		natsgo.Name("backstop"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.ReconnectBufSize(cfg.ReconnectBuffer),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}
}

func newNATSPublisher(cfg Config, logger watermill.LoggerAdapter) (message.Publisher, error) {
	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOptions(cfg, logger),
		Marshaler:   &wmNats.NATSMarshaler{},
		// Lifecycle events are notifications; core NATS is enough.
		JetStream: wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill NATS publisher: %w", err)
	}
	return pub, nil
}

func newNATSSubscriber(cfg Config, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.NATSURL,
		QueueGroupPrefix: "", // every subscriber sees every event
		SubscribersCount: 1,
		CloseTimeout:     10 * time.Second,
		AckWaitTimeout:   30 * time.Second,
		NatsOptions:      natsOptions(cfg, logger),
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill NATS subscriber: %w", err)
	}
	return sub, nil
}

// Publish marshals payload and sends it on topic.
func (p *Publisher) Publish(ctx context.Context, topic, eventID string, payload any) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(eventID, data)
	msg.SetContext(ctx)
	if p.local == nil {
		msg.Metadata.Set(natsgo.MsgIdHdr, eventID)
	}

	if p.cb != nil {
		_, err = p.cb.Execute(func() (struct{}, error) {
			return struct{}{}, p.publisher.Publish(topic, msg)
		})
	} else {
		err = p.publisher.Publish(topic, msg)
	}

	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(topic, result).Inc()
	return err
}

// publish logs failures; lifecycle events never fail the caller.
func (p *Publisher) publish(topic, eventID string, payload any) {
	if err := p.Publish(context.Background(), topic, eventID, payload); err != nil && !errors.Is(err, ErrClosed) {
		logging.Warn().Err(err).Str("topic", topic).Str("event_id", eventID).Msg("Failed to publish event")
	}
}

// JobFinished publishes a job's final snapshot.
func (p *Publisher) JobFinished(s jobs.Snapshot) {
	ev := newJobEvent(s)
	p.publish(TopicJobs, ev.EventID, ev)
}

// BackupAppended publishes a new catalog entry.
func (p *Publisher) BackupAppended(rec catalog.Record) {
	ev := newCatalogEvent(TypeBackupAppended, rec.RoutineID, []catalog.Record{rec})
	p.publish(TopicCatalog, ev.EventID, ev)
}

// BackupsPruned publishes the backups a retention pass removed.
func (p *Publisher) BackupsPruned(report backup.PruneReport) {
	if len(report.Deleted) == 0 && len(report.Failed) == 0 {
		return
	}
	deleted := make([]catalog.Record, 0, len(report.Deleted))
	for _, d := range report.Deleted {
		deleted = append(deleted, d.Record)
	}
	ev := newCatalogEvent(TypeBackupsPruned, report.Routine, deleted)
	ev.Failed = len(report.Failed)
	p.publish(TopicCatalog, ev.EventID, ev)
}

// Subscribe returns messages for topic until ctx is done. With NATS
// configured the first call opens a core NATS subscriber; only events
// published after subscribing are delivered.
func (p *Publisher) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	sub, err := p.ensureSubscriber()
	if err != nil {
		return nil, err
	}
	return sub.Subscribe(ctx, topic)
}

func (p *Publisher) ensureSubscriber() (message.Subscriber, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if p.subscriber == nil {
		sub, err := newNATSSubscriber(p.cfg, p.logger)
		if err != nil {
			return nil, err
		}
		p.subscriber = sub
	}
	return p.subscriber, nil
}

// Close shuts down the transport. It is safe to call more than once.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	var result *multierror.Error
	if err := p.publisher.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if p.subscriber != nil && p.local == nil {
		if err := p.subscriber.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
