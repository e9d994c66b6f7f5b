// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package eventbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	natsgo "github.com/nats-io/nats.go"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
)

// Metadata keys set on every outbound message.
const (
	MetadataPartyID = "party_id"
	MetadataType    = "type"
	MetadataTo      = "to"
)

// ErrPublisherClosed is returned by Publish after Close.
var ErrPublisherClosed = errors.New("publisher is closed")

// PublisherConfig configures the outbound publisher.
type PublisherConfig struct {
	URL            string
	SubjectPrefix  string
	MaxReconnects  int
	ReconnectWait  time.Duration
	CircuitBreaker CircuitBreakerConfig
}

// Publisher fans engine output out to NATS subjects
// <prefix>.<partyID>.<type>. It implements party.Broadcaster.
type Publisher struct {
	publisher      message.Publisher
	circuitBreaker *gobreaker.CircuitBreaker[interface{}]
	prefix         string
	logger         watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewPublisher connects a Watermill NATS publisher over core NATS.
func NewPublisher(cfg PublisherConfig, logger watermill.LoggerAdapter) (*Publisher, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.CircuitBreaker.Name == "" {
		cfg.CircuitBreaker.Name = "nats-publisher"
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("partysync-publisher"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS publisher disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS publisher reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream:   wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	return &Publisher{
		publisher:      pub,
		circuitBreaker: NewCircuitBreaker(cfg.CircuitBreaker),
		prefix:         strings.TrimSuffix(cfg.SubjectPrefix, "."),
		logger:         logger,
	}, nil
}

// Subject returns the outbound subject for a party message.
func Subject(prefix, partyID, msgType string) string {
	return prefix + "." + partyID + "." + msgType
}

// Broadcast publishes out. Failures are logged and counted, never returned:
// the session loop must not stall on the event bus.
func (p *Publisher) Broadcast(out party.Outbound) {
	if err := p.PublishOutbound(out); err != nil && !errors.Is(err, ErrPublisherClosed) {
		p.logger.Error("Failed to publish party message", err, watermill.LogFields{
			"party_id": out.PartyID,
			"type":     out.Type,
		})
	}
}

// PublishOutbound serializes and publishes one engine message.
func (p *Publisher) PublishOutbound(out party.Outbound) error {
	data, err := json.Marshal(models.Message{Type: out.Type, Data: out.Payload})
	if err != nil {
		return fmt.Errorf("marshal %s: %w", out.Type, err)
	}

	msg := message.NewMessage(uuid.NewString(), data)
	msg.Metadata.Set(MetadataPartyID, out.PartyID)
	msg.Metadata.Set(MetadataType, out.Type)
	if out.To != "" {
		msg.Metadata.Set(MetadataTo, out.To)
	}
	return p.Publish(Subject(p.prefix, out.PartyID, out.Type), msg)
}

// Publish sends msg to topic through the circuit breaker.
func (p *Publisher) Publish(topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	_, err := p.circuitBreaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(topic, msg)
	})
	metrics.RecordNATSPublish(err)
	return err
}

// State returns the circuit breaker state, for health checks.
func (p *Publisher) State() gobreaker.State {
	return p.circuitBreaker.State()
}

// Close shuts down the publisher.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}
