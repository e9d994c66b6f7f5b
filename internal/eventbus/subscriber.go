// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/partysync/internal/ingress"
	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
)

// SubscriberConfig configures the inbound subscriber.
type SubscriberConfig struct {
	URL              string
	Subject          string
	QueueGroup       string
	SubscribersCount int
	MaxReconnects    int
	ReconnectWait    time.Duration
	CloseTimeout     time.Duration
}

// Subscriber consumes inbound envelopes from NATS and routes them through
// the shared dispatcher. It implements suture.Service.
type Subscriber struct {
	subscriber message.Subscriber
	dispatcher *ingress.Dispatcher
	subject    string
	logger     watermill.LoggerAdapter
}

// NewSubscriber connects a Watermill NATS subscriber over core NATS.
func NewSubscriber(cfg SubscriberConfig, dispatcher *ingress.Dispatcher, logger watermill.LoggerAdapter) (*Subscriber, error) {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.Subject == "" {
		return nil, fmt.Errorf("subscriber subject is required")
	}
	if cfg.SubscribersCount <= 0 {
		cfg.SubscribersCount = 1
	}
	if cfg.MaxReconnects == 0 {
		cfg.MaxReconnects = -1
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.CloseTimeout <= 0 {
		cfg.CloseTimeout = 30 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("partysync-subscriber"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(cfg.ReconnectWait),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS subscriber disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS subscriber reconnected", watermill.LogFields{
				"url": nc.ConnectedUrl(),
			})
		}),
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              cfg.URL,
		QueueGroupPrefix: cfg.QueueGroup,
		SubscribersCount: cfg.SubscribersCount,
		CloseTimeout:     cfg.CloseTimeout,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream:        wmNats.JetStreamConfig{Disabled: true},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill subscriber: %w", err)
	}

	return &Subscriber{
		subscriber: sub,
		dispatcher: dispatcher,
		subject:    cfg.Subject,
		logger:     logger,
	}, nil
}

// Serve subscribes to the inbound subject and handles messages until ctx ends.
func (s *Subscriber) Serve(ctx context.Context) error {
	messages, err := s.subscriber.Subscribe(ctx, s.subject)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", s.subject, err)
	}
	s.logger.Info("NATS subscriber started", watermill.LogFields{"subject": s.subject})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("subscription to %s closed", s.subject)
			}
			if err := s.handle(ctx, msg); err != nil {
				s.logger.Error("Inbound message rejected", err, watermill.LogFields{
					"message_uuid": msg.UUID,
					"subject":      s.subject,
				})
			}
			// Invalid input is never redelivered.
			msg.Ack()
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, msg *message.Message) error {
	metrics.RecordNATSConsume()

	var env models.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ingress.ErrDecode, err)
	}
	_, err := s.dispatcher.Dispatch(ctx, ingress.Source{}, &env)
	return err
}

// String implements fmt.Stringer for suture logs.
func (s *Subscriber) String() string {
	return "nats-subscriber:" + s.subject
}

// Close shuts down the subscriber.
func (s *Subscriber) Close() error {
	return s.subscriber.Close()
}
