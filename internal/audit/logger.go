// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
)

// Logger records operator actions asynchronously. Log never blocks; Serve
// writes buffered events to the store and drains the buffer on shutdown.
// It implements suture.Service.
type Logger struct {
	store  Store
	events chan *Event
	now    func() time.Time
	logger zerolog.Logger
}

// NewLogger creates a logger with a buffer of bufferSize events (default 1000).
func NewLogger(store Store, bufferSize int) *Logger {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Logger{
		store:  store,
		events: make(chan *Event, bufferSize),
		now:    time.Now,
		logger: logging.WithComponent("audit"),
	}
}

// Log queues event. IDs and timestamps are filled in when missing.
func (l *Logger) Log(event *Event) {
	if l == nil || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = l.now().UTC()
	}

	select {
	case l.events <- event:
	default:
		metrics.RecordAuditDropped()
		l.logger.Warn().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("audit buffer full, dropping event")
	}
}

// Record logs an operator action on partyID. A non-nil err marks it failed.
func (l *Logger) Record(ctx context.Context, typ EventType, actor, role, partyID, target, sourceIP string, err error) {
	if l == nil {
		return
	}
	ev := &Event{
		Type:      typ,
		Outcome:   OutcomeSuccess,
		Actor:     actor,
		ActorRole: role,
		PartyID:   partyID,
		Target:    target,
		SourceIP:  sourceIP,
		RequestID: logging.RequestIDFromContext(ctx),
	}
	if err != nil {
		ev.Outcome = OutcomeFailure
		ev.Detail = err.Error()
	}
	l.Log(ev)
}

// Query reads events from the store.
func (l *Logger) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	return l.store.QueryAuditEvents(ctx, filter)
}

// Serve writes queued events until ctx ends, then flushes what is left.
func (l *Logger) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return ctx.Err()
		case ev := <-l.events:
			l.write(context.Background(), ev)
		}
	}
}

// String implements fmt.Stringer for suture logs.
func (l *Logger) String() string {
	return "audit-logger"
}

func (l *Logger) drain() {
	for {
		select {
		case ev := <-l.events:
			l.write(context.Background(), ev)
		default:
			return
		}
	}
}

func (l *Logger) write(ctx context.Context, ev *Event) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := l.store.SaveAuditEvent(ctx, ev)
	if err == nil {
		l.logger.Info().
			Str("event_id", ev.ID).
			Str("type", string(ev.Type)).
			Str("outcome", string(ev.Outcome)).
			Str("actor", ev.Actor).
			Str("party_id", ev.PartyID).
			Msg("audit event recorded")
		return
	}
	if errors.Is(err, context.Canceled) {
		return
	}
	l.logger.Error().Err(err).Str("event_id", ev.ID).Msg("failed to save audit event")
}
