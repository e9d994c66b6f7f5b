// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package ingress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
	"github.com/tomtom215/partysync/internal/validation"
)

// Errors returned by Dispatch before the engine is reached.
var (
	ErrUnknownType   = errors.New("unknown message type")
	ErrDecode        = errors.New("malformed message body")
	ErrImpersonation = errors.New("message does not belong to this connection")
)

// Engine is the subset of *party.Arena used by the dispatcher.
type Engine interface {
	Join(ctx context.Context, partyID, participantID string, role party.Role) (party.Participant, error)
	Leave(ctx context.Context, partyID, participantID string) error
	SubmitHeartbeat(report *party.HeartbeatReport) (<-chan party.Result, error)
	Control(ctx context.Context, ev *party.ControlEvent) error
}

// Source pins inbound messages to a party and participant. The zero value
// trusts the ids carried in each message.
type Source struct {
	PartyID       string
	ParticipantID string
	// RoundTripMs is the transport's own round-trip measurement. It fills
	// heartbeats that do not report one; zero means none is available.
	RoundTripMs float64
}

func (s Source) check(partyID, participantID string) error {
	if s.PartyID != "" && partyID != s.PartyID {
		return fmt.Errorf("%w: party %q", ErrImpersonation, partyID)
	}
	if s.ParticipantID != "" && participantID != s.ParticipantID {
		return fmt.Errorf("%w: participant %q", ErrImpersonation, participantID)
	}
	return nil
}

// Dispatcher routes decoded envelopes to the engine. It is shared by the
// WebSocket gateway and the NATS subscriber.
type Dispatcher struct {
	engine Engine
}

// NewDispatcher creates a dispatcher over engine.
func NewDispatcher(engine Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch applies one envelope. The returned message, if any, is a direct
// reply for the sender. Control rejections are not errors here: the engine
// already delivers them to the issuer as control_rejected.
func (d *Dispatcher) Dispatch(ctx context.Context, src Source, env *models.Envelope) (*models.Message, error) {
	switch env.Type {
	case models.MessageTypeHeartbeat:
		return nil, d.heartbeat(src, env.Data)
	case models.MessageTypeControl:
		return nil, d.control(ctx, src, env.Data)
	case models.MessageTypeJoin:
		return nil, d.join(ctx, src, env.Data)
	case models.MessageTypeLeave:
		return nil, d.leave(ctx, src, env.Data)
	case models.MessageTypePing:
		return &models.Message{
			Type: models.MessageTypePong,
			Data: map[string]time.Time{"serverTime": time.Now().UTC()},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func (d *Dispatcher) heartbeat(src Source, data json.RawMessage) error {
	var msg models.HeartbeatMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if err := src.check(msg.PartyID, msg.ParticipantID); err != nil {
		return err
	}

	report := party.ReportFromMessage(&msg)
	if report.RoundTripMs == nil && src.RoundTripMs > 0 {
		rtt := src.RoundTripMs
		report.RoundTripMs = &rtt
	}

	// Heartbeats are fire-and-forget; the loop logs malformed reports.
	reply, err := d.engine.SubmitHeartbeat(report)
	if err != nil {
		return err
	}
	go drain(reply, msg.PartyID, msg.ParticipantID)
	return nil
}

func (d *Dispatcher) control(ctx context.Context, src Source, data json.RawMessage) error {
	var msg models.ControlMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if err := src.check(msg.PartyID, msg.IssuedBy); err != nil {
		return err
	}

	err := d.engine.Control(ctx, party.EventFromMessage(&msg))
	if errors.Is(err, party.ErrRejectedControl) {
		return nil
	}
	return err
}

func (d *Dispatcher) join(ctx context.Context, src Source, data json.RawMessage) error {
	var msg models.MembershipMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if err := src.check(msg.PartyID, msg.ParticipantID); err != nil {
		return err
	}
	_, err := d.engine.Join(ctx, msg.PartyID, msg.ParticipantID, party.Role(msg.Role))
	return err
}

func (d *Dispatcher) leave(ctx context.Context, src Source, data json.RawMessage) error {
	var msg models.MembershipMessage
	if err := decode(data, &msg); err != nil {
		return err
	}
	if err := src.check(msg.PartyID, msg.ParticipantID); err != nil {
		return err
	}
	return d.engine.Leave(ctx, msg.PartyID, msg.ParticipantID)
}

func decode(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: empty data", ErrDecode)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

func drain(reply <-chan party.Result, partyID, participantID string) {
	res := <-reply
	if res.Err == nil || party.IsClosed(res.Err) {
		return
	}
	logging.Debug().
		Err(res.Err).
		Str("party_id", partyID).
		Str("participant_id", participantID).
		Msg("heartbeat not applied")
}
