// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Message types carried in the envelope.
const (
	MessageTypeHeartbeat            = "heartbeat"
	MessageTypeControl              = "control"
	MessageTypeJoin                 = "join"
	MessageTypeLeave                = "leave"
	MessageTypePing                 = "ping"
	MessageTypePong                 = "pong"
	MessageTypeSyncStatus           = "sync_status"
	MessageTypePlaybackUpdate       = "playback_update"
	MessageTypeForceSyncRecommended = "force_sync_recommended"
	MessageTypeControlRejected      = "control_rejected"
	MessageTypeError                = "error"
)

// Envelope is the inbound framing shared by WebSocket and NATS transports.
// Data is decoded lazily once Type is known.
type Envelope struct {
	Type string          `json:"type" validate:"required"`
	Data json.RawMessage `json:"data"`
}

// Message is the outbound framing.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HeartbeatMessage is a participant's periodic self-report.
//
// LocalPosition and SentAt are checked by the engine rather than the validator:
// a malformed heartbeat is a non-event for the participant, not a transport error.
type HeartbeatMessage struct {
	PartyID        string      `json:"partyId" validate:"required,identifier"`
	ParticipantID  string      `json:"participantId" validate:"required,identifier"`
	LocalPosition  *float64    `json:"localPosition"`
	BufferedRanges [][]float64 `json:"bufferedRanges"`
	SentAt         time.Time   `json:"sentAt"`
	RoundTripMs    *float64    `json:"roundTripMs,omitempty"`
}

// ControlMessage is a playback command issued by a participant.
type ControlMessage struct {
	PartyID  string    `json:"partyId" validate:"required,identifier"`
	Action   string    `json:"action" validate:"required,max=32"`
	Value    *float64  `json:"value,omitempty" validate:"omitempty,finite"`
	Target   string    `json:"targetParticipantId,omitempty" validate:"omitempty,identifier"`
	IssuedBy string    `json:"issuedBy" validate:"required,identifier"`
	IssuedAt time.Time `json:"issuedAt" validate:"required"`
}

// MembershipMessage is a join or leave request.
type MembershipMessage struct {
	PartyID       string `json:"partyId" validate:"required,identifier"`
	ParticipantID string `json:"participantId" validate:"required,identifier"`
	Role          string `json:"role,omitempty" validate:"omitempty,oneof=host co-host member"`
}

// ParticipantStatus is one roster row inside SyncStatus.
type ParticipantStatus struct {
	ID               string  `json:"id"`
	Role             string  `json:"role"`
	ConnectionStatus string  `json:"connectionStatus"`
	SyncStatus       string  `json:"syncStatus"`
	Quality          string  `json:"quality"`
	DriftSeconds     float64 `json:"driftSeconds"`
	RoundTripMs      float64 `json:"roundTripMs"`
}

// SyncStatus is the coalesced roster broadcast.
type SyncStatus struct {
	PartyID        string              `json:"partyId"`
	Participants   []ParticipantStatus `json:"participants"`
	SyncedCount    int                 `json:"syncedCount"`
	ConnectedCount int                 `json:"connectedCount"`
	TotalCount     int                 `json:"totalCount"`
	TargetPosition float64             `json:"targetPosition"`
	IsPlaying      bool                `json:"isPlaying"`
	NoHost         bool                `json:"noHost"`
}

// PlaybackUpdate tells every local player where the party is.
type PlaybackUpdate struct {
	PartyID           string    `json:"partyId"`
	TargetPosition    float64   `json:"targetPosition"`
	IsPlaying         bool      `json:"isPlaying"`
	IssuedBy          string    `json:"issuedBy"`
	Reason            string    `json:"reason"`
	HostParticipantID string    `json:"hostParticipantId"`
	NoHost            bool      `json:"noHost"`
	IssuedAt          time.Time `json:"issuedAt"`
}

// ForceSyncRecommended is raised once per out-of-sync episode that outlasts the
// recommendation threshold.
type ForceSyncRecommended struct {
	PartyID          string  `json:"partyId"`
	ParticipantID    string  `json:"participantId"`
	DriftSeconds     float64 `json:"driftSeconds"`
	OutOfSyncSeconds float64 `json:"outOfSyncSeconds"`
}

// ControlRejected is returned to the issuer of a rejected control event only.
type ControlRejected struct {
	PartyID  string `json:"partyId"`
	Action   string `json:"action"`
	IssuedBy string `json:"issuedBy"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

// PartyState is the REST view of one session.
type PartyState struct {
	PartyID           string              `json:"partyId"`
	HostParticipantID string              `json:"hostParticipantId"`
	NoHost            bool                `json:"noHost"`
	TargetPosition    float64             `json:"targetPosition"`
	IsPlaying         bool                `json:"isPlaying"`
	SyncTolerance     float64             `json:"syncToleranceSeconds"`
	LastControlAt     time.Time           `json:"lastControlAt"`
	CreatedAt         time.Time           `json:"createdAt"`
	Participants      []ParticipantStatus `json:"participants"`
	SyncedCount       int                 `json:"syncedCount"`
	ConnectedCount    int                 `json:"connectedCount"`
	TotalCount        int                 `json:"totalCount"`
}
