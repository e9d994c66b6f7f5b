// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package audit

import (
	"context"
	"time"
)

// EventType categorizes audit events.
type EventType string

const (
	EventTypeForceSync    EventType = "operator.force_sync"
	EventTypeReconnect    EventType = "operator.reconnect"
	EventTypeTransferHost EventType = "operator.transfer_host"
)

// Outcome indicates whether an action succeeded.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Event is one recorded operator action.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Outcome   Outcome   `json:"outcome"`

	// Actor is the token subject, or "anonymous" when auth is disabled.
	Actor     string `json:"actor"`
	ActorRole string `json:"actorRole,omitempty"`

	PartyID string `json:"partyId"`
	// Target is the participant acted on, if any.
	Target string `json:"target,omitempty"`
	// Detail carries the failure reason.
	Detail string `json:"detail,omitempty"`

	SourceIP  string `json:"sourceIp,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Store persists audit events.
type Store interface {
	SaveAuditEvent(ctx context.Context, event *Event) error
	QueryAuditEvents(ctx context.Context, filter QueryFilter) ([]Event, error)
}

// QueryFilter selects events. Zero fields match everything; results are
// newest first.
type QueryFilter struct {
	PartyID string
	Types   []EventType
	Since   time.Time
	Limit   int
}

// Matches reports whether e satisfies the filter, ignoring Limit.
func (f *QueryFilter) Matches(e *Event) bool {
	if f.PartyID != "" && e.PartyID != f.PartyID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if e.Type == t {
			return true
		}
	}
	return false
}
