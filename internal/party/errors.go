// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match with errors.Is.
var (
	// ErrRejectedControl wraps every control rejection; see RejectionError.
	ErrRejectedControl = errors.New("control event rejected")

	// ErrMalformedReport marks a heartbeat with missing or invalid fields.
	ErrMalformedReport = errors.New("malformed heartbeat report")

	// ErrNoHostAvailable is reported when the last eligible host is gone.
	ErrNoHostAvailable = errors.New("no host available")

	// ErrSessionNotFound is returned for an unknown party id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrUnknownParticipant is returned when a participant is not in the session.
	ErrUnknownParticipant = errors.New("unknown participant")

	// ErrSessionClosed is returned by a loop that has stopped accepting events.
	ErrSessionClosed = errors.New("session closed")

	// ErrQueueFull is returned when a session's inbound queue is saturated.
	ErrQueueFull = errors.New("session queue full")
)

// RejectReason explains why a control event was not applied.
type RejectReason string

const (
	RejectNotHost RejectReason = "not_host"
	RejectStale   RejectReason = "stale"
	RejectNoHost  RejectReason = "no_host"
	RejectInvalid RejectReason = "invalid"
)

// Message returns the text a UI can show to the issuer.
func (r RejectReason) Message() string {
	switch r {
	case RejectNotHost:
		return "You are not the host"
	case RejectStale:
		return "This update is outdated"
	case RejectNoHost:
		return "This party has no host"
	case RejectInvalid:
		return "This command is not valid"
	default:
		return "This command was rejected"
	}
}

// RejectionError carries the reason for a rejected control event.
type RejectionError struct {
	Reason RejectReason
	Action Action
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %s (%s)", ErrRejectedControl.Error(), e.Action, e.Reason, e.Detail)
	}
	return fmt.Sprintf("%s %s: %s", ErrRejectedControl.Error(), e.Action, e.Reason)
}

// Unwrap lets errors.Is match ErrRejectedControl, and ErrNoHostAvailable for no_host.
func (e *RejectionError) Unwrap() []error {
	if e.Reason == RejectNoHost {
		return []error{ErrRejectedControl, ErrNoHostAvailable}
	}
	return []error{ErrRejectedControl}
}

func reject(reason RejectReason, action Action, detail string) *RejectionError {
	return &RejectionError{Reason: reason, Action: action, Detail: detail}
}
