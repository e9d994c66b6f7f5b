// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package ingress

import (
	"context"
	"errors"

	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
	"github.com/tomtom215/partysync/internal/validation"
)

// ErrorPayload is the data of an outbound error message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Describe maps an error to a stable code and a message safe to show users.
func Describe(err error) ErrorPayload {
	var verr *validation.RequestValidationError
	var rej *party.RejectionError

	switch {
	case errors.As(err, &verr):
		return ErrorPayload{Code: models.ErrCodeValidation, Message: verr.ToAPIError().Message}
	case errors.As(err, &rej):
		return ErrorPayload{Code: models.ErrCodeControlRejected, Message: rej.Reason.Message()}
	case errors.Is(err, ErrDecode), errors.Is(err, ErrUnknownType), errors.Is(err, party.ErrMalformedReport):
		return ErrorPayload{Code: models.ErrCodeValidation, Message: err.Error()}
	case errors.Is(err, ErrImpersonation):
		return ErrorPayload{Code: models.ErrCodeForbidden, Message: "Message does not belong to this connection"}
	case errors.Is(err, party.ErrSessionNotFound):
		return ErrorPayload{Code: models.ErrCodeSessionNotFound, Message: "Watch party not found"}
	case errors.Is(err, party.ErrUnknownParticipant):
		return ErrorPayload{Code: models.ErrCodeNotFound, Message: "Participant not found"}
	case errors.Is(err, party.ErrQueueFull):
		return ErrorPayload{Code: models.ErrCodeQueueFull, Message: "Server busy, try again"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorPayload{Code: models.ErrCodeInternal, Message: "Request timed out"}
	default:
		return ErrorPayload{Code: models.ErrCodeInternal, Message: "Internal error"}
	}
}

// ErrorMessage wraps Describe(err) in an outbound error message.
func ErrorMessage(err error) *models.Message {
	return &models.Message{Type: models.MessageTypeError, Data: Describe(err)}
}
