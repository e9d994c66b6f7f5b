// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package models

import (
	"time"
)

// APIResponse is the envelope returned by every REST endpoint.
//
// Status is "success" or "error". Error is only populated on failure.
//
//	{
//	  "status": "error",
//	  "error": {"code": "CONTROL_REJECTED", "message": "You are not the host", "details": {"reason": "not_host"}},
//	  "metadata": {"timestamp": "2026-03-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string      `json:"status"`
	Data     interface{} `json:"data"`
	Metadata Metadata    `json:"metadata"`
	Error    *APIError   `json:"error,omitempty"`
}

// Metadata carries response timing information.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError is a machine-readable error code plus a message a UI can show verbatim.
type APIError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error codes used by the API.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeControlRejected = "CONTROL_REJECTED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeQueueFull       = "QUEUE_FULL"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"
)
