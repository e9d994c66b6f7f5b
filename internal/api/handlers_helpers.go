// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/partysync/internal/ingress"
	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
	"github.com/tomtom215/partysync/internal/validation"
)

const maxBodyBytes = 64 * 1024

var errBadBody = errors.New("request body is not valid JSON")

// sanitizeLogValue strips control characters to prevent log injection.
func sanitizeLogValue(s string) string {
	if len(s) > 256 {
		s = s[:256]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}

func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

func respondSuccess(w http.ResponseWriter, status int, data interface{}, start time.Time) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now().UTC(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	respondErrorDetails(w, status, code, message, nil, err)
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}, err error) {
	if err != nil && status >= http.StatusInternalServerError {
		logging.Error().Str("code", code).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error: &models.APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// respondEngineError maps engine and validation errors to HTTP responses.
func respondEngineError(w http.ResponseWriter, err error) {
	var verr *validation.RequestValidationError
	if errors.As(err, &verr) {
		apiErr := verr.ToAPIError()
		respondErrorDetails(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details, nil)
		return
	}

	var rej *party.RejectionError
	if errors.As(err, &rej) {
		respondErrorDetails(w, http.StatusConflict, models.ErrCodeControlRejected, rej.Reason.Message(),
			map[string]interface{}{"reason": string(rej.Reason), "action": string(rej.Action)}, nil)
		return
	}

	desc := ingress.Describe(err)
	status := http.StatusInternalServerError
	switch desc.Code {
	case models.ErrCodeValidation:
		status = http.StatusBadRequest
	case models.ErrCodeSessionNotFound, models.ErrCodeNotFound:
		status = http.StatusNotFound
	case models.ErrCodeForbidden:
		status = http.StatusForbidden
	case models.ErrCodeQueueFull:
		status = http.StatusServiceUnavailable
	}
	respondError(w, status, desc.Code, desc.Message, err)
}

// decodeBody reads a JSON body into v and validates it.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty body", errBadBody)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: %v", errBadBody, err)
	}
	return nil
}

// validate runs struct validation, returning nil when v is valid.
func validate(v interface{}) error {
	if verr := validation.ValidateStruct(v); verr != nil {
		return verr
	}
	return nil
}

func respondBadBody(w http.ResponseWriter, err error) {
	respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "Invalid request body", err)
}
