// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

// Package validation provides struct validation using go-playground/validator v10.
//
// A thread-safe singleton validator checks inbound wire messages and
// configuration. Field names in errors are taken from json tags so that
// clients see the names they sent (partyId, issuedAt).
//
// # Custom Tags
//
//   - identifier: party and participant ids, [A-Za-z0-9][A-Za-z0-9_.:-]{0,127}
//   - finite: float fields that must not be NaN or infinite
//
// # Usage
//
//	if verr := validation.ValidateStruct(&msg); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, apiErr.Details)
//	    return
//	}
//
// Path parameters are checked one at a time:
//
//	if verr := validation.ValidateVar("partyID", partyID, "required,identifier"); verr != nil {
//	    ...
//	}
package validation
