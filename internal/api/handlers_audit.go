// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tomtom215/partysync/internal/audit"
	"github.com/tomtom215/partysync/internal/auth"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/validation"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

// auditList is the body of GET /audit.
type auditList struct {
	Events []audit.Event `json:"events"`
	Total  int           `json:"total"`
}

// ListAuditEvents returns recorded operator actions, newest first. Admin only.
//
// Query parameters: party, type (repeatable), since (RFC 3339), limit.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if h.audit == nil {
		respondError(w, http.StatusServiceUnavailable, "AUDIT_DISABLED", "Audit trail is not enabled", nil)
		return
	}

	q := r.URL.Query()
	filter := audit.QueryFilter{Limit: defaultAuditLimit}
	if party := q.Get("party"); party != "" {
		if verr := validation.ValidateVar("party", party, "identifier"); verr != nil {
			respondEngineError(w, verr)
			return
		}
		filter.PartyID = party
	}
	for _, t := range q["type"] {
		filter.Types = append(filter.Types, audit.EventType(t))
	}
	if since := q.Get("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "since must be an RFC 3339 timestamp", err)
			return
		}
		filter.Since = ts
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 || n > maxAuditLimit {
			respondError(w, http.StatusBadRequest, models.ErrCodeValidation, "limit must be between 1 and 1000", err)
			return
		}
		filter.Limit = n
	}

	events, err := h.audit.Query(r.Context(), filter)
	if err != nil {
		respondError(w, http.StatusInternalServerError, models.ErrCodeInternal, "Failed to read audit trail", err)
		return
	}
	respondSuccess(w, http.StatusOK, auditList{Events: events, Total: len(events)}, start)
}

func (h *Handler) recordAudit(r *http.Request, typ audit.EventType, partyID, target string, err error) {
	if h.audit == nil {
		return
	}
	role := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		role = string(claims.Role)
	}
	h.audit.Record(r.Context(), typ, operatorName(r), role, partyID, target, r.RemoteAddr, err)
}
