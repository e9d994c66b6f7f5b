// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/partysync/internal/audit"
	"github.com/tomtom215/partysync/internal/auth"
	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
	"github.com/tomtom215/partysync/internal/validation"
)

// transferHostRequest is the body of an administrative host override.
type transferHostRequest struct {
	Target string `json:"targetParticipantId" validate:"required,identifier"`
}

// partyList is the body of GET /parties.
type partyList struct {
	Parties []models.PartyState `json:"parties"`
	Total   int                 `json:"total"`
}

// pathPartyID returns the {partyID} URL parameter, or writes a 400.
func pathPartyID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "partyID")
	if verr := validation.ValidateVar("partyId", id, "required,identifier"); verr != nil {
		respondEngineError(w, verr)
		return "", false
	}
	return id, true
}

// Join adds a participant, creating the party on first join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	var req models.MembershipMessage
	if err := decodeBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.PartyID = partyID
	if err := validate(&req); err != nil {
		respondEngineError(w, err)
		return
	}

	p, err := h.engine.Join(r.Context(), partyID, req.ParticipantID, party.Role(req.Role))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("party_id", partyID).
		Str("participant_id", p.ID).
		Str("role", string(p.Role)).
		Msg("participant joined")
	respondSuccess(w, http.StatusOK, party.StatusFromParticipant(&p), start)
}

// Leave removes a participant. The party ends with its last participant.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	var req models.MembershipMessage
	if err := decodeBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.PartyID = partyID
	if err := validate(&req); err != nil {
		respondEngineError(w, err)
		return
	}

	if err := h.engine.Leave(r.Context(), partyID, req.ParticipantID); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"participantId": req.ParticipantID}, start)
}

// Heartbeat applies a participant report and returns the participant's new state.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	var req models.HeartbeatMessage
	if err := decodeBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.PartyID = partyID
	if err := validate(&req); err != nil {
		respondEngineError(w, err)
		return
	}

	p, err := h.engine.Heartbeat(r.Context(), party.ReportFromMessage(&req))
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, party.StatusFromParticipant(&p), start)
}

// Control submits a playback command. Rejections answer 409 with the reason.
func (h *Handler) Control(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	var req models.ControlMessage
	if err := decodeBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	req.PartyID = partyID
	if err := validate(&req); err != nil {
		respondEngineError(w, err)
		return
	}

	if err := h.engine.Control(r.Context(), party.EventFromMessage(&req)); err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"accepted": true,
		"action":   req.Action,
	}, start)
}

// ForceSync re-broadcasts the party's target position. Operator only.
func (h *Handler) ForceSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	err := h.engine.ForceSync(r.Context(), partyID)
	h.recordAudit(r, audit.EventTypeForceSync, partyID, "", err)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("party_id", partyID).
		Str("operator", operatorName(r)).
		Msg("force sync issued")
	respondSuccess(w, http.StatusAccepted, map[string]string{"partyId": partyID}, start)
}

// Reconnect resets a participant's connection state. Operator only.
func (h *Handler) Reconnect(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}
	participantID := chi.URLParam(r, "participantID")
	if verr := validation.ValidateVar("participantId", participantID, "required,identifier"); verr != nil {
		respondEngineError(w, verr)
		return
	}

	p, err := h.engine.Reconnect(r.Context(), partyID, participantID)
	h.recordAudit(r, audit.EventTypeReconnect, partyID, participantID, err)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	logging.Ctx(r.Context()).Info().
		Str("party_id", partyID).
		Str("participant_id", participantID).
		Str("operator", operatorName(r)).
		Msg("participant connection reset")
	respondSuccess(w, http.StatusOK, party.StatusFromParticipant(&p), start)
}

// TransferHost moves host authority to a participant regardless of who holds
// it, including when the party has no host. Admin only.
func (h *Handler) TransferHost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	var req transferHostRequest
	if err := decodeBody(w, r, &req); err != nil {
		respondBadBody(w, err)
		return
	}
	if err := validate(&req); err != nil {
		respondEngineError(w, err)
		return
	}

	ev := &party.ControlEvent{
		PartyID:  partyID,
		Action:   party.ActionTransferHost,
		Target:   req.Target,
		IssuedBy: "operator:" + operatorName(r),
		IssuedAt: time.Now(),
		Override: true,
	}
	err := h.engine.Control(r.Context(), ev)
	h.recordAudit(r, audit.EventTypeTransferHost, partyID, req.Target, err)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	logging.Ctx(r.Context()).Warn().
		Str("party_id", partyID).
		Str("target", req.Target).
		Str("operator", operatorName(r)).
		Msg("host authority overridden")
	respondSuccess(w, http.StatusOK, map[string]string{"hostParticipantId": req.Target}, start)
}

// GetParty returns one party's state and roster.
func (h *Handler) GetParty(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}

	snap, err := h.engine.Snapshot(r.Context(), partyID)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, party.StateFromSnapshot(snap), start)
}

// ListParties returns every live party ordered by id.
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snaps := h.engine.Snapshots(r.Context())
	list := partyList{Parties: make([]models.PartyState, 0, len(snaps)), Total: len(snaps)}
	for _, snap := range snaps {
		list.Parties = append(list.Parties, party.StateFromSnapshot(snap))
	}
	respondSuccess(w, http.StatusOK, list, start)
}

func operatorName(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	return "anonymous"
}
