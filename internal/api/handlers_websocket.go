// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tomtom215/partysync/internal/ingress"
	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/validation"
	ws "github.com/tomtom215/partysync/internal/websocket"
)

// WebSocket upgrades a participant connection for one party. The connection
// is pinned to the party in the path and the participant in the query, so
// it can only speak for that participant.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil || h.dispatcher == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "WebSocket service unavailable", nil)
		return
	}

	partyID, ok := pathPartyID(w, r)
	if !ok {
		return
	}
	participantID := r.URL.Query().Get("participant")
	if verr := validation.ValidateVar("participant", participantID, "required,identifier"); verr != nil {
		respondEngineError(w, verr)
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("WebSocket upgrade error")
		return
	}

	opts := ws.ClientOptions{
		Source: ingress.Source{PartyID: partyID, ParticipantID: participantID},
	}
	if h.config != nil {
		opts.MessagesPerSecond = h.config.Security.WSMessagesPerSecond
		opts.Burst = h.config.Security.WSBurst
		opts.PingInterval = h.config.Security.WSPingInterval
	}
	client := ws.NewClient(h.hub, conn, h.dispatcher, opts)

	select {
	case h.hub.Register <- client:
		client.Start(h.baseCtx)
	case <-h.baseCtx.Done():
		_ = conn.Close()
	}
}

func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin allows non-browser players, which send no Origin, and
// browsers whose Origin is in security.cors_origins.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || h.config == nil {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}
