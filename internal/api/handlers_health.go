// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"context"
	"net/http"
	"time"
)

const readinessTimeout = 2 * time.Second

// HealthLive reports that the process is alive, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	}, start)
}

// HealthReady reports whether every registered dependency check passes.
// Returns 503 with the failing checks otherwise.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	ready := true
	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = err.Error()
			ready = false
			continue
		}
		checks[c.Name] = "ok"
	}

	data := map[string]interface{}{
		"ready":    ready,
		"checks":   checks,
		"sessions": h.engine.Len(),
	}
	if h.hub != nil {
		data["websocket_clients"] = h.hub.ClientCount()
	}

	if !ready {
		respondErrorDetails(w, http.StatusServiceUnavailable, "NOT_READY", "Service is not ready", data, nil)
		return
	}
	respondSuccess(w, http.StatusOK, data, start)
}
