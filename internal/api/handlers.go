// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"context"
	"time"

	"github.com/tomtom215/partysync/internal/audit"
	"github.com/tomtom215/partysync/internal/config"
	"github.com/tomtom215/partysync/internal/party"
	ws "github.com/tomtom215/partysync/internal/websocket"
)

// Engine is the subset of *party.Arena used by the REST handlers.
type Engine interface {
	Join(ctx context.Context, partyID, participantID string, role party.Role) (party.Participant, error)
	Leave(ctx context.Context, partyID, participantID string) error
	Heartbeat(ctx context.Context, report *party.HeartbeatReport) (party.Participant, error)
	Control(ctx context.Context, ev *party.ControlEvent) error
	ForceSync(ctx context.Context, partyID string) error
	Reconnect(ctx context.Context, partyID, participantID string) (party.Participant, error)
	Snapshot(ctx context.Context, partyID string) (*party.Snapshot, error)
	Snapshots(ctx context.Context) []*party.Snapshot
	Len() int
}

// HealthCheck reports whether a dependency is usable. Name appears in the
// readiness response.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler serves the REST and websocket endpoints.
type Handler struct {
	engine     Engine
	hub        *ws.Hub
	dispatcher ws.Dispatcher
	config     *config.Config
	checks     []HealthCheck
	audit      *audit.Logger
	baseCtx    context.Context
	startTime  time.Time
}

// HandlerOptions wires a Handler. Hub and Dispatcher may be nil, which
// disables the websocket endpoint.
type HandlerOptions struct {
	Engine     Engine
	Hub        *ws.Hub
	Dispatcher ws.Dispatcher
	Config     *config.Config
	Checks     []HealthCheck
	// Audit records operator actions. Nil disables the audit trail.
	Audit *audit.Logger
	// BaseContext bounds websocket connections; they close when it ends.
	BaseContext context.Context
}

// NewHandler creates a handler.
func NewHandler(opts HandlerOptions) *Handler {
	base := opts.BaseContext
	if base == nil {
		base = context.Background()
	}
	return &Handler{
		engine:     opts.Engine,
		hub:        opts.Hub,
		dispatcher: opts.Dispatcher,
		config:     opts.Config,
		checks:     opts.Checks,
		audit:      opts.Audit,
		baseCtx:    base,
		startTime:  time.Now(),
	}
}
