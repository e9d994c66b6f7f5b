// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
	"github.com/tomtom215/partysync/internal/party"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful path (e.g. SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline may indicate a hung operation during shutdown.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Drop reasons recorded in websocket_messages_dropped_total.
const (
	DropHubFull     = "hub_full"
	DropSlowClient  = "slow_client"
	DropRateLimited = "rate_limited"
	DropEncode      = "encode_error"
)

const broadcastBuffer = 1024

// Hub keeps one room of clients per party and delivers engine output to
// the room it belongs to. It implements party.Broadcaster.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan party.Outbound
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub. It does nothing until RunWithContext is started.
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan party.Outbound, broadcastBuffer),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// Broadcast queues out for delivery without blocking the session loop.
func (h *Hub) Broadcast(out party.Outbound) {
	select {
	case h.broadcast <- out:
	default:
		metrics.RecordWSDropped(DropHubFull)
		logging.Warn().
			Str("party_id", out.PartyID).
			Str("message_type", out.Type).
			Msg("broadcast channel full, dropping message")
	}
}

// Serve implements suture.Service.
func (h *Hub) Serve(ctx context.Context) error {
	return h.RunWithContext(ctx)
}

// String implements fmt.Stringer for suture logs.
func (h *Hub) String() string {
	return "websocket-hub"
}

// RunWithContext runs the hub until ctx ends, then closes every client.
//
// Selection is prioritized so that membership changes are applied before
// any queued broadcast: shutdown first, then Register/Unregister, then
// broadcasts.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.register(client)
			continue
		case client := <-h.Unregister:
			h.unregister(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case out := <-h.broadcast:
			h.broadcastToRoom(out)
		}
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	room, ok := h.rooms[c.partyID]
	if !ok {
		room = make(map[*Client]bool)
		h.rooms[c.partyID] = room
	}
	room[c] = true
	size := len(room)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	logging.Info().
		Str("party_id", c.partyID).
		Str("participant_id", c.participantID).
		Int("room_clients", size).
		Msg("websocket client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()

	if removed {
		logging.Info().
			Str("party_id", c.partyID).
			Str("participant_id", c.participantID).
			Msg("websocket client disconnected")
	}
}

// removeLocked must be called with h.mu held.
func (h *Hub) removeLocked(c *Client) bool {
	room, ok := h.rooms[c.partyID]
	if !ok || !room[c] {
		return false
	}
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, c.partyID)
	}
	close(c.send)
	metrics.WSConnections.Dec()
	return true
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	count := h.ClientCount()
	h.closeAllClients()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(getShutdownReason(ctx))).
		Int("clients_closed", count).
		Msg("websocket hub stopped")
}

func getShutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// broadcastToRoom encodes out once and hands it to every matching client of
// its party in id order. Clients whose buffers are full are disconnected.
func (h *Hub) broadcastToRoom(out party.Outbound) {
	data, err := json.Marshal(models.Message{Type: out.Type, Data: out.Payload})
	if err != nil {
		metrics.RecordWSDropped(DropEncode)
		logging.Error().Err(err).Str("message_type", out.Type).Msg("failed to encode broadcast")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	clients := sortedClients(h.rooms[out.PartyID])
	var toRemove []*Client
	for _, c := range clients {
		if out.To != "" && c.participantID != out.To {
			continue
		}
		select {
		case c.send <- data:
		default:
			toRemove = append(toRemove, c)
		}
	}

	for _, c := range toRemove {
		metrics.RecordWSDropped(DropSlowClient)
		logging.Warn().
			Str("party_id", c.partyID).
			Str("participant_id", c.participantID).
			Msg("disconnecting slow websocket client")
		h.removeLocked(c)
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		for _, c := range sortedClients(h.rooms[id]) {
			h.removeLocked(c)
		}
	}
}

func sortedClients(room map[*Client]bool) []*Client {
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})
	return clients
}

// ClientCount returns the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, room := range h.rooms {
		n += len(room)
	}
	return n
}

// RoomSize returns the number of clients connected to one party.
func (h *Hub) RoomSize(partyID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[partyID])
}
