// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package websocket is the real-time gateway between watch party participants
and the reconciliation engine.

Key Components:

  - Hub: keeps one room of clients per party and implements
    party.Broadcaster, so engine output (playback_update, sync_status,
    force_sync_recommended, control_rejected) reaches exactly the clients
    of the party it belongs to. Messages with a recipient are delivered
    only to that participant's connections.
  - Client: one connection pinned to a party and participant. Inbound
    frames are rate limited and routed through ingress.Dispatcher; replies
    (pong, error) go back to the same connection only.

Architecture:

	           party.Loop
	               │ Broadcast
	          ┌────┴─────┐
	          │   Hub    │
	          └────┬─────┘
	     ┌─────────┴─────────┐
	 room "movie-night"   room "anime-club"
	  │        │             │
	Client   Client        Client ──► ingress.Dispatcher ──► party.Arena

Each client has two goroutines:
  - readPump: decodes envelopes, applies the rate limit, dispatches
  - writePump: writes broadcasts, direct replies and keepalive pings

Each ping carries its send time. The pong handler turns it into a round trip,
and heartbeats that do not report roundTripMs are dispatched with it.

Closing a socket unregisters the client but never removes the participant
from the party. Participants that stop heartbeating age to reconnecting,
then disconnected, then are removed by the engine.

Delivery never blocks the session loop. When the hub's queue is full the
message is dropped, and a client whose buffer is full is disconnected.
Both cases are counted in websocket_messages_dropped_total.

Usage:

	hub := websocket.NewHub()
	supervisor.Add(hub)

	client := websocket.NewClient(hub, conn, dispatcher, websocket.ClientOptions{
		Source:            ingress.Source{PartyID: "movie-night", ParticipantID: "alice"},
		MessagesPerSecond: 20,
		Burst:             40,
	})
	hub.Register <- client
	client.Start(ctx)
*/
package websocket
