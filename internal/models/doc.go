// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package models defines the wire contracts shared by every transport.

Inbound messages (heartbeat, control, join, leave) arrive over WebSocket, REST or
NATS with identical JSON shapes. Outbound messages (sync_status, playback_update,
force_sync_recommended, control_rejected) are produced by the reconciliation
engine and fanned out by the transports. All timestamps are RFC 3339 / ISO 8601.

Message Envelope:

	{"type": "heartbeat", "data": {...}}

Inbound Types:

  - heartbeat: HeartbeatMessage
  - control: ControlMessage
  - join / leave: MembershipMessage

Outbound Types:

  - sync_status: SyncStatus (coalesced, at most once per tick)
  - playback_update: PlaybackUpdate (immediately on accepted control)
  - force_sync_recommended: ForceSyncRecommended
  - control_rejected: ControlRejected (issuer only)

The package has no dependencies beyond the JSON codec so that transports and the
engine can share it without import cycles.
*/
package models
