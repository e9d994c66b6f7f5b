// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package metrics provides Prometheus metrics collection and export for observability.

All collectors are registered with the default registry through promauto and are
exposed at /metrics in Prometheus text format:

	curl http://localhost:8080/metrics

# Available Metrics

Session engine:
  - partysync_sessions_active: live party sessions (gauge)
  - partysync_participants: participants across all sessions (gauge)
  - partysync_heartbeats_total: processed heartbeats (counter)
    Labels: result (applied, replay, malformed, unknown)
  - partysync_control_events_total: control outcomes (counter)
    Labels: action, result (accepted, not_host, stale, no_host, invalid)
  - partysync_drift_seconds: absolute drift per applied heartbeat (histogram)
  - partysync_sync_transitions_total: sync status changes (counter)
    Labels: from, to
  - partysync_force_sync_recommended_total: recommendations emitted (counter)
  - partysync_host_handoffs_total: host changes (counter)
    Labels: kind (transfer, handoff, no_host, restored)
  - partysync_invariant_violations_total: healed violations (counter)
    Labels: kind
  - partysync_tick_duration_seconds: per-session tick cost (histogram)
  - partysync_queue_rejections_total: events refused by a full queue (counter)
  - partysync_snapshot_writes_total: checkpoint writes (counter)
    Labels: result

HTTP and WebSocket:
  - api_requests_total, api_request_duration_seconds, api_active_requests
  - websocket_connections, websocket_messages_sent_total,
    websocket_messages_received_total, websocket_messages_dropped_total

Event bus:
  - nats_messages_published_total, nats_messages_consumed_total,
    nats_publish_errors_total, circuit_breaker_state

Audit:
  - partysync_audit_events_dropped_total

# Usage

Record helpers wrap the collectors so callers never deal with label ordering:

	start := time.Now()
	// ... handle request ...
	metrics.RecordAPIRequest("POST", "/api/v1/parties/{partyID}/control", "200", time.Since(start))

	metrics.RecordControlEvent("seek", "accepted")

# Thread Safety

All functions are safe for concurrent use; Prometheus collectors are internally synchronized.
*/
package metrics
