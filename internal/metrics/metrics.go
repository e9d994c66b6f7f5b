// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Session engine (heartbeats, control, drift, invariants)
// - API endpoint latency and throughput
// - WebSocket gateway
// - Event bus and snapshot store

var (
	// Session Engine Metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partysync_sessions_active",
			Help: "Current number of live party sessions",
		},
	)

	ParticipantsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "partysync_participants",
			Help: "Current number of participants across all sessions",
		},
	)

	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_heartbeats_total",
			Help: "Total number of heartbeats processed",
		},
		[]string{"result"}, // "applied", "replay", "malformed", "unknown"
	)

	ControlEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_control_events_total",
			Help: "Total number of control events by action and outcome",
		},
		[]string{"action", "result"}, // result: "accepted" or a rejection reason
	)

	DriftSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partysync_drift_seconds",
			Help:    "Absolute estimated drift from the party target position",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 30, 60},
		},
	)

	SyncTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_sync_transitions_total",
			Help: "Total number of participant sync status transitions",
		},
		[]string{"from", "to"},
	)

	ForceSyncRecommendations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partysync_force_sync_recommended_total",
			Help: "Total number of force-sync recommendations emitted",
		},
	)

	HostHandoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_host_handoffs_total",
			Help: "Total number of host changes",
		},
		[]string{"kind"}, // "transfer", "handoff", "no_host", "restored"
	)

	InvariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_invariant_violations_total",
			Help: "Total number of session invariant violations detected and healed",
		},
		[]string{"kind"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "partysync_tick_duration_seconds",
			Help:    "Time spent processing one session tick",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		},
	)

	QueueRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partysync_queue_rejections_total",
			Help: "Total number of events rejected because a session queue was full",
		},
	)

	// Snapshot Store Metrics
	SnapshotWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partysync_snapshot_writes_total",
			Help: "Total number of snapshot checkpoint writes",
		},
		[]string{"result"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSMessagesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
	)

	WSMessagesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped",
		},
		[]string{"reason"}, // "slow_client", "rate_limited"
	)

	WSRoundTrip = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_round_trip_seconds",
			Help:    "Ping to pong round trip measured by the WebSocket gateway",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	// Event Bus Metrics
	NATSMessagesPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_published_total",
			Help: "Total number of messages published to NATS",
		},
	)

	NATSMessagesConsumed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_messages_consumed_total",
			Help: "Total number of inbound messages consumed from NATS",
		},
	)

	NATSPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nats_publish_errors_total",
			Help: "Total number of failed NATS publishes",
		},
	)

	// Audit Metrics
	AuditEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "partysync_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the buffer was full",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordHeartbeat counts a processed heartbeat.
func RecordHeartbeat(result string) {
	HeartbeatsTotal.WithLabelValues(result).Inc()
}

// RecordControlEvent counts a control event outcome.
func RecordControlEvent(action, result string) {
	ControlEventsTotal.WithLabelValues(action, result).Inc()
}

// ObserveDrift records an absolute drift sample.
func ObserveDrift(drift float64) {
	if drift < 0 {
		drift = -drift
	}
	DriftSeconds.Observe(drift)
}

// RecordSyncTransition counts a participant sync status change.
func RecordSyncTransition(from, to string) {
	if from == to {
		return
	}
	SyncTransitions.WithLabelValues(from, to).Inc()
}

func RecordForceSyncRecommended() {
	ForceSyncRecommendations.Inc()
}

func RecordHostChange(kind string) {
	HostHandoffs.WithLabelValues(kind).Inc()
}

// RecordInvariantViolation counts a healed invariant violation.
func RecordInvariantViolation(kind string) {
	InvariantViolations.WithLabelValues(kind).Inc()
}

func RecordTick(duration time.Duration) {
	TickDuration.Observe(duration.Seconds())
}

func RecordQueueRejection() {
	QueueRejections.Inc()
}

// RecordSnapshotWrite counts a checkpoint write.
func RecordSnapshotWrite(err error) {
	if err != nil {
		SnapshotWrites.WithLabelValues("error").Inc()
		return
	}
	SnapshotWrites.WithLabelValues("success").Inc()
}

// SessionOpened and SessionClosed track live sessions.
func SessionOpened() {
	SessionsActive.Inc()
}

func SessionClosed() {
	SessionsActive.Dec()
}

// AddParticipants adjusts the participant gauge by delta.
func AddParticipants(delta int) {
	ParticipantsActive.Add(float64(delta))
}

// RecordAPIRequest records API request metrics
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements active request counter
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

func RecordWSDropped(reason string) {
	WSMessagesDropped.WithLabelValues(reason).Inc()
}

func RecordNATSPublish(err error) {
	if err != nil {
		NATSPublishErrors.Inc()
		return
	}
	NATSMessagesPublished.Inc()
}

func RecordNATSConsume() {
	NATSMessagesConsumed.Inc()
}

func RecordAuditDropped() {
	AuditEventsDropped.Inc()
}

// SetCircuitBreakerState records a breaker state (0=closed, 1=half-open, 2=open).
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
