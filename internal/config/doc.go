// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package config provides centralized configuration management for partysync.

Configuration is layered with Koanf v2:

 1. Defaults from defaultConfig()
 2. An optional YAML file (CONFIG_PATH, ./config.yaml, /etc/partysync/config.yaml)
 3. Mapped environment variables

Unmapped environment variables are ignored.

# Example config.yaml

	server:
	  port: 8090
	sync:
	  tolerance: 2.0
	  out_of_sync_debounce: 2
	  buffer_lookahead: 1s
	  max_clock_skew: 5s
	session:
	  tick_interval: 1s
	  disconnect_timeout: 60s
	store:
	  path: /data/partysync
	nats:
	  enabled: true
	  embedded_server: true

# Environment Variables

	HTTP_PORT, HTTP_HOST, ENVIRONMENT
	SYNC_TOLERANCE, SYNC_OUT_OF_SYNC_DEBOUNCE, SYNC_BUFFER_LOOKAHEAD, SYNC_FORCE_SYNC_AFTER
	SYNC_MAX_CLOCK_SKEW, SYNC_RTT_WINDOW, SYNC_RTT_MIN_SAMPLES
	QUALITY_OFFLINE_AFTER, QUALITY_POOR_AFTER, QUALITY_POOR_RTT_MS, QUALITY_GOOD_RTT_MS
	SESSION_TICK_INTERVAL, SESSION_CHECKPOINT_INTERVAL, SESSION_QUEUE_SIZE
	SESSION_DISCONNECT_TIMEOUT, SESSION_REMOVAL_GRACE
	STORE_ENABLED, STORE_PATH, STORE_IN_MEMORY
	NATS_ENABLED, NATS_URL, NATS_EMBEDDED, NATS_INBOUND_SUBJECT, NATS_SUBJECT_PREFIX
	OPERATOR_SECRET, CORS_ORIGINS, RATE_LIMIT_REQUESTS, RATE_LIMIT_WINDOW
	WS_MESSAGES_PER_SECOND, WS_BURST, WS_PING_INTERVAL
	LOG_LEVEL, LOG_FORMAT, LOG_CALLER

# Validation

Validate runs go-playground/validator struct tags and then cross-field checks,
for example that quality.poor_after is below quality.offline_after and that a
production deployment carries an operator secret.

Config.PartyConfig and Config.LoopConfig convert the engine sections to the
types consumed by package party.
*/
package config
