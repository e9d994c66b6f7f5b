// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package main is the entry point for the partysync server.

Partysync keeps the players in a watch party on the same position. The host
issues play, pause, seek and skip commands; every participant reports its
local position and buffer state through heartbeats; the server estimates each
participant's drift, classifies sync status and connection quality, and
broadcasts the authoritative playback target.

# Application Architecture

The server runs under a Suture v4 supervisor tree:

	Root ("partysync")
	├── data-layer
	│   ├── snapshot store GC (BadgerDB, optional)
	│   └── audit logger
	├── messaging-layer
	│   ├── WebSocket hub
	│   ├── embedded NATS server (optional)
	│   ├── NATS publisher (optional)
	│   └── NATS inbound subscriber (optional)
	├── sessions
	│   └── one loop per live party
	└── api-layer
	    └── HTTP server

Start-up order:

 1. Configuration: Koanf v2 defaults, optional config.yaml, environment
 2. Logging: zerolog, with slog and Watermill bridges
 3. Snapshot store: BadgerDB, followed by session rehydration
 4. Event bus: embedded NATS server, Watermill publisher and subscriber
 5. Engine: session arena broadcasting to the hub and the publisher
 6. HTTP: chi router with REST, WebSocket, health and /metrics routes

# Configuration

Common environment variables:

	HTTP_HOST, HTTP_PORT          listener (default 0.0.0.0:8090)
	SYNC_TOLERANCE                drift tolerance in seconds (default 2)
	STORE_ENABLED, STORE_PATH     snapshot persistence
	AUDIT_ENABLED, AUDIT_RETENTION operator audit trail
	NATS_ENABLED, NATS_URL        event bus
	OPERATOR_SECRET               HS256 key for operator tokens
	CORS_ORIGINS                  allowed browser origins
	LOG_LEVEL, LOG_FORMAT         zerolog settings

Production (ENVIRONMENT=production) refuses to start without OPERATOR_SECRET
or with a wildcard CORS origin.

# Signal Handling

SIGINT and SIGTERM cancel the root context. The HTTP server drains, party
loops write a final checkpoint, NATS connections close and the snapshot store
is closed last.

# Example Usage

	export STORE_PATH=/var/lib/partysync
	export OPERATOR_SECRET=$(openssl rand -base64 48)
	./partysync
*/
package main
