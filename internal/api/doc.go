// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package api provides the HTTP surface of the reconciliation engine: a chi
router with REST endpoints for participants and operators, the websocket
upgrade, health probes and the Prometheus scrape endpoint.

Routes (all under /api/v1):

	GET  /health/live                                     liveness
	GET  /health/ready                                    readiness (store, event bus)
	GET  /parties                                         list live parties
	GET  /parties/{partyID}                               party state and roster
	GET  /parties/{partyID}/ws?participant={id}           websocket
	POST /parties/{partyID}/join                          {participantId, role}
	POST /parties/{partyID}/leave                         {participantId}
	POST /parties/{partyID}/heartbeat                     heartbeat report
	POST /parties/{partyID}/control                       control event
	POST /parties/{partyID}/force-sync                    operator
	POST /parties/{partyID}/participants/{id}/reconnect   operator
	POST /parties/{partyID}/transfer-host                 admin override
	GET  /audit?party=&type=&since=&limit=                admin, operator action trail

Outside /api/v1, GET /metrics serves Prometheus collectors.

Every response uses the models.APIResponse envelope. Control rejections
answer 409 with code CONTROL_REJECTED and the reason in error.details;
unknown parties answer 404 with SESSION_NOT_FOUND; a saturated session
queue answers 503 with QUEUE_FULL.

Middleware stack, outermost first: request id, real IP, panic recovery,
CORS (go-chi/cors), Prometheus metrics, access log, then per-group rate
limits (go-chi/httprate) and operator token checks (internal/auth).
*/
package api
