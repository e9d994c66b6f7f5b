// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package eventbus connects the reconciliation engine to NATS.

Two directions are supported, both over core NATS through Watermill:

  - Publisher implements party.Broadcaster. Every engine message is
    published to <prefix>.<partyID>.<type> with party_id, type and to
    (for directed messages) carried as NATS headers.
  - Subscriber consumes envelopes from a single inbound subject and
    routes them through the same ingress.Dispatcher the WebSocket gateway
    uses. Messages are always acked; invalid input is logged and dropped.

Publishing is protected by a gobreaker circuit breaker whose state is
exported as a Prometheus gauge. An EmbeddedServer is provided for
single-node deployments that do not run a separate NATS cluster.

Example:

	srv, _ := eventbus.NewEmbeddedServer(eventbus.ServerConfig{Port: -1})
	pub, _ := eventbus.NewPublisher(eventbus.PublisherConfig{
		URL:           srv.ClientURL(),
		SubjectPrefix: "partysync.party",
	}, logging.NewWatermillAdapter())
	arena := party.NewArena(cfg, loopCfg, sup, pub, store)
*/
package eventbus
