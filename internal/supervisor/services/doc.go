// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package services adapts components with non-suture lifecycles to suture.Service.

  - HTTPServerService: runs *http.Server and shuts it down gracefully on cancel
  - ShutdownService: holds an already-running component (embedded NATS server,
    event publisher) and shuts it down when the tree stops

Components that already implement Serve(ctx) error, such as the WebSocket hub,
the snapshot store GC loop and the NATS subscriber, are added to the tree
directly.

Example:

	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	tree.AddMessagingService(services.NewShutdownService("nats-publisher",
		services.CloserFunc(publisher.Close), 5*time.Second))
*/
package services
