// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package supervisor builds the suture v4 process tree for partysync.

Layers:

  - data-layer: snapshot store value-log GC
  - messaging-layer: WebSocket hub, embedded NATS server, publisher, subscriber
  - sessions: one party loop per live watch party, spawned by the arena
  - api-layer: HTTP server

A party loop returns suture.ErrDoNotRestart when its last participant leaves,
so the sessions supervisor drops it instead of restarting it. Any other loop
failure is restarted with the tree's backoff policy.

Supervisor events are logged through sutureslog using the slog bridge from
the logging package:

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	arena := party.NewArena(cfg, loopCfg, tree.Sessions(), fanout, store)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
