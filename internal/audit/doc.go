// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package audit records operator actions against watch parties.

Force-sync, participant reconnects and host overrides are queued by the API
handlers through Logger.Record and written by Logger.Serve, which runs in the
data layer of the supervisor tree. Events are stored in the BadgerDB snapshot
store (with a TTL) when persistence is enabled, otherwise in a bounded
MemoryStore.

	auditLog := audit.NewLogger(db, 1000)
	tree.AddDataService(auditLog)
	auditLog.Record(ctx, audit.EventTypeForceSync, "ops", "operator", "movie-night", "", ip, err)

Admins read the trail with GET /api/v1/audit.
*/
package audit
