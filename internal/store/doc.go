// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

// Package store persists session snapshots in BadgerDB.
//
// Each live session loop checkpoints its snapshot periodically; at startup the
// arena rehydrates every stored snapshot so that a restart does not drop
// parties. Keys are "snapshot:<partyID>" and values are JSON records carrying
// a schema version.
package store
