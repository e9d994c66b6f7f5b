// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

// Package ingress decodes inbound envelopes and applies them to the session
// arena. The WebSocket gateway pins a Source to each connection so that a
// client can only speak for itself; the NATS subscriber uses the zero Source.
package ingress
