// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

/*
Package middleware provides chi-compatible HTTP middleware shared by every
route of the API.

  - RequestID: honors or generates X-Request-ID and seeds the logging
    context with request and correlation ids.
  - PrometheusMetrics: request counter, latency histogram and in-flight
    gauge, labeled by route pattern.
  - AccessLog: one structured zerolog line per request.

The response wrapper forwards Hijack so websocket upgrades pass through
the stack unchanged.

Typical stack:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog)
*/
package middleware
