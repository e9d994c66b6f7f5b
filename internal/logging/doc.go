// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

// Package logging provides the process-wide zerolog logger.
//
// Every package logs through the global logger, either directly
// (logging.Info().Msg(...)) or through a component child logger
// (logging.WithComponent("party")). Request handlers use Ctx, which adds the
// request, correlation and party ids stored in the context.
//
// Two adapters let third-party libraries share the same sink:
//   - SlogHandler for libraries that take a *slog.Logger (sutureslog)
//   - WatermillAdapter for the watermill publisher and subscriber
//
// # Configuration
//
//	logging.Init(logging.Config{Level: "debug", Format: "console"})
//
// Environment variables (mapped by internal/config):
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include file:line (default: false)
//
// Always finish an event with Msg or Send; an unfinished event is never written.
package logging
