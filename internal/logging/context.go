// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	requestIDKey     contextKey = "request_id"
	partyIDKey       contextKey = "party_id"
)

// GenerateCorrelationID returns a short id suitable for log correlation.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// GenerateRequestID returns a full UUID.
func GenerateRequestID() string {
	return uuid.New().String()
}

func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithPartyID tags ctx with the party a request is addressed to.
func ContextWithPartyID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, partyIDKey, id)
}

func PartyIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(partyIDKey).(string)
	return id
}

// Ctx returns the global logger enriched with any ids carried by ctx.
//
//	logging.Ctx(ctx).Info().Msg("control accepted")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := With()
	if id := CorrelationIDFromContext(ctx); id != "" {
		lc = lc.Str("correlation_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		lc = lc.Str("request_id", id)
	}
	if id := PartyIDFromContext(ctx); id != "" {
		lc = lc.Str("party_id", id)
	}
	l := lc.Logger()
	return &l
}
