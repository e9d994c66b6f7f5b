// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/models"
)

type contextKey string

// ClaimsContextKey holds the verified *Claims of an operator request.
const ClaimsContextKey contextKey = "claims"

// Middleware guards operator routes.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware creates the middleware. A nil manager means no operator
// secret is configured and every request is treated as an admin.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Enabled reports whether operator routes require a token.
func (m *Middleware) Enabled() bool {
	return m.tokens != nil
}

// RequireRole rejects requests without a valid bearer token granting role.
func (m *Middleware) RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.tokens == nil {
				ctx := context.WithValue(r.Context(), ClaimsContextKey, &Claims{Role: RoleAdmin})
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Bearer token required")
				return
			}
			claims, err := m.tokens.Verify(token)
			if err != nil {
				logging.Warn().Err(err).Str("path", r.URL.Path).Msg("operator token rejected")
				writeError(w, http.StatusUnauthorized, models.ErrCodeUnauthorized, "Invalid token")
				return
			}
			if !claims.Role.Satisfies(role) {
				writeError(w, http.StatusForbidden, models.ErrCodeForbidden, "Insufficient privileges")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by RequireRole.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsContextKey).(*Claims)
	return claims, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now().UTC()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}
