// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/partysync/internal/auth"
	"github.com/tomtom215/partysync/internal/middleware"
)

// Router assembles the HTTP surface.
type Router struct {
	handler       *Handler
	auth          *auth.Middleware
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a router. A nil auth middleware leaves operator routes open.
func NewRouter(handler *Handler, authMW *auth.Middleware, chiMW *ChiMiddleware) *Router {
	if authMW == nil {
		authMW = auth.NewMiddleware(nil)
	}
	if chiMW == nil {
		chiMW = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, auth: authMW, chiMiddleware: chiMW}
}

// Setup configures every route.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())
	r.Use(middleware.PrometheusMetrics)
	r.Use(middleware.AccessLog)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitHealth))
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1/parties", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())

		r.Get("/", router.handler.ListParties)

		r.Route("/{partyID}", func(r chi.Router) {
			r.Get("/", router.handler.GetParty)
			r.Get("/ws", router.handler.WebSocket)
			r.Post("/join", router.handler.Join)
			r.Post("/leave", router.handler.Leave)
			r.Post("/heartbeat", router.handler.Heartbeat)
			r.Post("/control", router.handler.Control)

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitCustom(RateLimitOperator))
				r.Use(router.auth.RequireRole(auth.RoleOperator))
				r.Post("/force-sync", router.handler.ForceSync)
				r.Post("/participants/{participantID}/reconnect", router.handler.Reconnect)
			})

			r.Group(func(r chi.Router) {
				r.Use(router.chiMiddleware.RateLimitCustom(RateLimitOperator))
				r.Use(router.auth.RequireRole(auth.RoleAdmin))
				r.Post("/transfer-host", router.handler.TransferHost)
			})
		})
	})

	r.Route("/api/v1/audit", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitCustom(RateLimitOperator))
		r.Use(router.auth.RequireRole(auth.RoleAdmin))
		r.Get("/", router.handler.ListAuditEvents)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
