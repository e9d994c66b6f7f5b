// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/partysync/internal/api"
	"github.com/tomtom215/partysync/internal/audit"
	"github.com/tomtom215/partysync/internal/auth"
	"github.com/tomtom215/partysync/internal/config"
	"github.com/tomtom215/partysync/internal/eventbus"
	"github.com/tomtom215/partysync/internal/ingress"
	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/party"
	"github.com/tomtom215/partysync/internal/store"
	"github.com/tomtom215/partysync/internal/supervisor"
	"github.com/tomtom215/partysync/internal/supervisor/services"
	ws "github.com/tomtom215/partysync/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})
	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("environment", cfg.Server.Environment).
		Bool("store_enabled", cfg.Store.Enabled).
		Bool("nats_enabled", cfg.NATS.Enabled).
		Msg("Starting partysync")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("partysync exited with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	var checks []api.HealthCheck

	// Snapshot store. Closed after the tree stops so final checkpoints land.
	var snapshots party.SnapshotStore
	var auditStore audit.Store
	if cfg.Store.Enabled {
		db, err := store.Open(store.Config{
			Path:           cfg.Store.Path,
			InMemory:       cfg.Store.InMemory,
			GCInterval:     cfg.Store.GCInterval,
			AuditRetention: cfg.Audit.Retention,
		})
		if err != nil {
			return fmt.Errorf("open snapshot store: %w", err)
		}
		defer func() {
			if err := db.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing snapshot store")
			}
		}()
		snapshots = db
		auditStore = db
		tree.AddDataService(db)
		checks = append(checks, api.HealthCheck{Name: "store", Check: db.Ping})
		logging.Info().Str("path", cfg.Store.Path).Bool("in_memory", cfg.Store.InMemory).Msg("Snapshot store opened")
	}

	var auditLog *audit.Logger
	if cfg.Audit.Enabled {
		if auditStore == nil {
			auditStore = audit.NewMemoryStore(cfg.Audit.MemoryLimit)
		}
		auditLog = audit.NewLogger(auditStore, cfg.Audit.BufferSize)
		tree.AddDataService(auditLog)
	}

	hub := ws.NewHub()
	tree.AddMessagingService(hub)
	fanout := party.Fanout{hub}

	// The arena is created before the subscriber because the dispatcher needs it,
	// and after the publisher because the arena broadcasts through it.
	var publisher *eventbus.Publisher
	natsURL := cfg.NATS.URL
	if cfg.NATS.Enabled {
		if cfg.NATS.EmbeddedServer {
			srv, err := startEmbeddedNATS(cfg.NATS)
			if err != nil {
				return err
			}
			tree.AddMessagingService(services.NewShutdownService("nats-server", srv, cfg.Server.ShutdownTimeout))
			natsURL = srv.ClientURL()
		}

		publisher, err = eventbus.NewPublisher(eventbus.PublisherConfig{
			URL:           natsURL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			CircuitBreaker: eventbus.CircuitBreakerConfig{
				Name:             "nats-publisher",
				MaxRequests:      cfg.NATS.CircuitBreaker.MaxRequests,
				Interval:         cfg.NATS.CircuitBreaker.Interval,
				Timeout:          cfg.NATS.CircuitBreaker.Timeout,
				FailureThreshold: cfg.NATS.CircuitBreaker.FailureThreshold,
			},
		}, logging.NewWatermillAdapter())
		if err != nil {
			return fmt.Errorf("create nats publisher: %w", err)
		}
		tree.AddMessagingService(services.NewShutdownService("nats-publisher",
			services.CloserFunc(publisher.Close), cfg.Server.ShutdownTimeout))
		fanout = append(fanout, publisher)
		checks = append(checks, api.HealthCheck{Name: "nats_publisher", Check: breakerCheck(publisher)})
	}

	arena := party.NewArena(cfg.PartyConfig(), cfg.LoopConfig(), tree.Sessions(), fanout, snapshots)
	restored, err := arena.Rehydrate(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("Failed to rehydrate sessions, starting empty")
	} else if restored > 0 {
		logging.Info().Int("sessions", restored).Msg("Sessions restored from snapshots")
	}

	dispatcher := ingress.NewDispatcher(arena)

	if cfg.NATS.Enabled {
		sub, err := eventbus.NewSubscriber(eventbus.SubscriberConfig{
			URL:          natsURL,
			Subject:      cfg.NATS.InboundSubject,
			QueueGroup:   cfg.NATS.QueueGroup,
			CloseTimeout: cfg.Server.ShutdownTimeout,
		}, dispatcher, logging.NewWatermillAdapter())
		if err != nil {
			return fmt.Errorf("create nats subscriber: %w", err)
		}
		tree.AddMessagingService(sub)
		tree.AddMessagingService(services.NewShutdownService("nats-subscriber",
			services.CloserFunc(sub.Close), cfg.Server.ShutdownTimeout))
	}

	var tokens *auth.TokenManager
	if cfg.Security.OperatorSecret != "" {
		tokens, err = auth.NewTokenManager(cfg.Security.OperatorSecret, cfg.Security.TokenIssuer, time.Hour)
		if err != nil {
			return fmt.Errorf("create token manager: %w", err)
		}
	} else {
		logging.Warn().Msg("OPERATOR_SECRET not set, operator endpoints are unauthenticated")
	}

	handler := api.NewHandler(api.HandlerOptions{
		Engine:      arena,
		Hub:         hub,
		Dispatcher:  dispatcher,
		Config:      cfg,
		Checks:      checks,
		Audit:       auditLog,
		BaseContext: ctx,
	})
	chiCfg := api.DefaultChiMiddlewareConfig()
	chiCfg.CORSAllowedOrigins = cfg.Security.CORSOrigins
	chiCfg.RateLimitRequests = cfg.Security.RateLimitReqs
	chiCfg.RateLimitWindow = cfg.Security.RateLimitWindow
	chiCfg.RateLimitDisabled = cfg.Security.RateLimitDisabled
	router := api.NewRouter(handler, auth.NewMiddleware(tokens), api.NewChiMiddleware(chiCfg))

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("supervisor tree: %w", err)
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	if unstopped, _ := tree.UnstoppedServiceReport(); len(unstopped) > 0 {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
		}
	}
	return runErr
}

// startEmbeddedNATS starts an in-process server on the host and port of the
// configured URL.
func startEmbeddedNATS(cfg config.NATSConfig) (*eventbus.EmbeddedServer, error) {
	host, port := "127.0.0.1", 4222
	if u, err := url.Parse(cfg.URL); err == nil && u.Host != "" {
		if h := u.Hostname(); h != "" {
			host = h
		}
		if p, err := strconv.Atoi(u.Port()); err == nil {
			port = p
		}
	}
	srv, err := eventbus.NewEmbeddedServer(eventbus.ServerConfig{
		Host:     host,
		Port:     port,
		StoreDir: cfg.StoreDir,
	})
	if err != nil {
		return nil, fmt.Errorf("start embedded nats: %w", err)
	}
	logging.Info().Str("url", srv.ClientURL()).Msg("Embedded NATS server started")
	return srv, nil
}

// breakerCheck fails readiness while the publisher's circuit is open.
func breakerCheck(p *eventbus.Publisher) func(context.Context) error {
	return func(context.Context) error {
		if p.State() == gobreaker.StateOpen {
			return errors.New("nats publisher circuit open")
		}
		return nil
	}
}
