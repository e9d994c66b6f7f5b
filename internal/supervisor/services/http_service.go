// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer matches the lifecycle methods of *http.Server.
type HTTPServer interface {
	Shutdowner
	ListenAndServe() error
}

// HTTPServerService runs an HTTP server under suture and drains it through
// the embedded ShutdownService when the tree stops.
//
//	server := &http.Server{Addr: ":8090", Handler: router.Setup()}
//	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
type HTTPServerService struct {
	*ShutdownService
	server HTTPServer
}

// NewHTTPServerService wraps server. A non-positive timeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	return &HTTPServerService{
		ShutdownService: NewShutdownService("http-server", server, shutdownTimeout),
		server:          server,
	}
}

// Serve returns the listener's error, or ctx's error after a graceful
// shutdown. http.ErrServerClosed is not an error.
func (h *HTTPServerService) Serve(ctx context.Context) error {
	listenErr := make(chan error, 1)
	go func() {
		err := h.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		listenErr <- err
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if err := h.stop(); err != nil {
		return err
	}
	<-listenErr
	return ctx.Err()
}
