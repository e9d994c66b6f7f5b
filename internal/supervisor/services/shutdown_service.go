// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package services

import (
	"context"
	"fmt"
	"time"
)

// Shutdowner is a component that starts on construction and only needs an
// orderly stop, such as the embedded NATS server or the event publisher.
type Shutdowner interface {
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function to Shutdowner.
type ShutdownFunc func(ctx context.Context) error

func (f ShutdownFunc) Shutdown(ctx context.Context) error { return f(ctx) }

// CloserFunc adapts a Close() error method to Shutdowner.
func CloserFunc(closeFn func() error) ShutdownFunc {
	return func(context.Context) error { return closeFn() }
}

// ShutdownService keeps a running component attached to the supervisor tree
// and shuts it down when the tree stops. It never restarts the component:
// a supervisor restart only waits on the already-running instance again.
type ShutdownService struct {
	target          Shutdowner
	shutdownTimeout time.Duration
	name            string
}

// NewShutdownService wraps target. A non-positive timeout means 10s.
func NewShutdownService(name string, target Shutdowner, shutdownTimeout time.Duration) *ShutdownService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &ShutdownService{
		target:          target,
		shutdownTimeout: shutdownTimeout,
		name:            name,
	}
}

// Serve implements suture.Service.
func (s *ShutdownService) Serve(ctx context.Context) error {
	<-ctx.Done()
	if err := s.stop(); err != nil {
		return err
	}
	return ctx.Err()
}

// stop runs Shutdown on a fresh context, since the tree's is already done.
func (s *ShutdownService) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.target.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", s.name, err)
	}
	return nil
}

// String implements fmt.Stringer for suture logs.
func (s *ShutdownService) String() string {
	return s.name
}
