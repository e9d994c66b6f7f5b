// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
)

// Broadcaster delivers controller output to the transport boundary.
// Implementations must not block the caller for long.
type Broadcaster interface {
	Broadcast(out Outbound)
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(out Outbound)

func (f BroadcasterFunc) Broadcast(out Outbound) { f(out) }

// Fanout delivers each message to every wrapped broadcaster in order.
type Fanout []Broadcaster

func (f Fanout) Broadcast(out Outbound) {
	for _, b := range f {
		if b != nil {
			b.Broadcast(out)
		}
	}
}

// SnapshotStore persists session checkpoints.
type SnapshotStore interface {
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, partyID string) error
	LoadAll(ctx context.Context) ([]*Snapshot, error)
}

// Kind identifies a queued request.
type Kind int

const (
	KindHeartbeat Kind = iota + 1
	KindControl
	KindJoin
	KindLeave
	KindForceSync
	KindReconnect
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindControl:
		return "control"
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindForceSync:
		return "force_sync"
	case KindReconnect:
		return "reconnect"
	case KindSnapshot:
		return "snapshot"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Request is one serialized unit of work for a session.
type Request struct {
	Kind          Kind
	ParticipantID string
	Role          Role
	Report        *HeartbeatReport
	Event         *ControlEvent
}

// Result is delivered exactly once on the channel returned by Submit.
type Result struct {
	Participant Participant
	Snapshot    *Snapshot
	Err         error
}

// LoopConfig controls a session loop's scheduling.
type LoopConfig struct {
	TickInterval       time.Duration
	CheckpointInterval time.Duration
	QueueSize          int
	// Now overrides the wall clock, mainly for tests.
	Now func() time.Time
}

// DefaultLoopConfig ticks every second and checkpoints every ten.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		TickInterval:       time.Second,
		CheckpointInterval: 10 * time.Second,
		QueueSize:          256,
	}
}

type envelope struct {
	req   Request
	reply chan Result
}

// Loop is the single goroutine that owns a Controller. Transports submit
// requests from any goroutine; the loop applies them one at a time together
// with periodic ticks. It implements suture.Service and stops for good once
// the last participant is gone.
type Loop struct {
	ctrl   *Controller
	cfg    LoopConfig
	out    Broadcaster
	store  SnapshotStore
	inbox  chan envelope
	onExit func(*Loop)
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	version    uint64
	checkpoint uint64
}

// NewLoop wraps ctrl. out and store may be nil.
func NewLoop(ctrl *Controller, cfg LoopConfig, out Broadcaster, store SnapshotStore) *Loop {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultLoopConfig().QueueSize
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultLoopConfig().TickInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loop{
		ctrl:    ctrl,
		cfg:     cfg,
		out:     out,
		store:   store,
		inbox:   make(chan envelope, cfg.QueueSize),
		logger:  logging.WithComponent("party-loop").With().Str("party_id", ctrl.PartyID()).Logger(),
		done:    make(chan struct{}),
		version: 1,
	}
}

// PartyID returns the id of the owned session.
func (l *Loop) PartyID() string {
	return l.ctrl.PartyID()
}

// String implements fmt.Stringer for suture logs.
func (l *Loop) String() string {
	return "party:" + l.ctrl.PartyID()
}

// Done is closed when the loop stops accepting requests.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Submit queues req without blocking and returns a future for its result.
func (l *Loop) Submit(req Request) (<-chan Result, error) {
	reply := make(chan Result, 1)

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrSessionClosed
	}
	select {
	case l.inbox <- envelope{req: req, reply: reply}:
		return reply, nil
	default:
		metrics.RecordQueueRejection()
		return nil, ErrQueueFull
	}
}

// Do submits req and waits for its result or ctx.
func (l *Loop) Do(ctx context.Context, req Request) Result {
	reply, err := l.Submit(req)
	if err != nil {
		return Result{Err: err}
	}
	select {
	case res := <-reply:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Serve runs the loop until ctx ends or the session empties.
func (l *Loop) Serve(ctx context.Context) error {
	if l.isClosed() {
		return suture.ErrDoNotRestart
	}

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	var checkpoints <-chan time.Time
	if l.store != nil && l.cfg.CheckpointInterval > 0 {
		ct := time.NewTicker(l.cfg.CheckpointInterval)
		defer ct.Stop()
		checkpoints = ct.C
	}

	l.logger.Debug().Msg("session loop started")
	for {
		select {
		case <-ctx.Done():
			l.saveCheckpoint(context.Background())
			l.shutdown()
			return ctx.Err()

		case env := <-l.inbox:
			env.reply <- l.apply(env.req)
			l.flush()
			if l.ctrl.Len() == 0 {
				l.end()
				return suture.ErrDoNotRestart
			}

		case <-ticker.C:
			if _, changed := l.ctrl.Tick(l.cfg.Now()); changed {
				l.version++
			}
			l.flush()
			if l.ctrl.Len() == 0 {
				l.end()
				return suture.ErrDoNotRestart
			}

		case <-checkpoints:
			l.saveCheckpoint(ctx)
		}
	}
}

func (l *Loop) apply(req Request) Result {
	now := l.cfg.Now()
	var res Result
	switch req.Kind {
	case KindHeartbeat:
		res.Participant, res.Err = l.ctrl.OnHeartbeat(req.Report, now)
	case KindControl:
		res.Err = l.ctrl.OnControlEvent(req.Event, now)
	case KindJoin:
		res.Participant, res.Err = l.ctrl.OnJoin(req.ParticipantID, req.Role, now)
	case KindLeave:
		res.Err = l.ctrl.OnLeave(req.ParticipantID, now)
	case KindForceSync:
		l.ctrl.ForceSync(now)
	case KindReconnect:
		res.Participant, res.Err = l.ctrl.Reconnect(req.ParticipantID, now)
	case KindSnapshot:
		res.Snapshot = l.ctrl.Snapshot(now)
		return res
	default:
		res.Err = fmt.Errorf("unsupported request kind %s", req.Kind)
		return res
	}
	l.version++
	return res
}

func (l *Loop) flush() {
	msgs := l.ctrl.Drain()
	if l.out == nil {
		return
	}
	for _, m := range msgs {
		l.out.Broadcast(m)
	}
}

func (l *Loop) saveCheckpoint(ctx context.Context) {
	if l.store == nil || l.version == l.checkpoint || l.ctrl.Len() == 0 {
		return
	}
	saveCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := l.store.Save(saveCtx, l.ctrl.Snapshot(l.cfg.Now()))
	metrics.RecordSnapshotWrite(err)
	if err != nil {
		l.logger.Warn().Err(err).Msg("checkpoint failed")
		return
	}
	l.checkpoint = l.version
}

// end is called when the last participant is gone.
func (l *Loop) end() {
	l.shutdown()
	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Delete(ctx, l.PartyID()); err != nil {
			l.logger.Warn().Err(err).Msg("failed to delete snapshot of ended session")
		}
	}
	l.logger.Info().Msg("session ended")
	if l.onExit != nil {
		l.onExit(l)
	}
}

// shutdown stops intake and fails anything still queued.
func (l *Loop) shutdown() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.done)
	l.mu.Unlock()

	for {
		select {
		case env := <-l.inbox:
			env.reply <- Result{Err: ErrSessionClosed}
		default:
			return
		}
	}
}

func (l *Loop) isClosed() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.closed
}

// IsClosed reports whether err means the loop is gone and a new one may be created.
func IsClosed(err error) bool {
	return errors.Is(err, ErrSessionClosed)
}
