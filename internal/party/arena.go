// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
)

// Spawner starts session loops. *suture.Supervisor satisfies it.
type Spawner interface {
	Add(service suture.Service) suture.ServiceToken
}

// Arena maps party ids to their session loops. Sessions are created by the
// first join, never implicitly by any other operation, and destroyed when
// their last participant leaves.
type Arena struct {
	cfg     Config
	loopCfg LoopConfig
	spawner Spawner
	out     Broadcaster
	store   SnapshotStore
	logger  zerolog.Logger

	mu    sync.RWMutex
	loops map[string]*Loop
}

// NewArena creates an empty arena. out and store may be nil.
func NewArena(cfg Config, loopCfg LoopConfig, spawner Spawner, out Broadcaster, store SnapshotStore) *Arena {
	return &Arena{
		cfg:     cfg,
		loopCfg: loopCfg,
		spawner: spawner,
		out:     out,
		store:   store,
		logger:  logging.WithComponent("arena"),
		loops:   make(map[string]*Loop),
	}
}

// Rehydrate restarts every session found in the snapshot store.
func (a *Arena) Rehydrate(ctx context.Context) (int, error) {
	if a.store == nil {
		return 0, nil
	}
	snaps, err := a.store.LoadAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("load snapshots: %w", err)
	}

	restored := 0
	for _, snap := range snaps {
		if len(snap.Participants) == 0 {
			if err := a.store.Delete(ctx, snap.Session.ID); err != nil {
				a.logger.Warn().Err(err).Str("party_id", snap.Session.ID).Msg("failed to drop empty snapshot")
			}
			continue
		}
		a.mu.Lock()
		if _, exists := a.loops[snap.Session.ID]; !exists {
			a.startLocked(RestoreController(snap, a.cfg))
			restored++
		}
		a.mu.Unlock()
	}
	a.logger.Info().Int("sessions", restored).Msg("sessions rehydrated")
	return restored, nil
}

// Join adds a participant, creating the session if it does not exist yet.
func (a *Arena) Join(ctx context.Context, partyID, participantID string, role Role) (Participant, error) {
	if partyID == "" {
		return Participant{}, fmt.Errorf("%w: empty party id", ErrSessionNotFound)
	}
	req := Request{Kind: KindJoin, ParticipantID: participantID, Role: role}

	// A loop can end between lookup and submit; retry once on a fresh session.
	for attempt := 0; attempt < 2; attempt++ {
		res := a.getOrCreate(partyID).Do(ctx, req)
		if !IsClosed(res.Err) {
			return res.Participant, res.Err
		}
		a.forget(partyID, nil)
	}
	return Participant{}, ErrSessionClosed
}

// Leave removes a participant.
func (a *Arena) Leave(ctx context.Context, partyID, participantID string) error {
	return a.do(ctx, partyID, Request{Kind: KindLeave, ParticipantID: participantID}).Err
}

// Heartbeat applies a participant report and waits for the outcome.
func (a *Arena) Heartbeat(ctx context.Context, report *HeartbeatReport) (Participant, error) {
	if report == nil {
		return Participant{}, fmt.Errorf("%w: empty report", ErrMalformedReport)
	}
	res := a.do(ctx, report.PartyID, Request{Kind: KindHeartbeat, Report: report})
	return res.Participant, res.Err
}

// SubmitHeartbeat queues a report and returns without waiting.
func (a *Arena) SubmitHeartbeat(report *HeartbeatReport) (<-chan Result, error) {
	if report == nil {
		return nil, fmt.Errorf("%w: empty report", ErrMalformedReport)
	}
	l, err := a.lookup(report.PartyID)
	if err != nil {
		return nil, err
	}
	return l.Submit(Request{Kind: KindHeartbeat, Report: report})
}

// Control submits a control event. Rejections come back as *RejectionError.
func (a *Arena) Control(ctx context.Context, ev *ControlEvent) error {
	if ev == nil {
		return reject(RejectInvalid, "", "empty event")
	}
	return a.do(ctx, ev.PartyID, Request{Kind: KindControl, Event: ev}).Err
}

// ForceSync re-broadcasts the party's current target position.
func (a *Arena) ForceSync(ctx context.Context, partyID string) error {
	return a.do(ctx, partyID, Request{Kind: KindForceSync}).Err
}

// Reconnect resets a participant's connection state.
func (a *Arena) Reconnect(ctx context.Context, partyID, participantID string) (Participant, error) {
	res := a.do(ctx, partyID, Request{Kind: KindReconnect, ParticipantID: participantID})
	return res.Participant, res.Err
}

// Snapshot returns an immutable copy of a session.
func (a *Arena) Snapshot(ctx context.Context, partyID string) (*Snapshot, error) {
	res := a.do(ctx, partyID, Request{Kind: KindSnapshot})
	return res.Snapshot, res.Err
}

// Snapshots returns copies of every live session ordered by party id.
// Sessions that end while being read are skipped.
func (a *Arena) Snapshots(ctx context.Context) []*Snapshot {
	out := make([]*Snapshot, 0, a.Len())
	for _, id := range a.PartyIDs() {
		snap, err := a.Snapshot(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

// PartyIDs lists live sessions in sorted order.
func (a *Arena) PartyIDs() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.loops))
	for id := range a.loops {
		ids = append(ids, id)
	}
	a.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Len returns the number of live sessions.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.loops)
}

func (a *Arena) do(ctx context.Context, partyID string, req Request) Result {
	l, err := a.lookup(partyID)
	if err != nil {
		return Result{Err: err}
	}
	res := l.Do(ctx, req)
	if IsClosed(res.Err) {
		res.Err = fmt.Errorf("%w: %s", ErrSessionNotFound, partyID)
	}
	return res
}

func (a *Arena) lookup(partyID string) (*Loop, error) {
	a.mu.RLock()
	l, ok := a.loops[partyID]
	a.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, partyID)
	}
	return l, nil
}

func (a *Arena) getOrCreate(partyID string) *Loop {
	a.mu.RLock()
	l, ok := a.loops[partyID]
	a.mu.RUnlock()
	if ok {
		return l
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if l, ok := a.loops[partyID]; ok {
		return l
	}
	a.logger.Info().Str("party_id", partyID).Msg("session created")
	return a.startLocked(NewController(partyID, a.cfg, a.now()))
}

// startLocked must be called with a.mu held.
func (a *Arena) startLocked(ctrl *Controller) *Loop {
	l := NewLoop(ctrl, a.loopCfg, a.out, a.store)
	l.onExit = func(done *Loop) { a.forget(done.PartyID(), done) }
	a.loops[ctrl.PartyID()] = l
	metrics.SessionOpened()
	a.spawner.Add(l)
	return l
}

// forget drops the entry for partyID. When l is non-nil only that exact loop
// is removed, so a replacement session is never dropped by its predecessor.
func (a *Arena) forget(partyID string, l *Loop) {
	a.mu.Lock()
	defer a.mu.Unlock()
	cur, ok := a.loops[partyID]
	if !ok || (l != nil && cur != l) {
		return
	}
	if l == nil && !cur.isClosed() {
		return
	}
	delete(a.loops, partyID)
	metrics.SessionClosed()
}

func (a *Arena) now() time.Time {
	if a.loopCfg.Now != nil {
		return a.loopCfg.Now()
	}
	return time.Now()
}
