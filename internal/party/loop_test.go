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
	"testing"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/partysync/internal/models"
)

// recorder collects broadcast messages.
type recorder struct {
	mu   sync.Mutex
	msgs []Outbound
}

func (r *recorder) Broadcast(out Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, out)
}

func (r *recorder) count(msgType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == msgType {
			n++
		}
	}
	return n
}

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu      sync.Mutex
	snaps   map[string]*Snapshot
	deleted []string
	saveErr error
	saves   int
}

func newMemStore() *memStore {
	return &memStore{snaps: make(map[string]*Snapshot)}
}

func (m *memStore) Save(_ context.Context, snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.snaps[snap.Session.ID] = snap
	return nil
}

func (m *memStore) Delete(_ context.Context, partyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, partyID)
	m.deleted = append(m.deleted, partyID)
	return nil
}

func (m *memStore) LoadAll(_ context.Context) ([]*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Snapshot, 0, len(m.snaps))
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) get(partyID string) (*Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[partyID]
	return s, ok
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) wasDeleted(partyID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.deleted {
		if id == partyID {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startLoop(t *testing.T, cfg LoopConfig, out Broadcaster, store SnapshotStore) (*Loop, context.CancelFunc, <-chan error) {
	t.Helper()
	l := NewLoop(NewController("party-1", DefaultConfig(), time.Now()), cfg, out, store)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Serve(ctx) }()
	t.Cleanup(cancel)
	return l, cancel, errc
}

func TestLoopSerializesConcurrentHeartbeats(t *testing.T) {
	rec := &recorder{}
	l, _, _ := startLoop(t, LoopConfig{TickInterval: time.Hour, QueueSize: 128}, rec, nil)
	ctx := context.Background()

	for _, id := range []string{"host", "p1", "p2"} {
		if res := l.Do(ctx, Request{Kind: KindJoin, ParticipantID: id, Role: RoleMember}); res.Err != nil {
			t.Fatalf("join %s: %v", id, res.Err)
		}
	}

	base := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "p1"
			if i%2 == 1 {
				id = "p2"
			}
			r := &HeartbeatReport{
				PartyID:       "party-1",
				ParticipantID: id,
				LocalPosition: f64(0),
				SentAt:        base.Add(time.Duration(i) * time.Millisecond),
				RoundTripMs:   f64(float64(40 + i)),
			}
			if res := l.Do(ctx, Request{Kind: KindHeartbeat, Report: r}); res.Err != nil {
				t.Errorf("heartbeat %d: %v", i, res.Err)
			}
		}(i)
	}
	wg.Wait()

	res := l.Do(ctx, Request{Kind: KindSnapshot})
	if res.Err != nil || res.Snapshot == nil {
		t.Fatalf("snapshot: %v", res.Err)
	}
	for _, id := range []string{"p1", "p2"} {
		p, ok := res.Snapshot.Participant(id)
		if !ok {
			t.Fatalf("%s missing", id)
		}
		if len(p.RTTSamples) != 5 {
			t.Errorf("%s rtt window = %d, want 5", id, len(p.RTTSamples))
		}
	}

	ev := &ControlEvent{PartyID: "party-1", Action: ActionPlay, IssuedBy: "host", IssuedAt: time.Now()}
	if res := l.Do(ctx, Request{Kind: KindControl, Event: ev}); res.Err != nil {
		t.Fatalf("control: %v", res.Err)
	}
	if n := rec.count(models.MessageTypePlaybackUpdate); n != 1 {
		t.Errorf("playback updates = %d, want 1", n)
	}
}

func TestLoopSubmitReturnsFuture(t *testing.T) {
	l, _, _ := startLoop(t, LoopConfig{TickInterval: time.Hour}, nil, nil)

	future, err := l.Submit(Request{Kind: KindJoin, ParticipantID: "host"})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case res := <-future:
		if res.Err != nil || res.Participant.Role != RoleHost {
			t.Errorf("result = %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("future never resolved")
	}
}

func TestLoopQueueFull(t *testing.T) {
	l := NewLoop(NewController("party-1", DefaultConfig(), time.Now()), LoopConfig{QueueSize: 1}, nil, nil)

	if _, err := l.Submit(Request{Kind: KindSnapshot}); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, err := l.Submit(Request{Kind: KindSnapshot}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("second submit error = %v, want ErrQueueFull", err)
	}
}

func TestLoopShutdownFailsPendingRequests(t *testing.T) {
	l := NewLoop(NewController("party-1", DefaultConfig(), time.Now()), LoopConfig{QueueSize: 4}, nil, nil)

	f1, _ := l.Submit(Request{Kind: KindSnapshot})
	f2, _ := l.Submit(Request{Kind: KindJoin, ParticipantID: "p"})
	l.shutdown()

	for i, f := range []<-chan Result{f1, f2} {
		if res := <-f; !errors.Is(res.Err, ErrSessionClosed) {
			t.Errorf("pending %d error = %v, want ErrSessionClosed", i, res.Err)
		}
	}
	if _, err := l.Submit(Request{Kind: KindSnapshot}); !IsClosed(err) {
		t.Errorf("submit after shutdown = %v, want ErrSessionClosed", err)
	}
	if err := l.Serve(context.Background()); !errors.Is(err, suture.ErrDoNotRestart) {
		t.Errorf("Serve on closed loop = %v, want ErrDoNotRestart", err)
	}
}

func TestLoopEndsWhenLastParticipantLeaves(t *testing.T) {
	store := newMemStore()
	l, _, errc := startLoop(t, LoopConfig{TickInterval: time.Hour}, nil, store)
	ctx := context.Background()

	l.Do(ctx, Request{Kind: KindJoin, ParticipantID: "host"})
	if res := l.Do(ctx, Request{Kind: KindLeave, ParticipantID: "host"}); res.Err != nil {
		t.Fatal(res.Err)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, suture.ErrDoNotRestart) {
			t.Errorf("Serve returned %v, want ErrDoNotRestart", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop")
	}
	select {
	case <-l.Done():
	default:
		t.Error("Done not closed")
	}
	if !store.wasDeleted("party-1") {
		t.Error("snapshot of ended session not deleted")
	}
}

func TestLoopCheckpointsAndStopsOnCancel(t *testing.T) {
	store := newMemStore()
	l, cancel, errc := startLoop(t, LoopConfig{TickInterval: time.Hour, CheckpointInterval: 10 * time.Millisecond}, nil, store)

	l.Do(context.Background(), Request{Kind: KindJoin, ParticipantID: "host"})
	eventually(t, "checkpoint", func() bool {
		_, ok := store.get("party-1")
		return ok
	})

	snap, _ := store.get("party-1")
	if _, ok := snap.Participant("host"); !ok {
		t.Error("checkpoint missing host")
	}

	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("loop did not stop on cancel")
	}
}

func TestLoopIdleSessionSkipsCheckpoints(t *testing.T) {
	store := newMemStore()
	frozen := time.Now()
	l, _, _ := startLoop(t, LoopConfig{
		TickInterval:       2 * time.Millisecond,
		CheckpointInterval: 5 * time.Millisecond,
		Now:                func() time.Time { return frozen },
	}, nil, store)
	ctx := context.Background()

	l.Do(ctx, Request{Kind: KindJoin, ParticipantID: "host"})
	eventually(t, "first checkpoint", func() bool { return store.saveCount() > 0 })

	// The tick after the join still flushes its sync_status; let it settle.
	time.Sleep(40 * time.Millisecond)
	settled := store.saveCount()
	time.Sleep(80 * time.Millisecond)
	if n := store.saveCount(); n != settled {
		t.Errorf("idle session wrote %d extra checkpoints", n-settled)
	}

	l.Do(ctx, Request{Kind: KindJoin, ParticipantID: "guest"})
	eventually(t, "checkpoint after join", func() bool { return store.saveCount() > settled })
}

func TestLoopCheckpointFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	store.saveErr = fmt.Errorf("disk full")
	l, _, _ := startLoop(t, LoopConfig{TickInterval: time.Hour, CheckpointInterval: 5 * time.Millisecond}, nil, store)

	l.Do(context.Background(), Request{Kind: KindJoin, ParticipantID: "host"})
	time.Sleep(30 * time.Millisecond)
	if res := l.Do(context.Background(), Request{Kind: KindSnapshot}); res.Err != nil {
		t.Errorf("loop unusable after checkpoint failure: %v", res.Err)
	}
}

func TestLoopTicksEmitSyncStatus(t *testing.T) {
	rec := &recorder{}
	l, _, _ := startLoop(t, LoopConfig{TickInterval: 10 * time.Millisecond}, rec, nil)

	l.Do(context.Background(), Request{Kind: KindJoin, ParticipantID: "host"})
	eventually(t, "sync_status", func() bool {
		return rec.count(models.MessageTypeSyncStatus) > 0
	})
}

func TestKindString(t *testing.T) {
	if KindHeartbeat.String() != "heartbeat" || KindForceSync.String() != "force_sync" {
		t.Errorf("unexpected kind names %s %s", KindHeartbeat, KindForceSync)
	}
	if Kind(99).String() != "kind(99)" {
		t.Errorf("unknown kind = %s", Kind(99))
	}
}
