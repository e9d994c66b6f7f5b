// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
)

// seekScenario joins a host and three members and seeks to 120 at t=0.
func seekScenario(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c := newTestController(t, cfg)
	mustJoin(t, c, "host", RoleHost, at(0))
	for _, id := range []string{"p1", "p2", "p3"} {
		mustJoin(t, c, id, RoleMember, at(0))
	}
	if err := c.OnControlEvent(control(ActionSeek, f64(120), "host", at(0)), at(0)); err != nil {
		t.Fatalf("seek rejected: %v", err)
	}
	return c
}

func reportScenario(t *testing.T, c *Controller, sent float64) {
	t.Helper()
	reports := []*HeartbeatReport{
		heartbeat("p1", 120, 100, at(sent)),
		heartbeat("p2", 118.5, 100, at(sent)),
		heartbeat("p3", 125, 900, at(sent)),
	}
	for _, r := range reports {
		if _, err := c.OnHeartbeat(r, at(sent)); err != nil {
			t.Fatalf("heartbeat %s: %v", r.ParticipantID, err)
		}
	}
}

func TestScenarioSeekThenDivergentReports(t *testing.T) {
	c := seekScenario(t, DefaultConfig())

	reportScenario(t, c, 1)
	if got := participant(t, c, "p3").SyncStatus; got == SyncOutOfSync {
		t.Fatalf("p3 flagged after a single heartbeat")
	}

	reportScenario(t, c, 2)

	want := map[string]SyncStatus{"p1": SyncSynced, "p2": SyncSynced, "p3": SyncOutOfSync}
	for id, status := range want {
		p := participant(t, c, id)
		if p.SyncStatus != status {
			t.Errorf("%s status = %s, want %s (drift %.3f)", id, p.SyncStatus, status, p.DriftSeconds)
		}
	}
	if d := participant(t, c, "p2").DriftSeconds; math.Abs(d+1.5) > 1e-9 {
		t.Errorf("p2 drift = %v, want -1.5", d)
	}
	if q := participant(t, c, "p3").Quality; q != QualityPoor {
		t.Errorf("p3 quality = %s, want poor", q)
	}
	if q := participant(t, c, "p1").Quality; q != QualityExcellent {
		t.Errorf("p1 quality = %s, want excellent", q)
	}
}

func TestScenarioSeekWithSingleHeartbeatDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sync.Debounce = 1
	c := seekScenario(t, cfg)

	reportScenario(t, c, 1)

	if got := participant(t, c, "p3").SyncStatus; got != SyncOutOfSync {
		t.Errorf("p3 status = %s, want out_of_sync", got)
	}
	for _, id := range []string{"p1", "p2"} {
		if got := participant(t, c, id).SyncStatus; got != SyncSynced {
			t.Errorf("%s status = %s, want synced", id, got)
		}
	}
}

func TestOutOfSyncToleranceBoundary(t *testing.T) {
	const eps = 1e-6
	tests := []struct {
		name  string
		drift float64
		want  SyncStatus
	}{
		{"exactly tolerance", 2, SyncSynced},
		{"tolerance minus epsilon", 2 - eps, SyncSynced},
		{"tolerance plus epsilon", 2 + eps, SyncOutOfSync},
		{"behind by tolerance plus epsilon", -(2 + eps), SyncOutOfSync},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := seekScenario(t, DefaultConfig())
			for i := 1; i <= 2; i++ {
				if _, err := c.OnHeartbeat(heartbeat("p1", 120+tt.drift, 50, at(float64(i))), at(float64(i))); err != nil {
					t.Fatal(err)
				}
			}
			if got := participant(t, c, "p1").SyncStatus; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOutOfSyncRequiresConsecutiveHeartbeats(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	positions := []float64{125, 120, 125, 120}
	for i, pos := range positions {
		if _, err := c.OnHeartbeat(heartbeat("p1", pos, 50, at(float64(i+1))), at(float64(i+1))); err != nil {
			t.Fatal(err)
		}
		if got := participant(t, c, "p1").SyncStatus; got == SyncOutOfSync {
			t.Fatalf("flagged after alternating samples at step %d", i)
		}
	}
}

func TestOutOfSyncRecoversAfterOneGoodHeartbeat(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	for i := 1; i <= 2; i++ {
		c.OnHeartbeat(heartbeat("p1", 130, 50, at(float64(i))), at(float64(i)))
	}
	if got := participant(t, c, "p1").SyncStatus; got != SyncOutOfSync {
		t.Fatalf("status = %s, want out_of_sync", got)
	}
	c.OnHeartbeat(heartbeat("p1", 120.5, 50, at(3)), at(3))
	if got := participant(t, c, "p1").SyncStatus; got != SyncSynced {
		t.Errorf("status = %s, want synced", got)
	}
}

func TestScenarioMissedHeartbeatsThenLateReport(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))
	c.OnHeartbeat(heartbeat("p1", 0, 50, at(0)), at(0))

	c.OnHeartbeat(heartbeat("host", 0, 50, at(20)), at(20))
	c.Tick(at(20))
	if got := participant(t, c, "p1").ConnectionStatus; got != ConnectionReconnecting {
		t.Errorf("after 20s status = %s, want reconnecting", got)
	}

	c.OnHeartbeat(heartbeat("host", 0, 50, at(40)), at(40))
	c.OnHeartbeat(heartbeat("host", 0, 50, at(60)), at(60))
	c.Tick(at(61))
	p := participant(t, c, "p1")
	if p.ConnectionStatus != ConnectionDisconnected {
		t.Fatalf("after 61s status = %s, want disconnected", p.ConnectionStatus)
	}
	if p.Quality != QualityOffline {
		t.Errorf("quality = %s, want offline", p.Quality)
	}
	if p.SyncStatus == SyncOutOfSync {
		t.Error("disconnected participant is out_of_sync")
	}

	// A late heartbeat is still applied.
	got, err := c.OnHeartbeat(heartbeat("p1", 3.5, 50, at(62)), at(62))
	if err != nil {
		t.Fatalf("late heartbeat rejected: %v", err)
	}
	if got.ConnectionStatus != ConnectionConnected {
		t.Errorf("status = %s, want connected", got.ConnectionStatus)
	}
	if got.LocalPosition != 3.5 {
		t.Errorf("localPosition = %v, want 3.5", got.LocalPosition)
	}
}

func TestDisconnectedParticipantRemovedAfterGrace(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))

	for s := 10.0; s <= 140; s += 10 {
		c.OnHeartbeat(heartbeat("host", 0, 50, at(s)), at(s))
		c.Tick(at(s))
	}
	if c.Has("p1") {
		t.Fatalf("p1 still present: %+v", participant(t, c, "p1"))
	}
	if !c.Has("host") {
		t.Fatal("host removed")
	}
}

func TestStaleControlRejectedRegardlessOfArrival(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))
	c.Drain()

	T := at(10)
	if err := c.OnControlEvent(control(ActionSeek, f64(300), "host", T), T); err != nil {
		t.Fatalf("T event rejected: %v", err)
	}
	err := c.OnControlEvent(control(ActionSeek, f64(5), "host", T.Add(-time.Second)), T)
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != RejectStale {
		t.Fatalf("T-1 error = %v, want stale rejection", err)
	}
	// Exact replay of T is stale too.
	if err := c.OnControlEvent(control(ActionSeek, f64(300), "host", T), T); !errors.Is(err, ErrRejectedControl) {
		t.Fatalf("replay error = %v, want rejection", err)
	}

	msgs := c.Drain()
	updates := playbackUpdates(msgs)
	if len(updates) != 1 {
		t.Fatalf("got %d playback updates, want 1", len(updates))
	}
	if updates[0].TargetPosition != 300 || updates[0].Reason != string(ActionSeek) {
		t.Errorf("update = %+v, want seek to 300", updates[0])
	}

	rejections := 0
	for _, m := range msgs {
		if m.Type != models.MessageTypeControlRejected {
			continue
		}
		rejections++
		if m.To != "host" {
			t.Errorf("rejection addressed to %q, want issuer only", m.To)
		}
		if cr := m.Payload.(models.ControlRejected); cr.Message != "This update is outdated" {
			t.Errorf("rejection message = %q", cr.Message)
		}
	}
	if rejections != 2 {
		t.Errorf("got %d rejections, want 2", rejections)
	}
}

func TestControlFromNonHostRejected(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))

	err := c.OnControlEvent(control(ActionPlay, nil, "p1", at(1)), at(1))
	var rej *RejectionError
	if !errors.As(err, &rej) || rej.Reason != RejectNotHost {
		t.Fatalf("error = %v, want not_host", err)
	}
	if c.session.IsPlaying {
		t.Error("rejected play started playback")
	}
}

// TestTargetChangesOnlyThroughAuthority fuzzes control order interleaved with
// heartbeats, joins and ticks, and checks that only accepted control events
// move the playback anchor.
func TestTargetChangesOnlyThroughAuthority(t *testing.T) {
	rng := rand.New(rand.NewSource(20260314))
	actions := []Action{ActionPlay, ActionPause, ActionSeek, ActionSkip}

	type anchor struct {
		pos     float64
		at      time.Time
		playing bool
		last    time.Time
	}
	read := func(c *Controller) anchor {
		return anchor{c.session.AnchorPosition, c.session.AnchorAt, c.session.IsPlaying, c.session.LastControlAt}
	}

	// Issue times are shuffled over 30s while the clock advances 7.5s.
	cfg := DefaultConfig()
	cfg.Sync.MaxClockSkew = time.Minute

	for trial := 0; trial < 40; trial++ {
		c := newTestController(t, cfg)
		mustJoin(t, c, "host", RoleHost, at(0))
		mustJoin(t, c, "guest", RoleMember, at(0))

		issued := rng.Perm(30)
		var maxHost time.Time
		now := 0.0

		for step, n := range issued {
			now += 0.25
			switch rng.Intn(4) {
			case 0:
				before := read(c)
				c.OnHeartbeat(heartbeat("guest", rng.Float64()*600, rng.Float64()*800, at(now)), at(now))
				if read(c) != before {
					t.Fatalf("trial %d step %d: heartbeat moved the anchor", trial, step)
				}
			case 1:
				before := read(c)
				c.Tick(at(now))
				if read(c) != before {
					t.Fatalf("trial %d step %d: tick moved the anchor", trial, step)
				}
			case 2:
				before := read(c)
				c.OnJoin("late-"+string(rune('a'+step%26)), RoleMember, at(now))
				if read(c) != before {
					t.Fatalf("trial %d step %d: join moved the anchor", trial, step)
				}
			}

			issuer := "host"
			if rng.Intn(5) == 0 {
				issuer = "guest"
			}
			ev := control(actions[rng.Intn(len(actions))], f64(rng.Float64()*600-100), issuer, at(float64(n+1)))
			if ev.Action == ActionSeek && *ev.Value < 0 {
				*ev.Value = -*ev.Value
			}
			if issuer == "host" && ev.IssuedAt.After(maxHost) {
				maxHost = ev.IssuedAt
			}

			before := read(c)
			err := c.OnControlEvent(ev, at(now))
			after := read(c)
			if err != nil {
				if after != before {
					t.Fatalf("trial %d step %d: rejected %s moved the anchor", trial, step, ev.Action)
				}
				continue
			}
			if !ev.IssuedAt.After(before.last) {
				t.Fatalf("trial %d step %d: accepted out-of-order event", trial, step)
			}
			if issuer != "host" {
				t.Fatalf("trial %d step %d: accepted event from %s", trial, step, issuer)
			}
		}

		if !c.session.LastControlAt.Equal(maxHost) {
			t.Errorf("trial %d: lastControlAt = %v, want newest host event %v", trial, c.session.LastControlAt, maxHost)
		}
	}
}

func TestFutureStampedControlCannotWedgeSession(t *testing.T) {
	tests := []struct {
		name      string
		maxSkew   time.Duration
		wantFirst RejectReason
		wantPause RejectReason
	}{
		{name: "bounded skew rejects the future event", maxSkew: 5 * time.Second, wantFirst: RejectInvalid},
		{name: "unbounded skew still recovers through override", maxSkew: 0, wantPause: RejectStale},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Sync.MaxClockSkew = tt.maxSkew
			c := newTestController(t, cfg)
			mustJoin(t, c, "host", RoleHost, at(0))
			mustJoin(t, c, "guest", RoleMember, at(0))

			check := func(step string, err error, want RejectReason) {
				t.Helper()
				if want == "" {
					if err != nil {
						t.Fatalf("%s rejected: %v", step, err)
					}
					return
				}
				var rej *RejectionError
				if !errors.As(err, &rej) || rej.Reason != want {
					t.Fatalf("%s error = %v, want %s", step, err, want)
				}
			}

			check("future play", c.OnControlEvent(control(ActionPlay, nil, "host", at(1).Add(24*time.Hour)), at(1)), tt.wantFirst)
			check("pause", c.OnControlEvent(control(ActionPause, nil, "host", at(2)), at(2)), tt.wantPause)

			override := control(ActionTransferHost, nil, "operator", at(3))
			override.Target = "guest"
			override.Override = true
			check("override transfer", c.OnControlEvent(override, at(3)), "")
			if c.session.HostParticipantID != "guest" {
				t.Fatalf("host = %s, want guest", c.session.HostParticipantID)
			}

			check("new host play", c.OnControlEvent(control(ActionPlay, nil, "guest", at(4)), at(4)), "")
			if !c.session.IsPlaying {
				t.Error("session should be playing after the new host's play")
			}
		})
	}
}

func TestHealedOutOfSyncKeepsBufferCoverage(t *testing.T) {
	tests := []struct {
		name   string
		ranges []Range
		want   SyncStatus
	}{
		{name: "covered heals to synced", ranges: []Range{{Start: 100, End: 200}}, want: SyncSynced},
		{name: "short buffer heals to buffering", ranges: []Range{{Start: 0, End: 60}}, want: SyncBuffering},
		{name: "unreported buffer heals to synced", ranges: nil, want: SyncSynced},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := seekScenario(t, DefaultConfig())
			hb := heartbeat("p1", 120, 50, at(1))
			hb.BufferedRanges = tt.ranges
			if _, err := c.OnHeartbeat(hb, at(1)); err != nil {
				t.Fatalf("heartbeat: %v", err)
			}

			p := c.participants["p1"]
			p.SyncStatus = SyncOutOfSync
			p.OverTolerance = 0
			c.Tick(at(1.5))

			if got := participant(t, c, "p1").SyncStatus; got != tt.want {
				t.Errorf("status = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHostLeaveHandsOffToEarliestCoHost(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "m1", RoleMember, at(1))
	mustJoin(t, c, "c1", RoleCoHost, at(2))
	mustJoin(t, c, "c2", RoleCoHost, at(3))
	c.OnControlEvent(control(ActionPlay, nil, "host", at(4)), at(4))
	c.Drain()

	if err := c.OnLeave("host", at(5)); err != nil {
		t.Fatal(err)
	}
	if c.session.HostParticipantID != "c1" {
		t.Fatalf("host = %s, want c1", c.session.HostParticipantID)
	}
	if participant(t, c, "c1").Role != RoleHost {
		t.Error("c1 role not promoted")
	}
	if !c.session.IsPlaying {
		t.Error("handoff to a co-host should not pause playback")
	}

	updates := playbackUpdates(c.Drain())
	if len(updates) != 1 || updates[0].Reason != ReasonHostHandoff || updates[0].HostParticipantID != "c1" {
		t.Errorf("updates = %+v, want one host_handoff to c1", updates)
	}

	if err := c.OnControlEvent(control(ActionPause, nil, "c1", at(6)), at(6)); err != nil {
		t.Errorf("new host control rejected: %v", err)
	}
}

func TestHostLeaveFallsBackToEarliestMember(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "m1", RoleMember, at(1))
	mustJoin(t, c, "m2", RoleMember, at(2))

	c.OnLeave("host", at(3))
	if c.session.HostParticipantID != "m1" {
		t.Errorf("host = %s, want m1", c.session.HostParticipantID)
	}
}

func TestNoHostPausesAndRejectsControl(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "m1", RoleMember, at(0))
	c.OnControlEvent(control(ActionPlay, nil, "host", at(1)), at(1))

	// m1 goes silent and is disconnected while the host keeps reporting.
	for s := 10.0; s <= 70; s += 10 {
		c.OnHeartbeat(heartbeat("host", s, 50, at(s)), at(s))
		c.Tick(at(s))
	}
	if participant(t, c, "m1").ConnectionStatus != ConnectionDisconnected {
		t.Fatal("m1 should be disconnected")
	}
	c.Drain()

	c.OnLeave("host", at(71))

	if !c.session.NoHost {
		t.Fatal("session not flagged no_host")
	}
	if c.session.IsPlaying {
		t.Error("session still playing without a host")
	}
	updates := playbackUpdates(c.Drain())
	if len(updates) != 1 || updates[0].Reason != ReasonNoHost || !updates[0].NoHost {
		t.Errorf("updates = %+v, want one no_host update", updates)
	}

	err := c.OnControlEvent(control(ActionPlay, nil, "m1", at(72)), at(72))
	if !errors.Is(err, ErrNoHostAvailable) {
		t.Errorf("control error = %v, want no_host", err)
	}

	// A host join restores authority.
	mustJoin(t, c, "new-host", RoleHost, at(73))
	if c.session.NoHost || c.session.HostParticipantID != "new-host" {
		t.Errorf("host not restored: %+v", c.session)
	}
	if err := c.OnControlEvent(control(ActionPlay, nil, "new-host", at(74)), at(74)); err != nil {
		t.Errorf("restored host rejected: %v", err)
	}
}

func TestHostRemovedAfterTimeoutHandsOffWithinTick(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "c1", RoleCoHost, at(0))

	for s := 10.0; s <= 140; s += 10 {
		c.OnHeartbeat(heartbeat("c1", 0, 50, at(s)), at(s))
		c.Tick(at(s))
	}
	if c.Has("host") {
		t.Fatal("silent host not removed")
	}
	if c.session.HostParticipantID != "c1" {
		t.Errorf("host = %s, want c1", c.session.HostParticipantID)
	}
}

func TestTransferHostDemotesPreviousHost(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "m1", RoleMember, at(0))
	c.Drain()

	ev := control(ActionTransferHost, nil, "host", at(1))
	ev.Target = "m1"
	if err := c.OnControlEvent(ev, at(1)); err != nil {
		t.Fatalf("transfer rejected: %v", err)
	}
	if r := participant(t, c, "host").Role; r != RoleCoHost {
		t.Errorf("previous host role = %s, want co-host", r)
	}
	if r := participant(t, c, "m1").Role; r != RoleHost {
		t.Errorf("new host role = %s, want host", r)
	}
	updates := playbackUpdates(c.Drain())
	if len(updates) != 1 || updates[0].HostParticipantID != "m1" {
		t.Errorf("updates = %+v", updates)
	}
}

func TestJoinRoles(t *testing.T) {
	c := newTestController(t, DefaultConfig())

	first := mustJoin(t, c, "first", RoleMember, at(0))
	if first.Role != RoleHost {
		t.Errorf("first joiner role = %s, want host", first.Role)
	}
	second := mustJoin(t, c, "second", RoleHost, at(1))
	if second.Role != RoleCoHost {
		t.Errorf("second host role = %s, want co-host", second.Role)
	}
	third := mustJoin(t, c, "third", Role("admin"), at(2))
	if third.Role != RoleMember {
		t.Errorf("unknown role mapped to %s, want member", third.Role)
	}
	if third.SyncStatus != SyncBuffering || third.ConnectionStatus != ConnectionConnected {
		t.Errorf("new participant state = %s/%s", third.ConnectionStatus, third.SyncStatus)
	}
	if _, err := c.OnJoin("", RoleMember, at(3)); err == nil {
		t.Error("empty participant id accepted")
	}
}

func TestRoundTripCompensationIsIdempotent(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))
	c.OnControlEvent(control(ActionPlay, nil, "host", at(0)), at(0))

	c.OnHeartbeat(heartbeat("p1", 1, 200, at(1)), at(1))
	report := heartbeat("p1", 2, 400, at(2))
	first, err := c.OnHeartbeat(report, at(2))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(first.EstimatedPosition-2.15) > 1e-9 {
		t.Fatalf("estimate = %v, want 2.15", first.EstimatedPosition)
	}

	second, err := c.OnHeartbeat(report, at(2.5))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("replayed heartbeat changed state:\nfirst  %+v\nsecond %+v", first, second)
	}
}

func TestMalformedHeartbeatRetainsState(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	c.OnHeartbeat(heartbeat("p1", 125, 50, at(1)), at(1))
	before := participant(t, c, "p1")

	bad := []*HeartbeatReport{
		{PartyID: "party-1", ParticipantID: "p1", SentAt: at(2)},
		{PartyID: "party-1", ParticipantID: "p1", LocalPosition: f64(math.NaN()), SentAt: at(2)},
		{PartyID: "party-1", ParticipantID: "p1", LocalPosition: f64(125)},
		{PartyID: "party-1", ParticipantID: "p1", LocalPosition: f64(125), SentAt: at(2), BufferedRanges: []Range{{5, 1}}},
	}
	for i, r := range bad {
		if _, err := c.OnHeartbeat(r, at(2)); !errors.Is(err, ErrMalformedReport) {
			t.Errorf("report %d error = %v, want ErrMalformedReport", i, err)
		}
	}
	if after := participant(t, c, "p1"); !reflect.DeepEqual(before, after) {
		t.Errorf("malformed reports changed state:\nbefore %+v\nafter  %+v", before, after)
	}

	if _, err := c.OnHeartbeat(heartbeat("ghost", 1, 1, at(2)), at(2)); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("unknown participant error = %v", err)
	}
	if _, err := c.OnHeartbeat(nil, at(2)); !errors.Is(err, ErrMalformedReport) {
		t.Errorf("nil report error = %v", err)
	}
}

func TestForceSyncRecommendedOncePerEpisode(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	c.OnHeartbeat(heartbeat("p1", 150, 50, at(1)), at(1))
	c.OnHeartbeat(heartbeat("p1", 150, 50, at(2)), at(2))
	c.Drain()

	c.Tick(at(12))
	if n := len(outboxOf(c, models.MessageTypeForceSyncRecommended)); n != 0 {
		t.Fatalf("recommended after exactly 10s: %d", n)
	}

	c.Tick(at(12.5))
	recs := outboxOf(c, models.MessageTypeForceSyncRecommended)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1", len(recs))
	}
	rec := recs[0].Payload.(models.ForceSyncRecommended)
	if rec.ParticipantID != "p1" || rec.DriftSeconds != 30 {
		t.Errorf("recommendation = %+v", rec)
	}

	c.Tick(at(13))
	if n := len(outboxOf(c, models.MessageTypeForceSyncRecommended)); n != 0 {
		t.Errorf("recommendation repeated: %d", n)
	}
	// Still out of sync: no automatic correction happened.
	if got := participant(t, c, "p1").SyncStatus; got != SyncOutOfSync {
		t.Errorf("status = %s, want out_of_sync", got)
	}
}

func TestTickReportsChanges(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))

	steps := []struct {
		name    string
		at      float64
		before  func()
		changed bool
	}{
		{name: "join is flushed", at: 0.5, changed: true},
		{name: "idle", at: 1},
		{name: "accepted control is flushed", at: 3, before: func() {
			if err := c.OnControlEvent(control(ActionPlay, nil, "host", at(2)), at(2)); err != nil {
				t.Fatalf("play rejected: %v", err)
			}
		}, changed: true},
		{name: "idle while playing", at: 4},
		{name: "quality degrades", at: 9, changed: true},
		{name: "idle again", at: 10},
	}
	for _, st := range steps {
		if st.before != nil {
			st.before()
		}
		if _, changed := c.Tick(at(st.at)); changed != st.changed {
			t.Errorf("%s: changed = %v, want %v", st.name, changed, st.changed)
		}
	}
}

func TestForceSyncBroadcastsAndClears(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	c.OnHeartbeat(heartbeat("p1", 150, 50, at(1)), at(1))
	c.OnHeartbeat(heartbeat("p1", 150, 50, at(2)), at(2))
	c.Tick(at(13))
	if !participant(t, c, "p1").ForceSyncRecommended {
		t.Fatal("recommendation flag not set")
	}
	c.Drain()

	c.ForceSync(at(14))

	updates := playbackUpdates(c.Drain())
	if len(updates) != 1 || updates[0].Reason != ReasonForceSync || updates[0].TargetPosition != 120 {
		t.Errorf("updates = %+v, want force_sync at 120", updates)
	}
	if participant(t, c, "p1").ForceSyncRecommended {
		t.Error("recommendation flag not cleared")
	}
}

func TestReconnectResetsParticipant(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	mustJoin(t, c, "p1", RoleMember, at(0))
	c.OnHeartbeat(heartbeat("p1", 0, 300, at(1)), at(1))
	c.OnHeartbeat(heartbeat("p1", 0, 300, at(2)), at(2))
	c.Tick(at(65))

	p, err := c.Reconnect("p1", at(66))
	if err != nil {
		t.Fatal(err)
	}
	if p.ConnectionStatus != ConnectionConnected {
		t.Errorf("status = %s, want connected", p.ConnectionStatus)
	}
	if !p.LastHeartbeatAt.Equal(at(66)) {
		t.Errorf("heartbeat timer = %v, want %v", p.LastHeartbeatAt, at(66))
	}
	if len(p.RTTSamples) != 0 || p.RoundTripMs != 0 {
		t.Errorf("rtt window not cleared: %v", p.RTTSamples)
	}

	c.Tick(at(70))
	if got := participant(t, c, "p1").ConnectionStatus; got != ConnectionConnected {
		t.Errorf("status after tick = %s, want connected", got)
	}

	if _, err := c.Reconnect("ghost", at(70)); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("error = %v, want ErrUnknownParticipant", err)
	}
}

func TestSyncStatusCoalescedPerTick(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	reportScenario(t, c, 1)
	reportScenario(t, c, 2)

	if n := len(outboxOf(c, models.MessageTypeSyncStatus)); n != 0 {
		t.Fatalf("sync_status emitted outside tick: %d", n)
	}

	c.Tick(at(2))
	msgs := outboxOf(c, models.MessageTypeSyncStatus)
	if len(msgs) != 1 {
		t.Fatalf("got %d sync_status, want 1", len(msgs))
	}
	st := msgs[0].Payload.(models.SyncStatus)
	if st.TotalCount != 4 || st.SyncedCount != 2 || st.ConnectedCount != 4 {
		t.Errorf("counts = total %d synced %d connected %d", st.TotalCount, st.SyncedCount, st.ConnectedCount)
	}
	if len(st.Participants) != 4 || st.Participants[0].ID != "host" {
		t.Errorf("participants not in join order: %+v", st.Participants)
	}

	c.Tick(at(2))
	if n := len(outboxOf(c, models.MessageTypeSyncStatus)); n != 0 {
		t.Errorf("sync_status emitted without changes: %d", n)
	}
}

func TestTickAdvancesTargetWhilePlaying(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	c.OnControlEvent(control(ActionSeek, f64(100), "host", at(0)), at(0))
	c.OnControlEvent(control(ActionPlay, nil, "host", at(1)), at(1))

	c.Tick(at(4))
	if got := c.Snapshot(at(4)).Session.TargetPosition; math.Abs(got-103) > 1e-9 {
		t.Errorf("target = %v, want 103", got)
	}

	c.OnControlEvent(control(ActionPause, nil, "host", at(5)), at(5))
	c.Tick(at(9))
	if got := c.Snapshot(at(9)).Session.TargetPosition; math.Abs(got-104) > 1e-9 {
		t.Errorf("paused target = %v, want 104", got)
	}
}

func TestInvariantViolationsAreHealed(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	before := testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues("sync_status")) +
		testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues("host"))

	c.participants["p1"].SyncStatus = SyncOutOfSync
	c.participants["p2"].Role = RoleHost
	c.Tick(at(1))

	if got := participant(t, c, "p1").SyncStatus; got == SyncOutOfSync {
		t.Error("out_of_sync without drift not healed")
	}
	if got := participant(t, c, "p2").Role; got != RoleCoHost {
		t.Errorf("extra host role = %s, want co-host", got)
	}
	if c.session.HostParticipantID != "host" {
		t.Errorf("host = %s, want host", c.session.HostParticipantID)
	}

	after := testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues("sync_status")) +
		testutil.ToFloat64(metrics.InvariantViolations.WithLabelValues("host"))
	if after-before != 2 {
		t.Errorf("violations counted = %v, want 2", after-before)
	}
}

func TestSnapshotIsImmutableAndRestorable(t *testing.T) {
	c := seekScenario(t, DefaultConfig())
	reportScenario(t, c, 1)

	snap := c.Snapshot(at(1))
	snap.Participants[0].Role = RoleMember
	if participant(t, c, "host").Role != RoleHost {
		t.Fatal("mutating a snapshot changed the controller")
	}

	snap = c.Snapshot(at(1))
	restored := RestoreController(snap, DefaultConfig())
	if restored.Len() != 4 || restored.session.HostParticipantID != "host" {
		t.Fatalf("restored %d participants, host %q", restored.Len(), restored.session.HostParticipantID)
	}

	// Debounce state survives the round trip.
	restored.OnHeartbeat(heartbeat("p3", 125, 900, at(2)), at(2))
	p3, _ := restored.Snapshot(at(2)).Participant("p3")
	if p3.SyncStatus != SyncOutOfSync {
		t.Errorf("p3 after restore = %s, want out_of_sync", p3.SyncStatus)
	}

	// New joins continue the join sequence.
	late := mustJoin(t, restored, "late", RoleMember, at(3))
	if late.JoinSeq <= snap.JoinSeq {
		t.Errorf("join seq %d did not advance past %d", late.JoinSeq, snap.JoinSeq)
	}
}

func TestLeaveUnknownParticipant(t *testing.T) {
	c := newTestController(t, DefaultConfig())
	mustJoin(t, c, "host", RoleHost, at(0))
	if err := c.OnLeave("ghost", at(1)); !errors.Is(err, ErrUnknownParticipant) {
		t.Errorf("error = %v, want ErrUnknownParticipant", err)
	}
	if err := c.OnLeave("host", at(2)); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 || c.session.NoHost {
		t.Errorf("empty session state: len %d noHost %v", c.Len(), c.session.NoHost)
	}
}
