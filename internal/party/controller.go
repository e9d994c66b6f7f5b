// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/metrics"
	"github.com/tomtom215/partysync/internal/models"
)

// Config bundles the tunables of every engine component.
type Config struct {
	Clock   ClockConfig
	Quality QualityConfig
	Sync    SyncConfig

	// DisconnectTimeout is how long without a heartbeat before a participant
	// is marked disconnected.
	DisconnectTimeout time.Duration
	// RemovalGrace is how long a disconnected participant is kept before removal.
	RemovalGrace time.Duration
}

// DefaultConfig returns the stock engine configuration.
func DefaultConfig() Config {
	return Config{
		Clock:             DefaultClockConfig(),
		Quality:           DefaultQualityConfig(),
		Sync:              DefaultSyncConfig(),
		DisconnectTimeout: 60 * time.Second,
		RemovalGrace:      60 * time.Second,
	}
}

// Outbound is a message the controller wants delivered. An empty To means
// every participant of the party.
type Outbound struct {
	Type    string
	PartyID string
	To      string
	Payload interface{}
}

// Controller owns one session and its participants. It is not safe for
// concurrent use; Loop serializes access.
//
// Every mutating method takes the current time explicitly and ends with an
// invariant check that heals and logs any violation.
type Controller struct {
	cfg          Config
	session      Session
	participants map[string]*Participant
	joinSeq      uint64
	outbox       []Outbound
	dirty        bool
	logger       zerolog.Logger
}

// NewController creates an empty session.
func NewController(partyID string, cfg Config, now time.Time) *Controller {
	tolerance := cfg.Sync.Tolerance
	if tolerance <= 0 {
		tolerance = DefaultSyncConfig().Tolerance
	}
	return &Controller{
		cfg: cfg,
		session: Session{
			ID:            partyID,
			SyncTolerance: tolerance,
			CreatedAt:     now,
			AnchorAt:      now,
		},
		participants: make(map[string]*Participant),
		logger:       logging.WithComponent("party").With().Str("party_id", partyID).Logger(),
	}
}

// RestoreController rehydrates a controller from a snapshot.
func RestoreController(snap *Snapshot, cfg Config) *Controller {
	c := NewController(snap.Session.ID, cfg, snap.Session.CreatedAt)
	c.session = snap.Session
	if c.session.SyncTolerance <= 0 {
		c.session.SyncTolerance = c.defaultTolerance()
	}
	c.joinSeq = snap.JoinSeq
	for i := range snap.Participants {
		p := snap.Participants[i].clone()
		if p.JoinSeq > c.joinSeq {
			c.joinSeq = p.JoinSeq
		}
		c.participants[p.ID] = &p
	}
	c.dirty = true
	metrics.AddParticipants(len(c.participants))
	c.logger.Info().Int("participants", len(c.participants)).Msg("session restored from snapshot")
	return c
}

// PartyID returns the session id.
func (c *Controller) PartyID() string {
	return c.session.ID
}

// Len returns the number of participants.
func (c *Controller) Len() int {
	return len(c.participants)
}

// Has implements Roster.
func (c *Controller) Has(participantID string) bool {
	_, ok := c.participants[participantID]
	return ok
}

// Drain returns and clears pending outbound messages.
func (c *Controller) Drain() []Outbound {
	out := c.outbox
	c.outbox = nil
	return out
}

// OnJoin adds a participant, or refreshes an existing one as a reconnect.
//
// The first participant of a fresh session becomes host whatever role it asked
// for. A host join while a host already exists is downgraded to co-host. A host
// join while the session has no host restores authority.
func (c *Controller) OnJoin(participantID string, role Role, now time.Time) (Participant, error) {
	defer c.finish(now)

	if participantID == "" {
		return Participant{}, fmt.Errorf("%w: empty participant id", ErrUnknownParticipant)
	}
	if existing, ok := c.participants[participantID]; ok {
		c.resetConnection(existing, now)
		c.logger.Debug().Str("participant_id", participantID).Msg("participant rejoined")
		return existing.clone(), nil
	}
	if !role.Valid() {
		role = RoleMember
	}

	freshSession := c.session.HostParticipantID == "" && !c.session.NoHost && len(c.participants) == 0
	switch {
	case freshSession:
		role = RoleHost
	case role == RoleHost && c.session.NoHost:
		// restores authority below
	case role == RoleHost:
		role = RoleCoHost
	}

	c.joinSeq++
	p := &Participant{
		ID:               participantID,
		Role:             role,
		ConnectionStatus: ConnectionConnected,
		SyncStatus:       SyncBuffering,
		LastHeartbeatAt:  now,
		JoinedAt:         now,
		JoinSeq:          c.joinSeq,
	}
	p.Quality = Classify(p.LastHeartbeatAt, 0, now, c.cfg.Quality)
	c.participants[participantID] = p
	metrics.AddParticipants(1)

	if role == RoleHost {
		wasNoHost := c.session.NoHost
		c.session.HostParticipantID = participantID
		c.session.NoHost = false
		if wasNoHost {
			c.session.TargetPosition = c.session.positionAt(now)
			metrics.RecordHostChange("restored")
			c.logger.Info().Str("host", participantID).Msg("host authority restored")
			c.emitPlayback(participantID, ReasonHostHandoff, now)
		}
	}

	c.dirty = true
	c.logger.Info().
		Str("participant_id", participantID).
		Str("role", string(role)).
		Int("participants", len(c.participants)).
		Msg("participant joined")
	return p.clone(), nil
}

// OnLeave removes a participant. A departing host triggers the handoff policy.
func (c *Controller) OnLeave(participantID string, now time.Time) error {
	defer c.finish(now)

	p, ok := c.participants[participantID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	c.remove(p, now, "left")
	return nil
}

// OnHeartbeat runs estimation, classification and the sync state machine for
// one participant. A malformed report leaves the previous state untouched.
// Replaying a report with the same sentAt is a no-op.
func (c *Controller) OnHeartbeat(report *HeartbeatReport, now time.Time) (Participant, error) {
	defer c.finish(now)

	if report == nil {
		metrics.RecordHeartbeat("malformed")
		return Participant{}, fmt.Errorf("%w: empty report", ErrMalformedReport)
	}
	p, ok := c.participants[report.ParticipantID]
	if !ok {
		metrics.RecordHeartbeat("unknown")
		return Participant{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, report.ParticipantID)
	}
	if err := ValidateReport(report); err != nil {
		metrics.RecordHeartbeat("malformed")
		c.logger.Warn().Err(err).Str("participant_id", p.ID).Msg("ignoring malformed heartbeat")
		return p.clone(), err
	}
	if !p.LastSentAt.IsZero() && report.SentAt.Equal(p.LastSentAt) {
		metrics.RecordHeartbeat("replay")
		return p.clone(), nil
	}

	previous := p.SyncStatus
	p.LastSentAt = report.SentAt
	if report.RoundTripMs != nil {
		p.RTTSamples = pushSample(p.RTTSamples, *report.RoundTripMs, c.cfg.Clock.Window)
	}
	p.RoundTripMs = Median(p.RTTSamples)
	p.LastHeartbeatAt = now
	if p.ConnectionStatus != ConnectionConnected {
		c.logger.Info().
			Str("participant_id", p.ID).
			Str("from", string(p.ConnectionStatus)).
			Msg("participant connection restored by heartbeat")
		p.ConnectionStatus = ConnectionConnected
		p.DisconnectedAt = time.Time{}
	}

	target := c.session.positionAt(now)
	p.LocalPosition = *report.LocalPosition
	p.EstimatedPosition = Estimate(p.LocalPosition, p.RTTSamples, c.session.IsPlaying, c.cfg.Clock)
	p.DriftSeconds = Drift(p.EstimatedPosition, target)
	p.Quality = Classify(p.LastHeartbeatAt, p.RoundTripMs, now, c.cfg.Quality)
	p.BufferShort = !Covers(report.BufferedRanges, target, c.cfg.Sync.Lookahead)

	outcome := NextSyncStatus(SyncInput{
		Current:   p.SyncStatus,
		OverCount: p.OverTolerance,
		Drift:     p.DriftSeconds,
		Tolerance: c.session.SyncTolerance,
		Connected: true,
		Ranges:    report.BufferedRanges,
		Target:    target,
	}, c.cfg.Sync)
	c.setSync(p, outcome, now)
	c.checkForceSync(p, now)

	metrics.RecordHeartbeat("applied")
	metrics.ObserveDrift(p.DriftSeconds)
	if p.SyncStatus != previous {
		c.logger.Debug().
			Str("participant_id", p.ID).
			Str("from", string(previous)).
			Str("to", string(p.SyncStatus)).
			Float64("drift", p.DriftSeconds).
			Msg("sync status changed")
	}
	c.dirty = true
	return p.clone(), nil
}

// OnControlEvent runs the host authority check and broadcasts accepted events.
// Rejections are reported to the issuer only.
func (c *Controller) OnControlEvent(ev *ControlEvent, now time.Time) error {
	defer c.finish(now)

	if ev == nil {
		return reject(RejectInvalid, "", "empty event")
	}
	previousHost := c.session.HostParticipantID
	next, err := Authorize(c.session, *ev, c, now, c.cfg.Sync.MaxClockSkew)
	if err != nil {
		var rej *RejectionError
		if errors.As(err, &rej) {
			metrics.RecordControlEvent(string(ev.Action), string(rej.Reason))
			c.emitRejection(ev, rej)
		}
		c.logger.Debug().Err(err).Str("issued_by", ev.IssuedBy).Msg("control event rejected")
		return err
	}

	c.session = next
	if ev.Action == ActionTransferHost {
		if old, ok := c.participants[previousHost]; ok && previousHost != ev.Target {
			old.Role = RoleCoHost
		}
		c.participants[ev.Target].Role = RoleHost
		metrics.RecordHostChange("transfer")
		c.logger.Info().
			Str("from", previousHost).
			Str("to", ev.Target).
			Bool("override", ev.Override).
			Msg("host transferred")
	}

	metrics.RecordControlEvent(string(ev.Action), "accepted")
	c.emitPlayback(ev.IssuedBy, string(ev.Action), ev.IssuedAt)
	c.dirty = true
	return nil
}

// Tick advances the target, ages connections and flushes a coalesced
// sync_status when anything changed since the previous tick. changed is false
// when the tick left every participant and the session anchor untouched.
func (c *Controller) Tick(now time.Time) (stats Stats, changed bool) {
	start := time.Now()
	defer func() { metrics.RecordTick(time.Since(start)) }()
	defer func() { changed = changed || c.dirty }()
	defer c.finish(now)

	c.session.TargetPosition = c.session.positionAt(now)

	var expired []*Participant
	for _, p := range c.sorted() {
		since := now.Sub(p.LastHeartbeatAt)
		switch p.ConnectionStatus {
		case ConnectionConnected:
			if since > c.cfg.Quality.OfflineAfter {
				p.ConnectionStatus = ConnectionReconnecting
				c.dirty = true
			}
		case ConnectionDisconnected:
			if now.Sub(p.DisconnectedAt) > c.cfg.RemovalGrace {
				expired = append(expired, p)
				continue
			}
		}
		if p.ConnectionStatus != ConnectionDisconnected && since > c.cfg.DisconnectTimeout {
			p.ConnectionStatus = ConnectionDisconnected
			p.DisconnectedAt = now
			c.dirty = true
			c.logger.Info().
				Str("participant_id", p.ID).
				Dur("silent_for", since).
				Msg("participant disconnected")
		}

		if q := Classify(p.LastHeartbeatAt, p.RoundTripMs, now, c.cfg.Quality); q != p.Quality {
			p.Quality = q
			c.dirty = true
		}
		if p.ConnectionStatus != ConnectionConnected {
			c.setSync(p, Disconnected(p.SyncStatus), now)
		}
		if c.checkForceSync(p, now) {
			changed = true
		}
	}

	for _, p := range expired {
		c.remove(p, now, "disconnect timeout")
	}

	if c.dirty {
		c.emitSyncStatus()
		c.dirty = false
		changed = true
	}
	return c.Stats(), changed
}

// ForceSync re-broadcasts the current target to everyone and clears all
// pending force-sync recommendations.
func (c *Controller) ForceSync(now time.Time) {
	defer c.finish(now)

	c.session.TargetPosition = c.session.positionAt(now)
	for _, p := range c.participants {
		p.ForceSyncRecommended = false
		if p.SyncStatus == SyncOutOfSync {
			p.OutOfSyncSince = now
		}
	}
	c.emitPlayback("", ReasonForceSync, now)
	c.logger.Info().Float64("target", c.session.TargetPosition).Msg("force sync broadcast")
}

// Reconnect resets a participant's connection state and heartbeat timer.
func (c *Controller) Reconnect(participantID string, now time.Time) (Participant, error) {
	defer c.finish(now)

	p, ok := c.participants[participantID]
	if !ok {
		return Participant{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantID)
	}
	c.resetConnection(p, now)
	c.logger.Info().Str("participant_id", participantID).Msg("participant reconnected")
	return p.clone(), nil
}

// Snapshot returns an immutable copy of the session state at now.
func (c *Controller) Snapshot(now time.Time) *Snapshot {
	s := c.session
	s.TargetPosition = s.positionAt(now)
	snap := &Snapshot{
		Session:      s,
		Participants: make([]Participant, 0, len(c.participants)),
		JoinSeq:      c.joinSeq,
		TakenAt:      now,
	}
	for _, p := range c.sorted() {
		snap.Participants = append(snap.Participants, p.clone())
	}
	return snap
}

// Stats counts the roster by status.
func (c *Controller) Stats() Stats {
	var st Stats
	for _, p := range c.participants {
		st.Total++
		if p.ConnectionStatus == ConnectionConnected {
			st.Connected++
		}
		switch p.SyncStatus {
		case SyncSynced:
			st.Synced++
		case SyncBuffering:
			st.Buffering++
		case SyncOutOfSync:
			st.OutOfSync++
		}
	}
	return st
}

func (c *Controller) resetConnection(p *Participant, now time.Time) {
	p.ConnectionStatus = ConnectionConnected
	p.LastHeartbeatAt = now
	p.DisconnectedAt = time.Time{}
	p.RTTSamples = nil
	p.RoundTripMs = 0
	p.LastSentAt = time.Time{}
	p.OverTolerance = 0
	p.ForceSyncRecommended = false
	p.OutOfSyncSince = time.Time{}
	if p.SyncStatus == SyncOutOfSync {
		c.setSync(p, SyncOutcome{Status: SyncBuffering}, now)
	}
	p.Quality = Classify(p.LastHeartbeatAt, p.RoundTripMs, now, c.cfg.Quality)
	c.dirty = true
}

func (c *Controller) remove(p *Participant, now time.Time, why string) {
	delete(c.participants, p.ID)
	metrics.AddParticipants(-1)
	c.dirty = true
	c.logger.Info().
		Str("participant_id", p.ID).
		Str("reason", why).
		Int("participants", len(c.participants)).
		Msg("participant removed")

	if p.ID == c.session.HostParticipantID {
		c.handoff(now)
	}
}

// handoff promotes the earliest-joined co-host, then the earliest-joined
// member. With nobody eligible the session pauses and is flagged no_host.
func (c *Controller) handoff(now time.Time) {
	previous := c.session.HostParticipantID
	c.session.TargetPosition = c.session.positionAt(now)
	if len(c.participants) == 0 {
		c.session.HostParticipantID = ""
		return
	}

	if next := Successor(c.sorted(), previous); next != "" {
		c.participants[next].Role = RoleHost
		c.session.HostParticipantID = next
		c.session.NoHost = false
		metrics.RecordHostChange("handoff")
		c.logger.Info().Str("from", previous).Str("to", next).Msg("host handed off")
		c.emitPlayback("", ReasonHostHandoff, now)
		return
	}

	c.session.reanchor(c.session.positionAt(now), false, now)
	c.session.HostParticipantID = ""
	c.session.NoHost = true
	metrics.RecordHostChange("no_host")
	c.logger.Warn().Err(ErrNoHostAvailable).Str("previous_host", previous).Msg("session paused without a host")
	c.emitPlayback("", ReasonNoHost, now)
}

func (c *Controller) setSync(p *Participant, outcome SyncOutcome, now time.Time) {
	if outcome.Status != p.SyncStatus {
		metrics.RecordSyncTransition(string(p.SyncStatus), string(outcome.Status))
		c.dirty = true
	}
	p.SyncStatus = outcome.Status
	p.OverTolerance = outcome.OverCount
	if p.SyncStatus == SyncOutOfSync {
		if p.OutOfSyncSince.IsZero() {
			p.OutOfSyncSince = now
		}
		return
	}
	p.OutOfSyncSince = time.Time{}
	p.ForceSyncRecommended = false
}

// checkForceSync raises one recommendation per out-of-sync episode and
// reports whether it did.
func (c *Controller) checkForceSync(p *Participant, now time.Time) bool {
	if p.SyncStatus != SyncOutOfSync || p.ForceSyncRecommended || p.OutOfSyncSince.IsZero() {
		return false
	}
	elapsed := now.Sub(p.OutOfSyncSince)
	if elapsed <= c.cfg.Sync.ForceSyncAfter {
		return false
	}
	p.ForceSyncRecommended = true
	metrics.RecordForceSyncRecommended()
	c.outbox = append(c.outbox, Outbound{
		Type:    models.MessageTypeForceSyncRecommended,
		PartyID: c.session.ID,
		Payload: models.ForceSyncRecommended{
			PartyID:          c.session.ID,
			ParticipantID:    p.ID,
			DriftSeconds:     p.DriftSeconds,
			OutOfSyncSeconds: elapsed.Seconds(),
		},
	})
	c.logger.Info().
		Str("participant_id", p.ID).
		Float64("drift", p.DriftSeconds).
		Dur("out_of_sync_for", elapsed).
		Msg("force sync recommended")
	return true
}

func (c *Controller) emitPlayback(issuedBy, reason string, issuedAt time.Time) {
	c.outbox = append(c.outbox, Outbound{
		Type:    models.MessageTypePlaybackUpdate,
		PartyID: c.session.ID,
		Payload: models.PlaybackUpdate{
			PartyID:           c.session.ID,
			TargetPosition:    c.session.TargetPosition,
			IsPlaying:         c.session.IsPlaying,
			IssuedBy:          issuedBy,
			Reason:            reason,
			HostParticipantID: c.session.HostParticipantID,
			NoHost:            c.session.NoHost,
			IssuedAt:          issuedAt,
		},
	})
}

func (c *Controller) emitRejection(ev *ControlEvent, rej *RejectionError) {
	if ev.IssuedBy == "" {
		return
	}
	c.outbox = append(c.outbox, Outbound{
		Type:    models.MessageTypeControlRejected,
		PartyID: c.session.ID,
		To:      ev.IssuedBy,
		Payload: models.ControlRejected{
			PartyID:  c.session.ID,
			Action:   string(ev.Action),
			IssuedBy: ev.IssuedBy,
			Reason:   string(rej.Reason),
			Message:  rej.Reason.Message(),
		},
	})
}

func (c *Controller) emitSyncStatus() {
	st := c.Stats()
	msg := models.SyncStatus{
		PartyID:        c.session.ID,
		Participants:   make([]models.ParticipantStatus, 0, len(c.participants)),
		SyncedCount:    st.Synced,
		ConnectedCount: st.Connected,
		TotalCount:     st.Total,
		TargetPosition: c.session.TargetPosition,
		IsPlaying:      c.session.IsPlaying,
		NoHost:         c.session.NoHost,
	}
	for _, p := range c.sorted() {
		msg.Participants = append(msg.Participants, StatusFromParticipant(p))
	}
	c.outbox = append(c.outbox, Outbound{
		Type:    models.MessageTypeSyncStatus,
		PartyID: c.session.ID,
		Payload: msg,
	})
}

// sorted returns participants in join order.
func (c *Controller) sorted() []*Participant {
	out := make([]*Participant, 0, len(c.participants))
	for _, p := range c.participants {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinSeq < out[j].JoinSeq })
	return out
}

func (c *Controller) defaultTolerance() float64 {
	if c.cfg.Sync.Tolerance > 0 {
		return c.cfg.Sync.Tolerance
	}
	return DefaultSyncConfig().Tolerance
}

// finish re-asserts the session invariants after every handler.
func (c *Controller) finish(now time.Time) {
	if c.session.SyncTolerance <= 0 || !finite(c.session.SyncTolerance) {
		c.violation("sync_tolerance", "reset non-positive sync tolerance")
		c.session.SyncTolerance = c.defaultTolerance()
	}
	if !finite(c.session.AnchorPosition) || c.session.AnchorPosition < 0 {
		c.violation("target_position", "reset invalid anchor position")
		c.session.reanchor(0, c.session.IsPlaying, now)
	}

	c.checkHost(now)

	debounce := c.cfg.Sync.Debounce
	if debounce < 1 {
		debounce = 1
	}
	for _, p := range c.participants {
		if p.SyncStatus != SyncOutOfSync {
			continue
		}
		switch {
		case p.ConnectionStatus != ConnectionConnected:
			c.violation("sync_status", "out_of_sync while not connected")
			c.setSync(p, Disconnected(p.SyncStatus), now)
		case p.OverTolerance < debounce || math.Abs(p.DriftSeconds) <= c.session.SyncTolerance:
			c.violation("sync_status", "out_of_sync without sustained drift")
			healed := SyncSynced
			if p.BufferShort {
				healed = SyncBuffering
			}
			c.setSync(p, SyncOutcome{Status: healed}, now)
		}
	}
}

// checkHost keeps exactly one authoritative host, or none with NoHost set.
func (c *Controller) checkHost(now time.Time) {
	if len(c.participants) == 0 {
		return
	}
	var hosts []*Participant
	for _, p := range c.sorted() {
		if p.Role == RoleHost {
			hosts = append(hosts, p)
		}
	}

	if c.session.NoHost {
		if len(hosts) == 0 {
			return
		}
		c.violation("host", "host role present while flagged no_host")
		c.session.NoHost = false
		c.session.HostParticipantID = hosts[0].ID
	}

	current, ok := c.participants[c.session.HostParticipantID]
	if !ok || current.Role != RoleHost {
		if ok {
			c.violation("host", "host record lost its role")
			current.Role = RoleHost
		} else if len(hosts) > 0 {
			c.violation("host", "host id does not match roster")
			c.session.HostParticipantID = hosts[0].ID
		} else {
			c.violation("host", "session has no host")
			c.handoff(now)
			return
		}
	}
	for _, p := range hosts {
		if p.ID != c.session.HostParticipantID {
			c.violation("host", "demoting extra host")
			p.Role = RoleCoHost
		}
	}
}

func (c *Controller) violation(kind, msg string) {
	metrics.RecordInvariantViolation(kind)
	c.logger.Warn().Str("invariant", kind).Msg(msg)
	c.dirty = true
}
