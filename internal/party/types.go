// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"time"
)

// Role is a participant's standing in the host hierarchy.
type Role string

const (
	RoleHost   Role = "host"
	RoleCoHost Role = "co-host"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleHost, RoleCoHost, RoleMember:
		return true
	}
	return false
}

// ConnectionStatus is the transport-level state of a participant.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "connected"
	ConnectionReconnecting ConnectionStatus = "reconnecting"
	ConnectionDisconnected ConnectionStatus = "disconnected"
)

// SyncStatus is the playback-level state of a participant.
type SyncStatus string

const (
	SyncSynced    SyncStatus = "synced"
	SyncBuffering SyncStatus = "buffering"
	SyncOutOfSync SyncStatus = "out_of_sync"
)

// Quality classifies transport health from heartbeat timing and round-trip.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityOffline   Quality = "offline"
)

// Action is a playback command.
type Action string

const (
	ActionPlay         Action = "play"
	ActionPause        Action = "pause"
	ActionSeek         Action = "seek"
	ActionSkip         Action = "skip"
	ActionTransferHost Action = "transfer_host"
)

// Reasons carried by playback_update for changes not caused by a host command.
const (
	ReasonForceSync   = "force_sync"
	ReasonHostHandoff = "host_handoff"
	ReasonNoHost      = "no_host"
)

// Session is one watch party.
//
// TargetPosition is derived: AnchorPosition plus the wall-clock time elapsed since
// AnchorAt while IsPlaying. Only an accepted control event moves the anchor.
type Session struct {
	ID                string    `json:"id"`
	HostParticipantID string    `json:"hostParticipantId"`
	TargetPosition    float64   `json:"targetPosition"`
	IsPlaying         bool      `json:"isPlaying"`
	LastControlAt     time.Time `json:"lastControlAt"`
	LastControlBy     string    `json:"lastControlBy,omitempty"`
	SyncTolerance     float64   `json:"syncToleranceSeconds"`
	NoHost            bool      `json:"noHost"`
	AnchorPosition    float64   `json:"anchorPosition"`
	AnchorAt          time.Time `json:"anchorAt"`
	CreatedAt         time.Time `json:"createdAt"`
}

// positionAt returns the target position at now.
func (s *Session) positionAt(now time.Time) float64 {
	if !s.IsPlaying || s.AnchorAt.IsZero() {
		return s.AnchorPosition
	}
	elapsed := now.Sub(s.AnchorAt).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return s.AnchorPosition + elapsed
}

// reanchor pins the target at position as of now.
func (s *Session) reanchor(position float64, playing bool, now time.Time) {
	if position < 0 {
		position = 0
	}
	s.AnchorPosition = position
	s.AnchorAt = now
	s.IsPlaying = playing
	s.TargetPosition = position
}

// Participant is one viewer. The exported bookkeeping fields exist so that
// snapshots can rehydrate a controller without losing debounce state.
type Participant struct {
	ID                string           `json:"id"`
	Role              Role             `json:"role"`
	ConnectionStatus  ConnectionStatus `json:"connectionStatus"`
	SyncStatus        SyncStatus       `json:"syncStatus"`
	Quality           Quality          `json:"quality"`
	LocalPosition     float64          `json:"localPosition"`
	EstimatedPosition float64          `json:"estimatedPosition"`
	DriftSeconds      float64          `json:"driftSeconds"`
	LastHeartbeatAt   time.Time        `json:"lastHeartbeatAt"`
	RoundTripMs       float64          `json:"roundTripMs"`
	JoinedAt          time.Time        `json:"joinedAt"`
	JoinSeq           uint64           `json:"joinSeq"`

	OverTolerance        int       `json:"overTolerance"`
	BufferShort          bool      `json:"bufferShort"`
	OutOfSyncSince       time.Time `json:"outOfSyncSince"`
	ForceSyncRecommended bool      `json:"forceSyncRecommended"`
	LastSentAt           time.Time `json:"lastSentAt"`
	RTTSamples           []float64 `json:"rttSamples"`
	DisconnectedAt       time.Time `json:"disconnectedAt"`
}

// clone returns a deep copy safe to hand to readers.
func (p *Participant) clone() Participant {
	c := *p
	if p.RTTSamples != nil {
		c.RTTSamples = append([]float64(nil), p.RTTSamples...)
	}
	return c
}

// Range is a buffered interval of media time in seconds.
type Range struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// HeartbeatReport is the engine-side form of an inbound heartbeat.
//
// A nil LocalPosition or zero SentAt makes the report malformed. A nil
// BufferedRanges means the client did not report its buffer; an empty,
// non-nil slice means nothing is buffered.
type HeartbeatReport struct {
	PartyID        string
	ParticipantID  string
	LocalPosition  *float64
	BufferedRanges []Range
	SentAt         time.Time
	RoundTripMs    *float64
}

// ControlEvent is an intent from a participant. Override is set only by the
// authenticated operator path.
type ControlEvent struct {
	PartyID  string
	Action   Action
	Value    *float64
	Target   string
	IssuedBy string
	IssuedAt time.Time
	Override bool
}

// Snapshot is an immutable copy of a session and its roster.
type Snapshot struct {
	Session      Session       `json:"session"`
	Participants []Participant `json:"participants"`
	JoinSeq      uint64        `json:"joinSeq"`
	TakenAt      time.Time     `json:"takenAt"`
}

// Participant returns the participant with id, if present.
func (s *Snapshot) Participant(id string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Stats aggregates the roster.
type Stats struct {
	Total     int `json:"total"`
	Connected int `json:"connected"`
	Synced    int `json:"synced"`
	Buffering int `json:"buffering"`
	OutOfSync int `json:"outOfSync"`
}
