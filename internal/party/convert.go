// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"math"

	"github.com/tomtom215/partysync/internal/models"
)

// ReportFromMessage converts a wire heartbeat. Pairs that are not [start, end]
// become NaN ranges so the engine rejects the report as malformed.
func ReportFromMessage(m *models.HeartbeatMessage) *HeartbeatReport {
	r := &HeartbeatReport{
		PartyID:       m.PartyID,
		ParticipantID: m.ParticipantID,
		LocalPosition: m.LocalPosition,
		SentAt:        m.SentAt,
		RoundTripMs:   m.RoundTripMs,
	}
	if m.BufferedRanges != nil {
		r.BufferedRanges = make([]Range, 0, len(m.BufferedRanges))
		for _, pair := range m.BufferedRanges {
			if len(pair) != 2 {
				r.BufferedRanges = append(r.BufferedRanges, Range{Start: math.NaN(), End: math.NaN()})
				continue
			}
			r.BufferedRanges = append(r.BufferedRanges, Range{Start: pair[0], End: pair[1]})
		}
	}
	return r
}

// EventFromMessage converts a wire control message. Override is never set here.
func EventFromMessage(m *models.ControlMessage) *ControlEvent {
	return &ControlEvent{
		PartyID:  m.PartyID,
		Action:   Action(m.Action),
		Value:    m.Value,
		Target:   m.Target,
		IssuedBy: m.IssuedBy,
		IssuedAt: m.IssuedAt,
	}
}

// StatusFromParticipant converts a roster entry to its wire row.
func StatusFromParticipant(p *Participant) models.ParticipantStatus {
	return models.ParticipantStatus{
		ID:               p.ID,
		Role:             string(p.Role),
		ConnectionStatus: string(p.ConnectionStatus),
		SyncStatus:       string(p.SyncStatus),
		Quality:          string(p.Quality),
		DriftSeconds:     p.DriftSeconds,
		RoundTripMs:      p.RoundTripMs,
	}
}

// StateFromSnapshot builds the REST view of a session.
func StateFromSnapshot(s *Snapshot) models.PartyState {
	st := models.PartyState{
		PartyID:           s.Session.ID,
		HostParticipantID: s.Session.HostParticipantID,
		NoHost:            s.Session.NoHost,
		TargetPosition:    s.Session.TargetPosition,
		IsPlaying:         s.Session.IsPlaying,
		SyncTolerance:     s.Session.SyncTolerance,
		LastControlAt:     s.Session.LastControlAt,
		CreatedAt:         s.Session.CreatedAt,
		Participants:      make([]models.ParticipantStatus, 0, len(s.Participants)),
		TotalCount:        len(s.Participants),
	}
	for i := range s.Participants {
		p := &s.Participants[i]
		if p.SyncStatus == SyncSynced {
			st.SyncedCount++
		}
		if p.ConnectionStatus == ConnectionConnected {
			st.ConnectedCount++
		}
		st.Participants = append(st.Participants, StatusFromParticipant(p))
	}
	return st
}
