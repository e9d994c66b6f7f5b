// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"sort"
	"time"
)

// Roster answers membership questions for the authority check.
type Roster interface {
	Has(participantID string) bool
}

// Authorize applies ev to a copy of s if the host authority rules allow it.
//
// Only the current host may issue commands unless Override is set. An IssuedAt
// more than maxSkew ahead of now is invalid; maxSkew <= 0 disables that bound.
// An event from the issuer of the last accepted event must be stamped strictly
// after it, which also rejects replays. Override events and the first event of
// a new issuer are not held to another clock's timestamps. On success the
// returned session carries the new anchor, play state, LastControlAt,
// LastControlBy and, for transfer_host, the new host.
func Authorize(s Session, ev ControlEvent, roster Roster, now time.Time, maxSkew time.Duration) (Session, error) {
	if !knownAction(ev.Action) {
		return s, reject(RejectInvalid, ev.Action, "unknown action")
	}

	if s.NoHost && !(ev.Override && ev.Action == ActionTransferHost) {
		return s, reject(RejectNoHost, ev.Action, "")
	}
	if !ev.Override && (ev.IssuedBy == "" || ev.IssuedBy != s.HostParticipantID) {
		return s, reject(RejectNotHost, ev.Action, "")
	}
	if ev.IssuedAt.IsZero() {
		return s, reject(RejectInvalid, ev.Action, "missing issuedAt")
	}
	if maxSkew > 0 && ev.IssuedAt.After(now.Add(maxSkew)) {
		return s, reject(RejectInvalid, ev.Action, "issuedAt is ahead of server clock")
	}
	if !ev.Override && ev.IssuedBy == s.LastControlBy && !ev.IssuedAt.After(s.LastControlAt) {
		return s, reject(RejectStale, ev.Action, "")
	}

	current := s.positionAt(now)
	switch ev.Action {
	case ActionPlay:
		s.reanchor(current, true, now)
	case ActionPause:
		s.reanchor(current, false, now)
	case ActionSeek:
		if ev.Value == nil || !finite(*ev.Value) || *ev.Value < 0 {
			return s, reject(RejectInvalid, ev.Action, "seek requires a non-negative value")
		}
		s.reanchor(*ev.Value, s.IsPlaying, now)
	case ActionSkip:
		if ev.Value == nil || !finite(*ev.Value) {
			return s, reject(RejectInvalid, ev.Action, "skip requires a value in seconds")
		}
		s.reanchor(current+*ev.Value, s.IsPlaying, now)
	case ActionTransferHost:
		if ev.Target == "" || roster == nil || !roster.Has(ev.Target) {
			return s, reject(RejectInvalid, ev.Action, "unknown target participant")
		}
		if ev.Target == s.HostParticipantID && !s.NoHost {
			return s, reject(RejectInvalid, ev.Action, "target is already host")
		}
		s.HostParticipantID = ev.Target
		s.NoHost = false
		s.TargetPosition = current
	}

	s.LastControlAt = ev.IssuedAt
	s.LastControlBy = ev.IssuedBy
	return s, nil
}

func knownAction(a Action) bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek, ActionSkip, ActionTransferHost:
		return true
	}
	return false
}

// Successor picks the next host from candidates: the earliest-joined co-host,
// otherwise the earliest-joined member. It returns "" when nobody is eligible.
// Disconnected participants are not eligible.
func Successor(candidates []*Participant, exclude string) string {
	eligible := make([]*Participant, 0, len(candidates))
	for _, p := range candidates {
		if p.ID == exclude || p.ConnectionStatus == ConnectionDisconnected {
			continue
		}
		eligible = append(eligible, p)
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := rank(eligible[i].Role), rank(eligible[j].Role)
		if ri != rj {
			return ri < rj
		}
		if !eligible[i].JoinedAt.Equal(eligible[j].JoinedAt) {
			return eligible[i].JoinedAt.Before(eligible[j].JoinedAt)
		}
		return eligible[i].JoinSeq < eligible[j].JoinSeq
	})
	for _, p := range eligible {
		if p.Role == RoleCoHost || p.Role == RoleMember {
			return p.ID
		}
	}
	return ""
}

func rank(r Role) int {
	switch r {
	case RoleCoHost:
		return 0
	case RoleMember:
		return 1
	default:
		return 2
	}
}
