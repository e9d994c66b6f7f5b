// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"io"
	"testing"
	"time"

	"github.com/tomtom215/partysync/internal/logging"
	"github.com/tomtom215/partysync/internal/models"
)

func init() {
	logging.Init(logging.Config{Level: "disabled", Output: io.Discard})
}

var t0 = time.Date(2026, 3, 14, 20, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

func f64(v float64) *float64 { return &v }

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	return NewController("party-1", cfg, t0)
}

func mustJoin(t *testing.T, c *Controller, id string, role Role, now time.Time) Participant {
	t.Helper()
	p, err := c.OnJoin(id, role, now)
	if err != nil {
		t.Fatalf("OnJoin(%s) error = %v", id, err)
	}
	return p
}

func heartbeat(id string, pos, rtt float64, sent time.Time) *HeartbeatReport {
	return &HeartbeatReport{
		PartyID:       "party-1",
		ParticipantID: id,
		LocalPosition: f64(pos),
		SentAt:        sent,
		RoundTripMs:   f64(rtt),
	}
}

func control(action Action, value *float64, by string, issued time.Time) *ControlEvent {
	return &ControlEvent{
		PartyID:  "party-1",
		Action:   action,
		Value:    value,
		IssuedBy: by,
		IssuedAt: issued,
	}
}

func participant(t *testing.T, c *Controller, id string) Participant {
	t.Helper()
	p, ok := c.Snapshot(t0).Participant(id)
	if !ok {
		t.Fatalf("participant %s not found", id)
	}
	return p
}

// outboxOf returns drained messages of the given type.
func outboxOf(c *Controller, msgType string) []Outbound {
	var out []Outbound
	for _, m := range c.Drain() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func playbackUpdates(msgs []Outbound) []models.PlaybackUpdate {
	var out []models.PlaybackUpdate
	for _, m := range msgs {
		if pu, ok := m.Payload.(models.PlaybackUpdate); ok {
			out = append(out, pu)
		}
	}
	return out
}
