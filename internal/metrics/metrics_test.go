// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordHeartbeat(t *testing.T) {
	before := testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("applied"))
	RecordHeartbeat("applied")
	RecordHeartbeat("applied")
	after := testutil.ToFloat64(HeartbeatsTotal.WithLabelValues("applied"))
	if after-before != 2 {
		t.Errorf("expected 2 increments, got %v", after-before)
	}
}

func TestRecordControlEvent(t *testing.T) {
	tests := []struct {
		action string
		result string
	}{
		{"play", "accepted"},
		{"seek", "stale"},
		{"pause", "not_host"},
		{"skip", "invalid"},
		{"transfer_host", "no_host"},
	}

	for _, tt := range tests {
		t.Run(tt.action+"_"+tt.result, func(t *testing.T) {
			before := testutil.ToFloat64(ControlEventsTotal.WithLabelValues(tt.action, tt.result))
			RecordControlEvent(tt.action, tt.result)
			after := testutil.ToFloat64(ControlEventsTotal.WithLabelValues(tt.action, tt.result))
			if after-before != 1 {
				t.Errorf("expected counter to increase by 1, got %v", after-before)
			}
		})
	}
}

func TestRecordSyncTransition_SameStateIgnored(t *testing.T) {
	before := testutil.ToFloat64(SyncTransitions.WithLabelValues("synced", "synced"))
	RecordSyncTransition("synced", "synced")
	if got := testutil.ToFloat64(SyncTransitions.WithLabelValues("synced", "synced")); got != before {
		t.Errorf("self transition should not be counted, got %v want %v", got, before)
	}

	before = testutil.ToFloat64(SyncTransitions.WithLabelValues("synced", "out_of_sync"))
	RecordSyncTransition("synced", "out_of_sync")
	if got := testutil.ToFloat64(SyncTransitions.WithLabelValues("synced", "out_of_sync")); got != before+1 {
		t.Errorf("transition not counted: got %v want %v", got, before+1)
	}
}

func TestRecordSnapshotWrite(t *testing.T) {
	okBefore := testutil.ToFloat64(SnapshotWrites.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(SnapshotWrites.WithLabelValues("error"))

	RecordSnapshotWrite(nil)
	RecordSnapshotWrite(errors.New("disk full"))

	if got := testutil.ToFloat64(SnapshotWrites.WithLabelValues("success")); got != okBefore+1 {
		t.Errorf("success count = %v, want %v", got, okBefore+1)
	}
	if got := testutil.ToFloat64(SnapshotWrites.WithLabelValues("error")); got != errBefore+1 {
		t.Errorf("error count = %v, want %v", got, errBefore+1)
	}
}

func TestRecordNATSPublish(t *testing.T) {
	pubBefore := testutil.ToFloat64(NATSMessagesPublished)
	errBefore := testutil.ToFloat64(NATSPublishErrors)

	RecordNATSPublish(nil)
	RecordNATSPublish(errors.New("circuit open"))

	if got := testutil.ToFloat64(NATSMessagesPublished); got != pubBefore+1 {
		t.Errorf("published = %v, want %v", got, pubBefore+1)
	}
	if got := testutil.ToFloat64(NATSPublishErrors); got != errBefore+1 {
		t.Errorf("errors = %v, want %v", got, errBefore+1)
	}
}

func TestSessionGauges(t *testing.T) {
	base := testutil.ToFloat64(SessionsActive)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	if got := testutil.ToFloat64(SessionsActive); got != base+1 {
		t.Errorf("sessions gauge = %v, want %v", got, base+1)
	}
	SessionClosed()

	pBase := testutil.ToFloat64(ParticipantsActive)
	AddParticipants(3)
	AddParticipants(-1)
	if got := testutil.ToFloat64(ParticipantsActive); got != pBase+2 {
		t.Errorf("participants gauge = %v, want %v", got, pBase+2)
	}
	AddParticipants(-2)
}

func TestTrackActiveRequest(t *testing.T) {
	base := testutil.ToFloat64(APIActiveRequests)
	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != base+1 {
		t.Errorf("active = %v, want %v", got, base+1)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != base {
		t.Errorf("active = %v, want %v", got, base)
	}
}

func TestSetCircuitBreakerState(t *testing.T) {
	SetCircuitBreakerState("nats-publisher", 2)
	if got := testutil.ToFloat64(CircuitBreakerState.WithLabelValues("nats-publisher")); got != 2 {
		t.Errorf("state = %v, want 2", got)
	}
	SetCircuitBreakerState("nats-publisher", 0)
}

// TestConcurrentRecording exercises the helpers from many goroutines.
func TestConcurrentRecording(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				RecordHeartbeat("applied")
				ObserveDrift(-1.5)
				RecordTick(50 * time.Microsecond)
				RecordAPIRequest("GET", "/api/v1/parties", "200", time.Millisecond)
			}
		}()
	}
	wg.Wait()
}
