// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"fmt"
	"math"
	"time"
)

// SyncConfig tunes the per-participant sync state machine.
type SyncConfig struct {
	// Tolerance is the default drift, in seconds, a participant may carry and stay synced.
	Tolerance float64
	// Debounce is the number of consecutive over-tolerance heartbeats before out_of_sync.
	Debounce int
	// Lookahead is how far past the target a buffered range must reach.
	Lookahead time.Duration
	// ForceSyncAfter is how long a participant stays out_of_sync before a
	// force-sync recommendation is emitted.
	ForceSyncAfter time.Duration
	// MaxClockSkew bounds how far a control event's issuedAt may run ahead of
	// the server clock. Zero disables the bound.
	MaxClockSkew time.Duration
}

// DefaultSyncConfig returns a 2s tolerance with a two-heartbeat debounce.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Tolerance:      2.0,
		Debounce:       2,
		Lookahead:      time.Second,
		ForceSyncAfter: 10 * time.Second,
		MaxClockSkew:   5 * time.Second,
	}
}

// SyncInput is everything the state machine looks at for one evaluation.
type SyncInput struct {
	Current   SyncStatus
	OverCount int
	Drift     float64
	Tolerance float64
	Connected bool
	Ranges    []Range
	Target    float64
}

// SyncOutcome is the next state and debounce counter.
type SyncOutcome struct {
	Status    SyncStatus
	OverCount int
}

// NextSyncStatus evaluates one heartbeat's worth of drift and buffer data.
//
// out_of_sync requires a connected participant whose drift exceeded the
// tolerance on at least Debounce consecutive evaluations. It takes precedence
// over buffering. A single noisy sample leaves the previous state alone.
func NextSyncStatus(in SyncInput, cfg SyncConfig) SyncOutcome {
	if !in.Connected {
		return Disconnected(in.Current)
	}

	debounce := cfg.Debounce
	if debounce < 1 {
		debounce = 1
	}

	over := math.Abs(in.Drift) > in.Tolerance
	count := 0
	if over {
		count = in.OverCount + 1
	}

	switch {
	case over && count >= debounce:
		return SyncOutcome{Status: SyncOutOfSync, OverCount: count}
	case !Covers(in.Ranges, in.Target, cfg.Lookahead):
		return SyncOutcome{Status: SyncBuffering, OverCount: count}
	case over && in.Current != SyncOutOfSync:
		return SyncOutcome{Status: in.Current, OverCount: count}
	default:
		return SyncOutcome{Status: SyncSynced, OverCount: count}
	}
}

// Disconnected returns the state of a participant that is no longer connected.
// It can no longer be out_of_sync, and its debounce counter restarts.
func Disconnected(current SyncStatus) SyncOutcome {
	if current == SyncOutOfSync {
		return SyncOutcome{Status: SyncBuffering}
	}
	return SyncOutcome{Status: current}
}

// Covers reports whether ranges hold target through target+lookahead.
// A nil slice means the client did not report its buffer and counts as covered.
func Covers(ranges []Range, target float64, lookahead time.Duration) bool {
	if ranges == nil {
		return true
	}
	const eps = 1e-9
	end := target + lookahead.Seconds()
	for _, r := range ranges {
		if r.Start <= target+eps && r.End+eps >= end {
			return true
		}
	}
	return false
}

// ValidateReport checks a heartbeat for missing or nonsensical fields.
func ValidateReport(r *HeartbeatReport) error {
	if r == nil {
		return fmt.Errorf("%w: empty report", ErrMalformedReport)
	}
	if r.ParticipantID == "" {
		return fmt.Errorf("%w: missing participantId", ErrMalformedReport)
	}
	if r.LocalPosition == nil {
		return fmt.Errorf("%w: missing localPosition", ErrMalformedReport)
	}
	if !finite(*r.LocalPosition) || *r.LocalPosition < 0 {
		return fmt.Errorf("%w: localPosition %v out of range", ErrMalformedReport, *r.LocalPosition)
	}
	if r.SentAt.IsZero() {
		return fmt.Errorf("%w: missing sentAt", ErrMalformedReport)
	}
	if r.RoundTripMs != nil && (!finite(*r.RoundTripMs) || *r.RoundTripMs < 0) {
		return fmt.Errorf("%w: roundTripMs %v out of range", ErrMalformedReport, *r.RoundTripMs)
	}
	for i, rg := range r.BufferedRanges {
		if !finite(rg.Start) || !finite(rg.End) || rg.Start < 0 || rg.End < rg.Start {
			return fmt.Errorf("%w: bufferedRanges[%d] = [%v, %v]", ErrMalformedReport, i, rg.Start, rg.End)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
