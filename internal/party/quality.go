// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"time"
)

// QualityConfig holds the thresholds used by Classify.
type QualityConfig struct {
	OfflineAfter time.Duration
	PoorAfter    time.Duration
	PoorRTTMs    float64
	GoodRTTMs    float64
}

// DefaultQualityConfig returns the stock thresholds.
func DefaultQualityConfig() QualityConfig {
	return QualityConfig{
		OfflineAfter: 15 * time.Second,
		PoorAfter:    8 * time.Second,
		PoorRTTMs:    500,
		GoodRTTMs:    150,
	}
}

// Classify grades a participant's transport from heartbeat age and round-trip.
// A zero lastHeartbeatAt means no heartbeat was ever received.
func Classify(lastHeartbeatAt time.Time, roundTripMs float64, now time.Time, cfg QualityConfig) Quality {
	if lastHeartbeatAt.IsZero() {
		return QualityOffline
	}
	since := now.Sub(lastHeartbeatAt)
	switch {
	case since > cfg.OfflineAfter:
		return QualityOffline
	case roundTripMs > cfg.PoorRTTMs || since >= cfg.PoorAfter:
		return QualityPoor
	case roundTripMs >= cfg.GoodRTTMs:
		return QualityGood
	default:
		return QualityExcellent
	}
}
