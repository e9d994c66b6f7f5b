// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package party

import (
	"math"
	"sort"
)

// ClockConfig tunes round-trip smoothing.
type ClockConfig struct {
	// Window is the number of round-trip samples kept per participant.
	Window int
	// MinSamples is the sample count below which latency compensation is skipped.
	MinSamples int
}

// DefaultClockConfig returns a five-sample median with compensation from two samples.
func DefaultClockConfig() ClockConfig {
	return ClockConfig{Window: 5, MinSamples: 2}
}

// pushSample appends rtt to samples, keeping the newest window entries.
func pushSample(samples []float64, rtt float64, window int) []float64 {
	if window <= 0 {
		window = 1
	}
	samples = append(samples, rtt)
	if len(samples) > window {
		samples = append(samples[:0:0], samples[len(samples)-window:]...)
	}
	return samples
}

// Median returns the median of samples, or 0 when there are none.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Estimate converts a reported position into the participant's current position.
//
// Half the median round-trip is added as the one-way latency while the session is
// playing. With fewer than MinSamples samples the report is taken at face value.
// A paused player does not advance in transit, so no compensation applies.
func Estimate(localPosition float64, samples []float64, playing bool, cfg ClockConfig) float64 {
	if !playing || len(samples) < cfg.MinSamples {
		return localPosition
	}
	rtt := Median(samples)
	if rtt <= 0 || math.IsNaN(rtt) || math.IsInf(rtt, 0) {
		return localPosition
	}
	return localPosition + rtt/2/1000
}

// Drift is the signed distance of an estimate from the target; positive means ahead.
func Drift(estimated, target float64) float64 {
	return estimated - target
}
