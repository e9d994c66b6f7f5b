// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/partysync/internal/validation"
)

// minOperatorSecretLength is the shortest HS256 key accepted in production.
const minOperatorSecretLength = 32

// Validate checks struct tags first, then the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateQuality(); err != nil {
		return err
	}

	if err := c.validateSession(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateNATS(); err != nil {
		return err
	}

	return c.validateSecurity()
}

// validateQuality enforces the ordering of the quality bands.
func (c *Config) validateQuality() error {
	q := c.Quality
	if q.GoodRTTMs >= q.PoorRTTMs {
		return fmt.Errorf("quality.good_rtt_ms (%v) must be below quality.poor_rtt_ms (%v)", q.GoodRTTMs, q.PoorRTTMs)
	}
	if q.PoorAfter >= q.OfflineAfter {
		return fmt.Errorf("quality.poor_after (%s) must be below quality.offline_after (%s)", q.PoorAfter, q.OfflineAfter)
	}
	if c.Sync.RTTMinSamples > c.Sync.RTTWindow {
		return fmt.Errorf("sync.rtt_min_samples (%d) cannot exceed sync.rtt_window (%d)", c.Sync.RTTMinSamples, c.Sync.RTTWindow)
	}
	return nil
}

// validateSession keeps the disconnect timer behind the offline threshold so
// that a participant is reported offline before it is disconnected.
func (c *Config) validateSession() error {
	if c.Session.DisconnectTimeout < c.Quality.OfflineAfter {
		return fmt.Errorf("session.disconnect_timeout (%s) must be at least quality.offline_after (%s)",
			c.Session.DisconnectTimeout, c.Quality.OfflineAfter)
	}
	if c.Session.TickInterval > c.Quality.PoorAfter {
		return fmt.Errorf("session.tick_interval (%s) must not exceed quality.poor_after (%s)",
			c.Session.TickInterval, c.Quality.PoorAfter)
	}
	return nil
}

func (c *Config) validateStore() error {
	if !c.Store.Enabled || c.Store.InMemory {
		return nil
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("STORE_PATH is required when the snapshot store is enabled on disk")
	}
	return nil
}

func (c *Config) validateNATS() error {
	if !c.NATS.Enabled {
		return nil
	}
	u, err := url.Parse(c.NATS.URL)
	if err != nil {
		return fmt.Errorf("NATS_URL is invalid: %w", err)
	}
	if u.Scheme != "nats" && u.Scheme != "tls" {
		return fmt.Errorf("NATS_URL must use nats:// or tls://, got %q", c.NATS.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("NATS_URL must include a host")
	}
	if strings.ContainsAny(c.NATS.SubjectPrefix, "*> ") {
		return fmt.Errorf("NATS_SUBJECT_PREFIX must not contain wildcards or spaces")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Server.Environment != "production" {
		return nil
	}
	if c.Security.OperatorSecret == "" {
		return fmt.Errorf("OPERATOR_SECRET is required in production")
	}
	if len(c.Security.OperatorSecret) < minOperatorSecretLength {
		return fmt.Errorf("OPERATOR_SECRET must be at least %d characters", minOperatorSecretLength)
	}
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return fmt.Errorf("CORS_ORIGINS must not be '*' in production")
		}
	}
	return nil
}
