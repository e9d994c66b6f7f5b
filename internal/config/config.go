// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package config

import (
	"fmt"
	"time"

	"github.com/tomtom215/partysync/internal/party"
)

// Config holds all application configuration loaded from defaults, an
// optional YAML file and environment variables.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in defaults for every setting
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any mapped setting
//
// Configuration Categories:
//
//  1. Engine:
//     - Sync: drift tolerance, debounce, buffer lookahead, RTT window
//     - Quality: connection quality thresholds
//     - Session: loop tick, checkpointing, queue size, disconnect timers
//
//  2. Infrastructure:
//     - Server: HTTP listener
//     - Store: BadgerDB snapshot store
//     - NATS: optional event bus
//
//  3. Security & Observability:
//     - Security: operator tokens, CORS, rate limits
//     - Audit: operator action trail
//     - Logging: level and format
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Sync     SyncConfig     `koanf:"sync"`
	Quality  QualityConfig  `koanf:"quality"`
	Session  SessionConfig  `koanf:"session"`
	Store    StoreConfig    `koanf:"store"`
	NATS     NATSConfig     `koanf:"nats"`
	Security SecurityConfig `koanf:"security"`
	Audit    AuditConfig    `koanf:"audit"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`

	// Environment is "development" or "production". Production refuses to
	// start without an operator secret.
	Environment string `koanf:"environment" validate:"oneof=development production"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SyncConfig tunes drift estimation and the sync state machine.
type SyncConfig struct {
	// Tolerance is the drift, in seconds, a participant may carry and stay synced.
	Tolerance float64 `koanf:"tolerance" validate:"gt=0,finite"`

	// OutOfSyncDebounce is the number of consecutive over-tolerance heartbeats
	// required before a participant is marked out_of_sync.
	OutOfSyncDebounce int `koanf:"out_of_sync_debounce" validate:"min=1,max=20"`

	// BufferLookahead is how far past the target a buffered range must extend.
	BufferLookahead time.Duration `koanf:"buffer_lookahead" validate:"gte=0"`

	// ForceSyncAfter is how long a participant stays out_of_sync before a
	// force-sync recommendation is emitted.
	ForceSyncAfter time.Duration `koanf:"force_sync_after" validate:"gt=0"`

	// MaxClockSkew bounds how far a control event's issuedAt may run ahead of
	// the server clock. Zero disables the check.
	MaxClockSkew time.Duration `koanf:"max_clock_skew" validate:"gte=0"`

	RTTWindow     int `koanf:"rtt_window" validate:"min=1,max=64"`
	RTTMinSamples int `koanf:"rtt_min_samples" validate:"min=1"`
}

// QualityConfig holds the connection quality thresholds.
type QualityConfig struct {
	OfflineAfter time.Duration `koanf:"offline_after" validate:"gt=0"`
	PoorAfter    time.Duration `koanf:"poor_after" validate:"gt=0"`
	PoorRTTMs    float64       `koanf:"poor_rtt_ms" validate:"gt=0,finite"`
	GoodRTTMs    float64       `koanf:"good_rtt_ms" validate:"gt=0,finite"`
}

// SessionConfig controls session loops and participant lifetimes.
type SessionConfig struct {
	TickInterval       time.Duration `koanf:"tick_interval" validate:"gt=0"`
	CheckpointInterval time.Duration `koanf:"checkpoint_interval" validate:"gte=0"`
	QueueSize          int           `koanf:"queue_size" validate:"min=1,max=65536"`

	// DisconnectTimeout is how long without a heartbeat before a participant
	// is marked disconnected.
	DisconnectTimeout time.Duration `koanf:"disconnect_timeout" validate:"gt=0"`

	// RemovalGrace is how long a disconnected participant is kept before removal.
	RemovalGrace time.Duration `koanf:"removal_grace" validate:"gte=0"`
}

// StoreConfig holds BadgerDB snapshot store configuration.
type StoreConfig struct {
	Enabled bool `koanf:"enabled"`

	// Path is the BadgerDB directory. Ignored when InMemory is set.
	Path     string `koanf:"path"`
	InMemory bool   `koanf:"in_memory"`

	// GCInterval controls how often value log garbage collection runs.
	GCInterval time.Duration `koanf:"gc_interval" validate:"gte=0"`
}

// NATSConfig holds event bus configuration.
type NATSConfig struct {
	Enabled bool `koanf:"enabled"`

	// URL is the NATS server connection URL.
	URL string `koanf:"url"`

	// EmbeddedServer starts an in-process NATS server bound to URL's port.
	EmbeddedServer bool   `koanf:"embedded_server"`
	StoreDir       string `koanf:"store_dir"`

	// InboundSubject carries envelopes from non-WebSocket clients.
	InboundSubject string `koanf:"inbound_subject" validate:"required"`

	// SubjectPrefix prefixes outbound subjects: <prefix>.<partyID>.<type>.
	SubjectPrefix string `koanf:"subject_prefix" validate:"required"`

	QueueGroup string `koanf:"queue_group"`

	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig holds publisher circuit breaker settings.
type CircuitBreakerConfig struct {
	MaxRequests      uint32        `koanf:"max_requests" validate:"min=1"`
	Interval         time.Duration `koanf:"interval" validate:"gte=0"`
	Timeout          time.Duration `koanf:"timeout" validate:"gt=0"`
	FailureThreshold uint32        `koanf:"failure_threshold" validate:"min=1"`
}

// SecurityConfig holds authentication and rate limiting settings.
type SecurityConfig struct {
	// OperatorSecret is the HS256 key for operator and admin bearer tokens.
	// Operator endpoints are open when empty (development only).
	OperatorSecret string `koanf:"operator_secret"`
	TokenIssuer    string `koanf:"token_issuer"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_reqs" validate:"min=1"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gt=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// WSMessagesPerSecond and WSBurst bound inbound WebSocket traffic per connection.
	WSMessagesPerSecond float64 `koanf:"ws_messages_per_second" validate:"gt=0,finite"`
	WSBurst             int     `koanf:"ws_burst" validate:"min=1"`
	// WSPingInterval is how often the gateway pings each connection and
	// measures its round trip. Values of a minute or more fall back to 54s.
	WSPingInterval time.Duration `koanf:"ws_ping_interval" validate:"gte=0"`
}

// AuditConfig controls the operator action trail. Events are kept in the
// snapshot store when it is enabled, otherwise in memory.
type AuditConfig struct {
	Enabled    bool          `koanf:"enabled"`
	BufferSize int           `koanf:"buffer_size" validate:"min=1,max=100000"`
	Retention  time.Duration `koanf:"retention" validate:"gte=0"`
	// MemoryLimit bounds the in-memory trail used without a snapshot store.
	MemoryLimit int `koanf:"memory_limit" validate:"min=1"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic off disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// PartyConfig converts the engine sections to the reconciliation controller's config.
func (c *Config) PartyConfig() party.Config {
	return party.Config{
		Clock: party.ClockConfig{
			Window:     c.Sync.RTTWindow,
			MinSamples: c.Sync.RTTMinSamples,
		},
		Quality: party.QualityConfig{
			OfflineAfter: c.Quality.OfflineAfter,
			PoorAfter:    c.Quality.PoorAfter,
			PoorRTTMs:    c.Quality.PoorRTTMs,
			GoodRTTMs:    c.Quality.GoodRTTMs,
		},
		Sync: party.SyncConfig{
			Tolerance:      c.Sync.Tolerance,
			Debounce:       c.Sync.OutOfSyncDebounce,
			Lookahead:      c.Sync.BufferLookahead,
			ForceSyncAfter: c.Sync.ForceSyncAfter,
			MaxClockSkew:   c.Sync.MaxClockSkew,
		},
		DisconnectTimeout: c.Session.DisconnectTimeout,
		RemovalGrace:      c.Session.RemovalGrace,
	}
}

// LoopConfig converts the session section to the session loop's config.
func (c *Config) LoopConfig() party.LoopConfig {
	checkpoint := c.Session.CheckpointInterval
	if !c.Store.Enabled {
		checkpoint = 0
	}
	return party.LoopConfig{
		TickInterval:       c.Session.TickInterval,
		CheckpointInterval: checkpoint,
		QueueSize:          c.Session.QueueSize,
	}
}
