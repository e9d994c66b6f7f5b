// Partysync - Watch Party Playback Reconciliation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/partysync

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/partysync/config.yaml",
	"/etc/partysync/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8090,
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Sync: SyncConfig{
			Tolerance:         2.0,
			OutOfSyncDebounce: 2,
			BufferLookahead:   time.Second,
			ForceSyncAfter:    10 * time.Second,
			MaxClockSkew:      5 * time.Second,
			RTTWindow:         5,
			RTTMinSamples:     2,
		},
		Quality: QualityConfig{
			OfflineAfter: 15 * time.Second,
			PoorAfter:    8 * time.Second,
			PoorRTTMs:    500,
			GoodRTTMs:    150,
		},
		Session: SessionConfig{
			TickInterval:       time.Second,
			CheckpointInterval: 10 * time.Second,
			QueueSize:          256,
			DisconnectTimeout:  60 * time.Second,
			RemovalGrace:       60 * time.Second,
		},
		Store: StoreConfig{
			Enabled:    true,
			Path:       "/data/partysync",
			InMemory:   false,
			GCInterval: 10 * time.Minute,
		},
		NATS: NATSConfig{
			Enabled:        false,
			URL:            "nats://127.0.0.1:4222",
			EmbeddedServer: true,
			StoreDir:       "",
			InboundSubject: "partysync.inbound",
			SubjectPrefix:  "partysync.party",
			QueueGroup:     "partysync",
			CircuitBreaker: CircuitBreakerConfig{
				MaxRequests:      3,
				Interval:         time.Minute,
				Timeout:          30 * time.Second,
				FailureThreshold: 5,
			},
		},
		Security: SecurityConfig{
			OperatorSecret:      "",
			TokenIssuer:         "partysync",
			CORSOrigins:         []string{"*"},
			RateLimitReqs:       300,
			RateLimitWindow:     time.Minute,
			RateLimitDisabled:   false,
			WSMessagesPerSecond: 20,
			WSBurst:             40,
			WSPingInterval:      15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1000,
			Retention:   90 * 24 * time.Hour,
			MemoryLimit: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// The result is validated before it is returned.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// SYNC_TOLERANCE -> sync.tolerance, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns the first existing config file, or "" if none.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) == 0 {
			continue
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"http_host":             "server.host",
	"http_port":             "server.port",
	"http_timeout":          "server.timeout",
	"http_shutdown_timeout": "server.shutdown_timeout",
	"environment":           "server.environment",

	// Sync
	"sync_tolerance":            "sync.tolerance",
	"sync_out_of_sync_debounce": "sync.out_of_sync_debounce",
	"sync_buffer_lookahead":     "sync.buffer_lookahead",
	"sync_force_sync_after":     "sync.force_sync_after",
	"sync_max_clock_skew":       "sync.max_clock_skew",
	"sync_rtt_window":           "sync.rtt_window",
	"sync_rtt_min_samples":      "sync.rtt_min_samples",

	// Quality
	"quality_offline_after": "quality.offline_after",
	"quality_poor_after":    "quality.poor_after",
	"quality_poor_rtt_ms":   "quality.poor_rtt_ms",
	"quality_good_rtt_ms":   "quality.good_rtt_ms",

	// Session
	"session_tick_interval":       "session.tick_interval",
	"session_checkpoint_interval": "session.checkpoint_interval",
	"session_queue_size":          "session.queue_size",
	"session_disconnect_timeout":  "session.disconnect_timeout",
	"session_removal_grace":       "session.removal_grace",

	// Store
	"store_enabled":     "store.enabled",
	"store_path":        "store.path",
	"store_in_memory":   "store.in_memory",
	"store_gc_interval": "store.gc_interval",

	// NATS
	"nats_enabled":              "nats.enabled",
	"nats_url":                  "nats.url",
	"nats_embedded":             "nats.embedded_server",
	"nats_store_dir":            "nats.store_dir",
	"nats_inbound_subject":      "nats.inbound_subject",
	"nats_subject_prefix":       "nats.subject_prefix",
	"nats_queue_group":          "nats.queue_group",
	"nats_cb_max_requests":      "nats.circuit_breaker.max_requests",
	"nats_cb_interval":          "nats.circuit_breaker.interval",
	"nats_cb_timeout":           "nats.circuit_breaker.timeout",
	"nats_cb_failure_threshold": "nats.circuit_breaker.failure_threshold",

	// Security
	"operator_secret":        "security.operator_secret",
	"token_issuer":           "security.token_issuer",
	"cors_origins":           "security.cors_origins",
	"rate_limit_requests":    "security.rate_limit_reqs",
	"rate_limit_window":      "security.rate_limit_window",
	"disable_rate_limit":     "security.rate_limit_disabled",
	"ws_messages_per_second": "security.ws_messages_per_second",
	"ws_burst":               "security.ws_burst",
	"ws_ping_interval":       "security.ws_ping_interval",

	// Audit
	"audit_enabled":      "audit.enabled",
	"audit_buffer_size":  "audit.buffer_size",
	"audit_retention":    "audit.retention",
	"audit_memory_limit": "audit.memory_limit",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
// Unmapped variables return "" and are skipped so that unrelated environment
// does not leak into the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// WatchConfigFile invokes callback whenever the file at path changes.
// The caller is responsible for synchronizing access to the reloaded config.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(event interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
