// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

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
	"/etc/backstop/config.yaml",
	"/etc/backstop/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8480,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,

			RateLimitRequests: 30,
			RateLimitWindow:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Catalog: CatalogConfig{
			Path:       "/data/catalog",
			SyncWrites: true,
		},
		Events: EventsConfig{
			NATSURL:       "", // in-process unless set
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			EmbeddedHost:  "127.0.0.1",
			EmbeddedPort:  4222,
		},
		Breaker: BreakerConfig{
			MinRequests:  10,
			FailureRatio: 0.6,
			OpenTimeout:  30 * time.Second,
		},
		GC: GCConfig{
			Interval:     10 * time.Minute,
			DiscardRatio: 0.5,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf with layered sources:
//  1. Defaults from defaultConfig()
//  2. Config file (CONFIG_PATH, then DefaultConfigPaths), optional
//  3. Environment variables (highest priority)
//
// The result is validated before it is returned.
func LoadWithKoanf() (*Config, error) {
	return load(findConfigFile())
}

// LoadFile is LoadWithKoanf with an explicit config file.
func LoadFile(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return load(path)
}

func load(configPath string) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// HTTP_PORT -> server.port, CATALOG_PATH -> catalog.path
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
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

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
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

// envMappings maps environment variables to koanf paths. Routines and the
// named collaborators are only configurable from the file.
var envMappings = map[string]string{
	"http_host":                "server.host",
	"http_port":                "server.port",
	"http_read_timeout":        "server.read_timeout",
	"http_write_timeout":       "server.write_timeout",
	"http_idle_timeout":        "server.idle_timeout",
	"http_shutdown_timeout":    "server.shutdown_timeout",
	"http_rate_limit":          "server.rate_limit_requests",
	"http_rate_limit_window":   "server.rate_limit_window",
	"http_rate_limit_disabled": "server.rate_limit_disabled",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	"catalog_path":        "catalog.path",
	"catalog_in_memory":   "catalog.in_memory",
	"catalog_sync_writes": "catalog.sync_writes",

	"events_nats_url":       "events.nats_url",
	"events_max_reconnects": "events.max_reconnects",
	"events_reconnect_wait": "events.reconnect_wait",
	"events_embedded":       "events.embedded",
	"events_embedded_port":  "events.embedded_port",

	"breaker_min_requests":  "breaker.min_requests",
	"breaker_failure_ratio": "breaker.failure_ratio",
	"breaker_open_timeout":  "breaker.open_timeout",

	"gc_interval":      "gc.interval",
	"gc_discard_ratio": "gc.discard_ratio",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - HTTP_PORT -> server.port
//   - LOG_LEVEL -> logging.level
//   - EVENTS_NATS_URL -> events.nats_url
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// For unmapped keys, return empty string to skip them
	// This prevents random environment variables from polluting config
	return ""
}
