// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package config provides centralized configuration management for Backstop.

# Configuration Sources

Configuration is layered with koanf, later layers winning:
  - Defaults (defaultConfig)
  - YAML file: CONFIG_PATH, else config.yaml / config.yml in the working
    directory, else /etc/backstop/config.yaml
  - Environment variables (explicit mapping table, see below)

# Configuration Structure

  - server: HTTP API listener and timeouts
  - logging: zerolog level, format, caller
  - catalog: durable catalog store (badger path or in-memory)
  - events: lifecycle event transport (NATS URL, empty for in-process)
  - breaker: destination circuit breaker tuning
  - gc: badger value log GC interval and discard ratio
  - clusters: named embedded clusters (path or in_memory)
  - storage: named storage providers (type local or s3)
  - policies / restore_policies: named backup and restore policies
  - routines: backup routines keyed by name

Routines, policies and the named collaborators come only from the file.

# Environment Variables

Server:
  - HTTP_HOST, HTTP_PORT (default: 0.0.0.0:8480)
  - HTTP_READ_TIMEOUT, HTTP_WRITE_TIMEOUT, HTTP_IDLE_TIMEOUT, HTTP_SHUTDOWN_TIMEOUT

Logging:
  - LOG_LEVEL (default: info), LOG_FORMAT (default: json), LOG_CALLER

Catalog:
  - CATALOG_PATH (default: /data/catalog), CATALOG_IN_MEMORY, CATALOG_SYNC_WRITES

Events:
  - EVENTS_NATS_URL, EVENTS_MAX_RECONNECTS, EVENTS_RECONNECT_WAIT

Breaker and GC:
  - BREAKER_MIN_REQUESTS, BREAKER_FAILURE_RATIO, BREAKER_OPEN_TIMEOUT
  - GC_INTERVAL, GC_DISCARD_RATIO

# Validation

Field constraints are validator/v10 struct tags (see internal/validation).
Cross-section references (a routine's cluster, storage and policy) are
checked afterwards and all failures are reported together.

# Usage Example

	cfg, err := config.LoadWithKoanf()
	if err != nil {
	    log.Fatal(err)
	}
	routines, err := cfg.BackupRoutines()
*/
package config
