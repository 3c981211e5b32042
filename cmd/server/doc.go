// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package main is the entry point for the Backstop server.

Backstop runs named backup routines against embedded clusters, keeps a
durable catalog of full and incremental backups, enforces retention and
restores to any cataloged point in time.

# Application Architecture

	RootSupervisor ("backstop")
	├── DataSupervisor ("data-layer")
	│   └── Badger value log GC (catalog and embedded clusters)
	├── SchedulingSupervisor ("scheduling-layer")
	│   └── Backup scheduler
	└── APISupervisor ("api-layer")
	    ├── Websocket hub
	    ├── Event relay (publisher -> hub)
	    └── HTTP Server

Component initialization order:

 1. Configuration: Koanf v2 with environment variables and config file
 2. Logging: zerolog with JSON/console output modes
 3. Catalog: BadgerDB-backed backup ledger
 4. Clusters: embedded BadgerDB clusters (sources and restore destinations)
 5. Storage: local filesystem or S3-compatible (minio-go) providers
 6. Events: Watermill publisher, in-process or NATS (external or embedded)
 7. Backup manager and scheduler
 8. Supervisor tree and HTTP server (Chi)

# Configuration

	Priority: Environment variables > Config file > Defaults

The config file is read from CONFIG_PATH, then ./config.yaml, then
/etc/backstop/config.yaml. Routines, clusters, storage and policies are
file-only; server, logging, catalog, events, breaker and GC settings can
be overridden from the environment:

	HTTP_PORT=8480
	LOG_LEVEL=info
	LOG_FORMAT=json
	CATALOG_PATH=/data/catalog
	EVENTS_NATS_URL=nats://nats:4222
	EVENTS_EMBEDDED=true
	GC_INTERVAL=10m

# Signal Handling

SIGINT and SIGTERM stop the supervisor tree: the HTTP server drains, the
scheduler stops, then running jobs are cancelled and awaited before the
stores are closed.
*/
package main
