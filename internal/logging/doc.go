// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package logging provides the zerolog-based structured logger shared by
// every Backstop component.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("routine", "orders").Msg("Backup started")
//
// Job code attaches its identity once and logs through the context:
//
//	ctx = logging.ContextWithJob(ctx, logging.JobFields{Routine: "orders", JobID: id, Kind: "restore_timestamp"})
//	logging.Ctx(ctx).Warn().Err(err).Msg("Batch write retry")
//
// # Adapters
//
// NewSlogLogger bridges slog consumers (the suture supervisor event hook) and
// NewWatermillAdapter bridges watermill publishers, so all output shares one
// format and level.
//
// # Configuration
//
// Environment variables (read through internal/config):
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
package logging
