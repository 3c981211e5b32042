// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package catalog is the append-only ledger of completed backups.
//
// Each routine owns an independent, strictly time-ordered list of FULL and
// INCREMENTAL records. Appends are serialized per routine; queries read an
// immutable snapshot through an atomic pointer, so restores and API polls
// never block a running backup.
//
// Durability is optional: pass a BadgerStore to New/Open to persist records
// across restarts, or nil to keep the catalog in memory.
package catalog
