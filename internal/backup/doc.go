// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package backup runs backups, prunes them, and restores from them.
//
// A routine is backed up either fully (every live record in its namespace)
// or incrementally (every record, tombstones included, changed since the
// routine's last backup). Each backup becomes an artifact on the routine's
// storage and an entry in the catalog.
//
// Architecture:
//
//	┌──────────────┐     ┌─────────────────┐     ┌──────────────┐
//	│   Scheduler  │────▶│     Manager     │────▶│   Storage    │
//	└──────────────┘     └─────────────────┘     └──────────────┘
//	                       │      │      │
//	                       ▼      ▼      ▼
//	              ┌─────────┐ ┌───────┐ ┌───────────┐
//	              │ Cluster │ │Catalog│ │JobTracker │
//	              └─────────┘ └───────┘ └───────────┘
//
// Retention runs after every full backup. It keeps the newest fulls and
// incrementals allowed by the routine's policy, deletes storage before the
// catalog entry, and reports partial failures as *PartialPruneFailure
// without failing the backup.
//
// Restores pick the newest full at or before a target time plus the
// incrementals after it, and replay them so that only the last write of
// each key survives.
//
// Usage:
//
//	m, err := backup.NewManager(backup.Options{...})
//	rec, err := m.RunBackup(ctx, "orders", catalog.KindFull)
//
//	// Restore to an hour ago
//	snap, err := m.Restore(ctx, backup.RestoreRequest{
//	    Routine: "orders",
//	    Kind:    backup.RestoreTimestamp,
//	    Target:  time.Now().Add(-time.Hour),
//	    Policy:  backup.DefaultRestorePolicy(),
//	})
package backup
