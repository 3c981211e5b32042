// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package events publishes job and catalog lifecycle events over watermill.
//
// Two topics are used:
//   - backstop.jobs: one JobEvent per job reaching a terminal state
//   - backstop.catalog: one CatalogEvent per appended backup or prune pass
//
// By default events go to an in-process gochannel pub/sub. When a NATS URL
// is configured they are published to core NATS instead. Subscribe works
// with either transport; the websocket relay uses it. Publication is best effort: failures are
// logged and counted, never returned to the job that produced the event.
//
// Usage:
//
//	pub, err := events.NewPublisher(events.Config{NATSURL: cfg.Events.NATSURL})
//	tracker.OnFinish(pub.JobFinished)
//	mgr, err := backup.NewManager(backup.Options{..., Observer: pub})
package events
