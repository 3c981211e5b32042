// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package services provides suture.Service wrappers for Backstop components.

Each wrapper translates a component's lifecycle into suture's
context-aware Serve pattern:

  - HTTPServerService: ListenAndServe/Shutdown of the API server
  - SchedulerService: Start/Stop of the interval backup scheduler
  - BadgerGCService: a ticker driving value log GC of badger stores

Every wrapper implements fmt.Stringer so supervisor events name it.
*/
package services
