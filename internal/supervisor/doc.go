// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package supervisor provides process supervision for Backstop using suture v4.

The tree organizes long-running services into layers for failure isolation:

	RootSupervisor ("backstop")
	├── DataSupervisor ("data-layer")
	│   └── BadgerGCService
	├── SchedulingSupervisor ("scheduling-layer")
	│   └── SchedulerService
	└── APISupervisor ("api-layer")
	    └── HTTPServerService

Crashed services are restarted with suture's failure decay and backoff.
Supervisor events are logged through sutureslog onto the application's
zerolog-backed slog handler.

Backup and restore jobs are not supervised services. They run under the
backup manager, which cancels and drains them after the tree stops.

# Usage

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
	    return err
	}
	tree.AddDataService(services.NewBadgerGCService(10*time.Minute, 0.5, catalogStore))
	tree.AddSchedulingService(services.NewSchedulerService(scheduler))
	tree.AddAPIService(services.NewHTTPServerService(server, 15*time.Second))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
	    return err
	}

# Service Interface

All services implement suture.Service:

	type Service interface {
	    Serve(ctx context.Context) error
	}

Return behavior:
  - Return nil: Service stopped cleanly, will not be restarted
  - Return error: Service crashed, will be restarted
  - Context canceled: Shutdown requested, return promptly

# Debugging Shutdown Issues

If services don't stop within the timeout:

	report, err := tree.UnstoppedServiceReport()
	for _, svc := range report {
	    log.Printf("Service didn't stop: %v", svc)
	}
*/
package supervisor
