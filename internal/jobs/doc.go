// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package jobs tracks backup and restore jobs.

Each routine has at most one RUNNING job. A job moves from RUNNING to
exactly one of DONE, FAILED or CANCELLED, and its final snapshot stays
available through Tracker.Last until the next job finishes.

Workers update counters with atomic adds. Pollers call Job.Snapshot or
Tracker.Current, which merge the counters into a published snapshot with a
compare-and-swap so that DoneRecords, PercentageDone and EstimatedEndTime
never move backwards, and no poller ever waits on a worker.

Cancellation is cooperative: Cancel cancels the job context and workers
stop at the next batch boundary. A job whose context hit a deadline without
a Cancel call finishes FAILED, not CANCELLED.
*/
package jobs
