// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
Package bandwidth throttles backup and restore jobs.

A Governor composes independent limits:

	bytes/s    token bucket (golang.org/x/time/rate)
	records/s  token bucket (golang.org/x/time/rate)
	parallel   fan-out slots (golang.org/x/sync/semaphore)

A unit of work is admitted only when every active limit admits it, so the
effective throughput is the minimum of the configured rates. A zero limit is
unconstrained.

# Usage

	gov := bandwidth.NewGovernor(bandwidth.Limits{
	    BytesPerSecond:   bandwidth.MiBps(50),
	    RecordsPerSecond: 20000,
	    Parallel:         4,
	})

	release, err := gov.Enter(ctx)
	if err != nil {
	    return err
	}
	defer release()

	if err := gov.Acquire(ctx, 1, len(payload)); err != nil {
	    return err // context.Canceled or context.DeadlineExceeded
	}

# Bursts

Each bucket holds a tenth of a second of budget (minimum 1 unit). A request
larger than the bucket is admitted in bucket-sized slices, so oversized
records are slowed down, never rejected.

# Estimation

EstimateDuration predicts how long a transfer will take under a set of
limits. Jobs use it as the first completion estimate before any throughput
has been measured.
*/
package bandwidth
