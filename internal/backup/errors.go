// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tomtom215/backstop/internal/catalog"
)

var (
	// ErrNoBaseBackup means no full backup exists to restore from or to base an incremental on.
	ErrNoBaseBackup = errors.New("no full backup at or before the requested time")
	// ErrWriteRetryExhausted means a destination write failed on every attempt.
	ErrWriteRetryExhausted = errors.New("write retries exhausted")
	// ErrTimeoutExceeded means a socket or total timeout elapsed.
	ErrTimeoutExceeded = errors.New("timeout exceeded")
	// ErrUnknownRoutine means the routine is not configured.
	ErrUnknownRoutine = errors.New("unknown routine")
	// ErrNotSealed means a sealed routine's source changed during the backup.
	ErrNotSealed = errors.New("source changed during sealed backup")
	// ErrInvalidRequest is a malformed backup or restore request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrManagerClosed means the manager is shutting down and takes no new jobs.
	ErrManagerClosed = errors.New("backup manager is closed")
)

// PartialPruneFailure reports backups retention could not delete. The
// failed entries stay in the catalog and are retried on the next pass.
type PartialPruneFailure struct {
	Routine string
	Failed  []catalog.Record
	Errs    *multierror.Error
}

func (e *PartialPruneFailure) Error() string {
	return fmt.Sprintf("retention for %s left %d backups undeleted: %v", e.Routine, len(e.Failed), e.Errs.ErrorOrNil())
}

func (e *PartialPruneFailure) Unwrap() error {
	return e.Errs.ErrorOrNil()
}

// timeoutError rewrites a deadline caused by the job's total timeout into
// ErrTimeoutExceeded. Cancellation by request is left alone.
func timeoutError(err error, total time.Duration, cancelled bool) error {
	if err == nil || cancelled || errors.Is(err, ErrTimeoutExceeded) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: total timeout %s: %w", ErrTimeoutExceeded, total, err)
	}
	return err
}

// withCallTimeout runs fn under the socket timeout d.
func withCallTimeout(ctx context.Context, d time.Duration, op string, fn func(context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := fn(cctx)
	if err != nil && ctx.Err() == nil && errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded socket timeout %s", ErrTimeoutExceeded, op, d)
	}
	return err
}
