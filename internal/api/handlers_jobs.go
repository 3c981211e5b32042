// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"fmt"
	"net/http"

	"github.com/tomtom215/backstop/internal/jobs"
)

// CurrentJob returns the routine's running job, or its last finished one.
func (h *Handler) CurrentJob(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routine(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	snap, ok := h.manager.Tracker().Current(rt.Name)
	if !ok {
		respondErr(w, r, fmt.Errorf("%w: %s", jobs.ErrNoRunningJob, rt.Name))
		return
	}
	respondData(w, r, http.StatusOK, snap)
}

// CancelJob requests cancellation of the routine's running job. The job
// reports CANCELLED once its workers have stopped.
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routine(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	tracker := h.manager.Tracker()
	if err := tracker.Cancel(rt.Name); err != nil {
		respondErr(w, r, err)
		return
	}
	snap, _ := tracker.Current(rt.Name)
	respondData(w, r, http.StatusAccepted, snap)
}
