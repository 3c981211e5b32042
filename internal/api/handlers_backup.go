// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
)

// parseTimeParam reads an optional RFC3339 query parameter.
func parseTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339: %v", errBadRequest, name, err)
	}
	return &t, nil
}

// ListBackups lists a routine's catalog, oldest first.
//
// Query parameters: kind (full|incremental), from, to (RFC3339, inclusive).
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	rt, err := h.routine(r)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	from, err := parseTimeParam(r, "from")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	to, err := parseTimeParam(r, "to")
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if from != nil && to != nil && to.Before(*from) {
		respondErr(w, r, fmt.Errorf("%w: to is before from", errBadRequest))
		return
	}

	cat := h.manager.Catalog()
	var recs []catalog.Record
	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
		for _, rec := range cat.All(rt.Name) {
			if (from == nil || !rec.Timestamp.Before(*from)) && (to == nil || !rec.Timestamp.After(*to)) {
				recs = append(recs, rec)
			}
		}
	default:
		k, err := backup.ParseKind(kind)
		if err != nil {
			respondErr(w, r, err)
			return
		}
		if k == catalog.KindFull {
			recs = cat.FullsInRange(rt.Name, from, to)
		} else {
			recs = cat.IncrementalsInRange(rt.Name, from, to)
		}
	}
	respondList(w, r, recs)
}

// StartBackup launches a full or incremental backup and returns 202 with
// the job's first snapshot.
func (h *Handler) StartBackup(w http.ResponseWriter, r *http.Request) {
	kind, err := backup.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	name := chi.URLParam(r, "routine")
	job, err := h.manager.StartBackup(r.Context(), name, kind)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/routines/"+name+"/job")
	respondData(w, r, http.StatusAccepted, job.Snapshot())
}

// RetentionPreview shows what the routine's retention policy would delete
// now, without deleting anything.
func (h *Handler) RetentionPreview(w http.ResponseWriter, r *http.Request) {
	plan, err := h.manager.RetentionPreview(chi.URLParam(r, "routine"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, plan)
}
