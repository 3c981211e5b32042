// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/validation"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

// PartitionBody is a partition range in a request body.
type PartitionBody struct {
	Begin int `json:"begin" validate:"partition"`
	Count int `json:"count" validate:"min=0,max=4096"`
}

// RestoreBody is the body of POST /v1/routines/{routine}/restore. Every
// field is optional; an empty body restores the latest point in time to
// the routine's source cluster.
type RestoreBody struct {
	Kind              string         `json:"kind,omitempty" validate:"omitempty,oneof=full timestamp"`
	Target            *time.Time     `json:"target,omitempty"`
	Destination       string         `json:"destination,omitempty"`
	Policy            string         `json:"policy,omitempty"`
	Parallel          int            `json:"parallel,omitempty" validate:"min=0,max=256"`
	SetList           []string       `json:"set_list,omitempty" validate:"omitempty,dive,required"`
	PartitionFilter   *PartitionBody `json:"partition_filter,omitempty"`
	DisableReordering bool           `json:"disable_reordering,omitempty"`
}

// decodeBody decodes an optional JSON body into v. Unknown fields are rejected.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// restoreRequest turns a validated body into a backup.RestoreRequest.
func (h *Handler) restoreRequest(routine string, body RestoreBody) (backup.RestoreRequest, error) {
	policy, err := h.restorePolicy(body.Policy)
	if err != nil {
		return backup.RestoreRequest{}, fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if body.Parallel > 0 {
		policy.Parallel = body.Parallel
	}
	if len(body.SetList) > 0 {
		policy.SetList = body.SetList
	}
	if pf := body.PartitionFilter; pf != nil {
		policy.PartitionFilter = &cluster.PartitionRange{Begin: pf.Begin, Count: pf.Count}
	}

	req := backup.RestoreRequest{
		Routine:           routine,
		Kind:              backup.RestoreKind(body.Kind),
		Destination:       body.Destination,
		Policy:            policy,
		DisableReordering: body.DisableReordering,
	}
	if body.Target != nil {
		req.Target = *body.Target
	}
	return req, nil
}

// StartRestore launches a restore and returns 202 with the job's first
// snapshot.
func (h *Handler) StartRestore(w http.ResponseWriter, r *http.Request) {
	var body RestoreBody
	if err := decodeBody(r, &body); err != nil {
		respondErr(w, r, err)
		return
	}
	if err := validation.ValidateStruct(&body); err != nil {
		respondErr(w, r, err)
		return
	}

	name := chi.URLParam(r, "routine")
	req, err := h.restoreRequest(name, body)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	job, err := h.manager.StartRestore(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/routines/"+name+"/job")
	respondData(w, r, http.StatusAccepted, job.Snapshot())
}

// RestoreChainView previews a restore.
type RestoreChainView struct {
	Routine string           `json:"routine"`
	Kind    string           `json:"kind"`
	Target  *time.Time       `json:"target,omitempty"`
	Records int64            `json:"records"`
	Bytes   int64            `json:"bytes"`
	Chain   []catalog.Record `json:"chain"`
}

// RestoreChain lists the backups a restore would replay.
//
// Query parameters: kind (full|timestamp), target (RFC3339, default now).
func (h *Handler) RestoreChain(w http.ResponseWriter, r *http.Request) {
	kind := backup.RestoreKind(r.URL.Query().Get("kind"))
	switch kind {
	case "":
		kind = backup.RestoreTimestamp
	case backup.RestoreFull, backup.RestoreTimestamp:
	default:
		respondErr(w, r, fmt.Errorf("%w: unknown restore kind %q", errBadRequest, kind))
		return
	}
	target, err := parseTimeParam(r, "target")
	if err != nil {
		respondErr(w, r, err)
		return
	}

	var at time.Time
	if target != nil {
		at = *target
	}
	name := chi.URLParam(r, "routine")
	chain, err := h.manager.RestoreChain(name, kind, at)
	if err != nil {
		respondErr(w, r, err)
		return
	}

	view := RestoreChainView{Routine: name, Kind: string(kind), Target: target, Chain: chain}
	for _, rec := range chain {
		view.Records += rec.RecordCount
		view.Bytes += rec.ByteCount
	}
	respondData(w, r, http.StatusOK, view)
}
