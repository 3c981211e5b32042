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
	"github.com/gorilla/websocket"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/jobs"
	ws "github.com/tomtom215/backstop/internal/websocket"
)

// RestorePolicyFunc resolves a named restore policy; "" means the default.
type RestorePolicyFunc func(name string) (backup.RestorePolicy, error)

// Handler serves the API from a backup manager.
type Handler struct {
	manager       *backup.Manager
	scheduler     *backup.Scheduler
	restorePolicy RestorePolicyFunc
	started       time.Time

	// Event stream; nil disables /v1/events.
	hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. scheduler may be nil; restorePolicy nil
// means only the default restore policy is available.
func NewHandler(m *backup.Manager, scheduler *backup.Scheduler, restorePolicy RestorePolicyFunc) *Handler {
	if restorePolicy == nil {
		restorePolicy = func(name string) (backup.RestorePolicy, error) {
			if name != "" {
				return backup.RestorePolicy{}, fmt.Errorf("unknown restore policy %q", name)
			}
			return backup.DefaultRestorePolicy(), nil
		}
	}
	return &Handler{
		manager:       m,
		scheduler:     scheduler,
		restorePolicy: restorePolicy,
		started:       time.Now(),
	}
}

// SetEventHub enables the event stream. allowedOrigins lists browser
// origins admitted besides the server's own host.
func (h *Handler) SetEventHub(hub *ws.Hub, allowedOrigins []string) {
	h.hub = hub
	h.upgrader = ws.NewUpgrader(allowedOrigins)
}

// routine resolves the {routine} URL parameter.
func (h *Handler) routine(r *http.Request) (backup.Routine, error) {
	return h.manager.Routine(chi.URLParam(r, "routine"))
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondData(w, r, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"routines": len(h.manager.Routines()),
		"uptime":   time.Since(h.started).Round(time.Second).String(),
	})
}

// RoutineInfo is a routine with its catalog and job state.
type RoutineInfo struct {
	backup.Routine
	FullInterval        string          `json:"full_interval,omitempty"`
	IncrementalInterval string          `json:"incremental_interval,omitempty"`
	Backups             int             `json:"backups"`
	LastBackup          *catalog.Record `json:"last_backup,omitempty"`
	Job                 *jobs.Snapshot  `json:"job,omitempty"`
}

func durationString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

// ListRoutines lists configured routines.
func (h *Handler) ListRoutines(w http.ResponseWriter, r *http.Request) {
	cat := h.manager.Catalog()
	tracker := h.manager.Tracker()

	routines := h.manager.Routines()
	out := make([]RoutineInfo, 0, len(routines))
	for _, rt := range routines {
		info := RoutineInfo{
			Routine:             rt,
			FullInterval:        durationString(rt.FullInterval),
			IncrementalInterval: durationString(rt.IncrementalInterval),
			Backups:             len(cat.All(rt.Name)),
		}
		if last, ok := cat.Last(rt.Name); ok {
			info.LastBackup = &last
		}
		if snap, ok := tracker.Current(rt.Name); ok {
			info.Job = &snap
		}
		out = append(out, info)
	}
	respondList(w, r, out)
}

// Schedule lists upcoming scheduled backups.
func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respondList(w, r, []backup.ScheduledRun{})
		return
	}
	respondList(w, r, h.scheduler.NextRuns())
}
