// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"net/http"

	"github.com/tomtom215/backstop/internal/logging"
	ws "github.com/tomtom215/backstop/internal/websocket"
)

// Events upgrades to a websocket that streams lifecycle events. The
// optional routine query parameter restricts the stream to one routine.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "event stream unavailable", nil)
		return
	}

	routine := r.URL.Query().Get("routine")
	if routine != "" {
		if _, err := h.manager.Routine(routine); err != nil {
			respondErr(w, r, err)
			return
		}
	}

	if err := ws.Accept(h.hub, &h.upgrader, w, r, routine); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("websocket upgrade failed")
	}
}
