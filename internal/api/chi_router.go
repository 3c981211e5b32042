// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router wires handlers to routes.
type Router struct {
	handler *Handler
	config  MiddlewareConfig
}

// NewRouter creates a router over h. A nil cfg uses DefaultMiddlewareConfig.
func NewRouter(h *Handler, cfg *MiddlewareConfig) *Router {
	c := DefaultMiddlewareConfig()
	if cfg != nil {
		c = *cfg
	}
	return &Router{handler: h, config: c}
}

// SetupChi configures all HTTP routes using Chi router.
func (router *Router) SetupChi() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(router.config))

	r.Get("/healthz", router.handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// Long-lived; kept out of the latency histogram.
		r.Get("/events", router.handler.Events)

		r.Group(func(r chi.Router) {
			r.Use(PrometheusMetrics())

			r.Get("/routines", router.handler.ListRoutines)
			r.Get("/schedule", router.handler.Schedule)

			r.Route("/routines/{routine}", func(r chi.Router) {
				r.Get("/backups", router.handler.ListBackups)
				r.Get("/restore/chain", router.handler.RestoreChain)
				r.Get("/job", router.handler.CurrentJob)
				r.Get("/retention", router.handler.RetentionPreview)

				// Job control
				r.Group(func(r chi.Router) {
					r.Use(RateLimit(router.config))
					r.Post("/backups/{kind}", router.handler.StartBackup)
					r.Post("/restore", router.handler.StartRestore)
					r.Delete("/job", router.handler.CancelJob)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, ErrCodeNotFound, "no such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	return r
}
