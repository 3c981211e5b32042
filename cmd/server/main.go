// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/backstop/internal/api"
	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/config"
	"github.com/tomtom215/backstop/internal/events"
	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/supervisor"
	"github.com/tomtom215/backstop/internal/supervisor/services"
	"github.com/tomtom215/backstop/internal/websocket"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("Backstop stopped with an error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run() error {
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return err
	}
	logging.Init(cfg.LoggingOptions())
	logging.Info().
		Str("addr", cfg.Addr()).
		Int("routines", len(cfg.Routines)).
		Int("clusters", len(cfg.Clusters)).
		Msg("Starting Backstop")

	st, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer st.close()

	eventsCfg := cfg.EventsOptions()
	if srvCfg, ok := cfg.EmbeddedServerOptions(); ok {
		natsServer, err := events.NewEmbeddedServer(srvCfg)
		if err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := natsServer.Shutdown(ctx); err != nil {
				logging.Warn().Err(err).Msg("Embedded NATS server did not stop cleanly")
			}
		}()
		eventsCfg.NATSURL = natsServer.ClientURL()
		logging.Info().Str("url", eventsCfg.NATSURL).Msg("Embedded NATS server started")
	}

	publisher, err := events.NewPublisher(eventsCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event publisher")
		}
	}()

	routines, err := cfg.BackupRoutines()
	if err != nil {
		return err
	}
	breaker := cfg.BreakerSettings()
	manager, err := backup.NewManager(backup.Options{
		Routines:     routines,
		Sources:      st.sources(),
		Destinations: st.destinations(),
		Storage:      st.storage,
		Catalog:      st.catalog,
		Tracker:      jobs.NewTracker(jobs.WithFinishHook(publisher.JobFinished)),
		Breaker:      &breaker,
		Observer:     publisher,
	})
	if err != nil {
		return err
	}
	scheduler := backup.NewScheduler(manager)

	hub := websocket.NewHub()
	handler := api.NewHandler(manager, scheduler, cfg.RestorePolicy)
	handler.SetEventHub(hub, cfg.Server.CORSOrigins)
	mw := cfg.MiddlewareOptions()
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(handler, &mw).SetupChi(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = max(cfg.Server.ShutdownTimeout, treeCfg.ShutdownTimeout)
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), treeCfg)
	if err != nil {
		return err
	}
	tree.AddDataService(services.NewBadgerGCService(cfg.GC.Interval, cfg.GC.DiscardRatio, st.gcTargets()...))
	tree.AddSchedulingService(services.NewSchedulerService(scheduler))
	tree.AddAPIService(hub)
	tree.AddAPIService(websocket.NewRelay(hub, publisher, events.TopicJobs, events.TopicCatalog))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	var treeErr error
	select {
	case <-ctx.Done():
		logging.Info().Msg("Shutdown signal received, waiting for supervisor to finish...")
	case treeErr = <-errCh:
	}
	for err := range errCh {
		if treeErr == nil {
			treeErr = err
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}

	// Jobs outlive the API; cancel and drain them before the stores close.
	shutdownCtx, done := context.WithTimeout(context.Background(), treeCfg.ShutdownTimeout)
	defer done()
	if err := manager.Close(shutdownCtx); err != nil {
		logging.Warn().Err(err).Msg("Jobs still running at shutdown")
	}

	if treeErr != nil && !errors.Is(treeErr, context.Canceled) {
		return treeErr
	}
	return nil
}
