// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package main

import (
	"fmt"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/config"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/storage"
	"github.com/tomtom215/backstop/internal/supervisor/services"
)

// stores holds everything opened at startup that must be closed on exit.
type stores struct {
	catalogDB *catalog.BadgerStore
	catalog   *catalog.Catalog
	clusters  map[string]*cluster.Store
	storage   map[string]storage.Adapter
}

func openStores(cfg *config.Config) (st *stores, err error) {
	st = &stores{
		clusters: make(map[string]*cluster.Store),
		storage:  make(map[string]storage.Adapter),
	}
	defer func() {
		if err != nil {
			st.close()
		}
	}()

	st.catalogDB, err = catalog.OpenBadgerStore(cfg.CatalogOptions())
	if err != nil {
		return st, fmt.Errorf("open catalog: %w", err)
	}
	st.catalog, err = catalog.Open(st.catalogDB)
	if err != nil {
		return st, err
	}

	for name, opts := range cfg.ClusterOptions() {
		s, err := cluster.Open(opts)
		if err != nil {
			return st, fmt.Errorf("open cluster %s: %w", name, err)
		}
		st.clusters[name] = s
	}

	for name, sc := range cfg.StorageConfigs() {
		a, err := storage.New(sc)
		if err != nil {
			return st, fmt.Errorf("storage %s: %w", name, err)
		}
		st.storage[name] = a
	}

	logging.Info().
		Int("clusters", len(st.clusters)).
		Int("storage", len(st.storage)).
		Bool("catalog_in_memory", cfg.Catalog.InMemory).
		Msg("Stores opened")
	return st, nil
}

func (st *stores) sources() map[string]cluster.Source {
	out := make(map[string]cluster.Source, len(st.clusters))
	for name, s := range st.clusters {
		out[name] = s
	}
	return out
}

func (st *stores) destinations() map[string]cluster.Destination {
	out := make(map[string]cluster.Destination, len(st.clusters))
	for name, s := range st.clusters {
		out[name] = s
	}
	return out
}

func (st *stores) gcTargets() []services.GCTarget {
	targets := []services.GCTarget{st.catalogDB}
	for _, s := range st.clusters {
		targets = append(targets, s)
	}
	return targets
}

func (st *stores) close() {
	for name, s := range st.clusters {
		if err := s.Close(); err != nil {
			logging.Error().Err(err).Str("cluster", name).Msg("Error closing cluster")
		}
	}
	if st.catalogDB != nil {
		if err := st.catalogDB.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing catalog")
		}
	}
}
