// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/validation"
)

// Validate checks field constraints, then the references between sections.
// Every problem found is reported, not just the first.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	var result *multierror.Error
	if err := c.validateEvents(); err != nil {
		result = multierror.Append(result, err)
	}
	for _, name := range sortedKeys(c.Storage) {
		if err := c.validateStorage(name, c.Storage[name]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	for _, name := range sortedKeys(c.Routines) {
		if err := c.validateRoutine(name, c.Routines[name]); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Config) validateEvents() error {
	if c.Events.Embedded && c.Events.NATSURL != "" {
		return errors.New("events: embedded and nats_url are mutually exclusive")
	}
	if c.Events.NATSURL == "" {
		return nil
	}
	if err := validateNATSURL(c.Events.NATSURL); err != nil {
		return fmt.Errorf("events.nats_url: %w", err)
	}
	return nil
}

func (c *Config) validateStorage(name string, s StorageConfig) error {
	if s.Type != "s3" {
		return nil
	}
	if err := validateS3Endpoint(s.Endpoint); err != nil {
		return fmt.Errorf("storage %s: %w", name, err)
	}
	return nil
}

// validateRoutine checks one routine's name and the clusters, storage and
// policy it refers to.
func (c *Config) validateRoutine(name string, r RoutineConfig) error {
	if !validation.IsRoutineName(name) {
		return fmt.Errorf("routine %q: name must contain only lower-case letters, digits, '-' and '_'", name)
	}
	if _, ok := c.Clusters[r.SourceCluster]; !ok {
		return fmt.Errorf("routine %s: unknown source_cluster %q", name, r.SourceCluster)
	}
	if _, ok := c.Storage[r.Storage]; !ok {
		return fmt.Errorf("routine %s: unknown storage %q", name, r.Storage)
	}
	if r.Policy != "" {
		if _, ok := c.Policies[r.Policy]; !ok {
			return fmt.Errorf("routine %s: unknown backup_policy %q", name, r.Policy)
		}
	}
	if pf := r.PartitionFilter; pf != nil {
		if err := pf.toRange().Validate(); err != nil {
			return fmt.Errorf("routine %s: partition_filter: %w", name, err)
		}
	}
	return nil
}

func (p *PartitionConfig) toRange() *cluster.PartitionRange {
	if p == nil {
		return nil
	}
	return &cluster.PartitionRange{Begin: p.Begin, Count: p.Count}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
