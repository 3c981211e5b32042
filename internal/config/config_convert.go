// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package config

import (
	"fmt"
	"net"
	"strconv"

	"github.com/tomtom215/backstop/internal/api"
	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/events"
	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/storage"
)

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// LoggingOptions converts the logging section.
func (c *Config) LoggingOptions() logging.Config {
	return logging.Config{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		Caller:    c.Logging.Caller,
		Timestamp: true,
	}
}

// CatalogOptions converts the catalog section.
func (c *Config) CatalogOptions() catalog.BadgerConfig {
	return catalog.BadgerConfig{
		Path:       c.Catalog.Path,
		InMemory:   c.Catalog.InMemory,
		SyncWrites: c.Catalog.SyncWrites,
	}
}

// EventsOptions converts the events section.
func (c *Config) EventsOptions() events.Config {
	cfg := events.DefaultConfig()
	cfg.NATSURL = c.Events.NATSURL
	if c.Events.MaxReconnects != 0 {
		cfg.MaxReconnects = c.Events.MaxReconnects
	}
	if c.Events.ReconnectWait > 0 {
		cfg.ReconnectWait = c.Events.ReconnectWait
	}
	return cfg
}

// EmbeddedServerOptions returns the embedded NATS server settings and
// whether one should be started.
func (c *Config) EmbeddedServerOptions() (events.ServerConfig, bool) {
	return events.ServerConfig{
		Host: c.Events.EmbeddedHost,
		Port: c.Events.EmbeddedPort,
	}, c.Events.Embedded
}

// BreakerSettings converts the breaker section.
func (c *Config) BreakerSettings() cluster.BreakerSettings {
	return cluster.BreakerSettings{
		MinRequests:  c.Breaker.MinRequests,
		FailureRatio: c.Breaker.FailureRatio,
		OpenTimeout:  c.Breaker.OpenTimeout,
	}
}

// ClusterOptions returns the options for every configured cluster.
func (c *Config) ClusterOptions() map[string]cluster.Options {
	out := make(map[string]cluster.Options, len(c.Clusters))
	for name, cc := range c.Clusters {
		out[name] = cluster.Options{Name: name, Path: cc.Path, InMemory: cc.InMemory}
	}
	return out
}

// StorageConfigs returns the adapter config for every storage provider.
func (c *Config) StorageConfigs() map[string]storage.Config {
	out := make(map[string]storage.Config, len(c.Storage))
	for name, s := range c.Storage {
		out[name] = storage.Config{
			Type:            s.Type,
			Path:            s.Path,
			Endpoint:        s.Endpoint,
			Bucket:          s.Bucket,
			Region:          s.Region,
			AccessKeyID:     s.AccessKeyID,
			SecretAccessKey: s.SecretAccessKey,
			UseSSL:          s.UseSSL,
			Prefix:          s.Prefix,
			StorageClass:    s.StorageClass,
		}
	}
	return out
}

// BackupRoutines converts every routine, resolving its named policy.
func (c *Config) BackupRoutines() ([]backup.Routine, error) {
	out := make([]backup.Routine, 0, len(c.Routines))
	for _, name := range sortedKeys(c.Routines) {
		rc := c.Routines[name]

		var pol PolicyConfig
		if rc.Policy != "" {
			p, ok := c.Policies[rc.Policy]
			if !ok {
				return nil, fmt.Errorf("routine %s: unknown backup_policy %q", name, rc.Policy)
			}
			pol = p
		}

		out = append(out, backup.Routine{
			Name:                name,
			SourceCluster:       rc.SourceCluster,
			Namespace:           rc.Namespace,
			SetList:             rc.SetList,
			PartitionFilter:     rc.PartitionFilter.toRange(),
			NodeList:            rc.NodeList,
			Policy:              pol.toPolicy(),
			Storage:             rc.Storage,
			Sealed:              rc.Sealed,
			FullInterval:        rc.FullInterval,
			IncrementalInterval: rc.IncrementalInterval,
		})
	}
	return out, nil
}

func (p PolicyConfig) toPolicy() backup.Policy {
	return backup.Policy{
		BandwidthMiBps:   p.BandwidthMiBps,
		RecordsPerSecond: p.RecordsPerSecond,
		SocketTimeoutMs:  p.SocketTimeoutMs,
		TotalTimeoutMs:   p.TotalTimeoutMs,
		FileLimitMiB:     p.FileLimitMiB,
		Parallel:         p.Parallel,
		ParallelWrite:    p.ParallelWrite,
		Retention: backup.RetentionPolicy{
			Full:        p.Retention.Full,
			Incremental: p.Retention.Incremental,
		},
	}
}

// RestorePolicy returns the named restore policy, or the defaults when
// name is empty. Unset fields of a named policy fall back to the defaults.
func (c *Config) RestorePolicy(name string) (backup.RestorePolicy, error) {
	def := backup.DefaultRestorePolicy()
	if name == "" {
		return def, nil
	}
	rp, ok := c.RestorePolicies[name]
	if !ok {
		return backup.RestorePolicy{}, fmt.Errorf("unknown restore policy %q", name)
	}

	pol := backup.RestorePolicy{
		BandwidthMiBps:     rp.BandwidthMiBps,
		RecordsPerSecond:   rp.RecordsPerSecond,
		TPS:                rp.TPS,
		Parallel:           orDefault(rp.Parallel, def.Parallel),
		BatchSize:          orDefault(rp.BatchSize, def.BatchSize),
		DisableBatchWrites: rp.DisableBatchWrites,
		MaxRetries:         orDefault(rp.MaxRetries, def.MaxRetries),
		RetryDelayMs:       orDefault(rp.RetryDelayMs, def.RetryDelayMs),
		SocketTimeoutMs:    rp.SocketTimeoutMs,
		TotalTimeoutMs:     rp.TotalTimeoutMs,
	}
	return pol, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// MiddlewareOptions converts the server's CORS and rate limit settings.
func (c *Config) MiddlewareOptions() api.MiddlewareConfig {
	mw := api.DefaultMiddlewareConfig()
	mw.CORSAllowedOrigins = c.Server.CORSOrigins
	mw.RateLimitRequests = c.Server.RateLimitRequests
	if c.Server.RateLimitWindow > 0 {
		mw.RateLimitWindow = c.Server.RateLimitWindow
	}
	mw.RateLimitDisabled = c.Server.RateLimitDisabled
	return mw
}
