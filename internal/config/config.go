// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
	Catalog CatalogConfig `koanf:"catalog"`
	Events  EventsConfig  `koanf:"events"`
	Breaker BreakerConfig `koanf:"breaker"`
	GC      GCConfig      `koanf:"gc"`

	// Named collaborators, referenced by routines.
	Clusters        map[string]ClusterConfig       `koanf:"clusters" validate:"dive"`
	Storage         map[string]StorageConfig       `koanf:"storage" validate:"dive"`
	Policies        map[string]PolicyConfig        `koanf:"policies" validate:"dive"`
	RestorePolicies map[string]RestorePolicyConfig `koanf:"restore_policies" validate:"dive"`

	// Routines keyed by name.
	Routines map[string]RoutineConfig `koanf:"routines" validate:"dive"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration `koanf:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gte=0"`

	CORSOrigins       []string      `koanf:"cors_origins" validate:"omitempty,dive,required"`
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window" validate:"gte=0"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal panic"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// CatalogConfig selects the catalog's durable store.
type CatalogConfig struct {
	Path       string `koanf:"path" validate:"required_if=InMemory false"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`
}

// EventsConfig selects the lifecycle event transport. An empty NATSURL
// keeps events in-process unless Embedded starts a local NATS server.
type EventsConfig struct {
	NATSURL       string        `koanf:"nats_url"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait" validate:"gte=0"`

	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port" validate:"min=-1,max=65535"`
}

// BreakerConfig tunes the destination circuit breakers.
type BreakerConfig struct {
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio" validate:"gt=0,lte=1"`
	OpenTimeout  time.Duration `koanf:"open_timeout" validate:"gt=0"`
}

// GCConfig schedules badger value log GC for the catalog and embedded clusters.
type GCConfig struct {
	Interval     time.Duration `koanf:"interval" validate:"gte=0"`
	DiscardRatio float64       `koanf:"discard_ratio" validate:"gt=0,lt=1"`
}

// ClusterConfig describes an embedded cluster.
type ClusterConfig struct {
	Path     string `koanf:"path" validate:"required_if=InMemory false"`
	InMemory bool   `koanf:"in_memory"`
}

// StorageConfig describes a storage provider.
type StorageConfig struct {
	Type string `koanf:"type" validate:"required,oneof=local s3"`

	// local
	Path string `koanf:"path" validate:"required_if=Type local"`

	// s3
	Endpoint        string `koanf:"endpoint" validate:"required_if=Type s3"`
	Bucket          string `koanf:"bucket" validate:"required_if=Type s3"`
	Region          string `koanf:"region"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UseSSL          bool   `koanf:"use_ssl"`
	Prefix          string `koanf:"prefix"`
	StorageClass    string `koanf:"storage_class"`
}

// RetentionConfig bounds kept backups. Nil means unbounded.
type RetentionConfig struct {
	Full        *int `koanf:"full" validate:"omitempty,min=1"`
	Incremental *int `koanf:"incremental" validate:"omitempty,min=0"`
}

// PolicyConfig is a named backup policy.
type PolicyConfig struct {
	BandwidthMiBps   int             `koanf:"bandwidth_mibps" validate:"min=0"`
	RecordsPerSecond int             `koanf:"records_per_second" validate:"min=0"`
	SocketTimeoutMs  int             `koanf:"socket_timeout_ms" validate:"min=0"`
	TotalTimeoutMs   int             `koanf:"total_timeout_ms" validate:"min=0"`
	FileLimitMiB     int             `koanf:"file_limit_mib" validate:"min=0"`
	Parallel         int             `koanf:"parallel" validate:"min=0,max=256"`
	ParallelWrite    int             `koanf:"parallel_write" validate:"min=0,max=256"`
	Retention        RetentionConfig `koanf:"retention"`
}

// RestorePolicyConfig is a named restore policy.
type RestorePolicyConfig struct {
	BandwidthMiBps     int  `koanf:"bandwidth_mibps" validate:"min=0"`
	RecordsPerSecond   int  `koanf:"records_per_second" validate:"min=0"`
	TPS                int  `koanf:"tps" validate:"min=0"`
	Parallel           int  `koanf:"parallel" validate:"min=0,max=256"`
	BatchSize          int  `koanf:"batch_size" validate:"min=0,max=100000"`
	DisableBatchWrites bool `koanf:"disable_batch_writes"`
	MaxRetries         int  `koanf:"max_retries" validate:"min=0,max=100"`
	RetryDelayMs       int  `koanf:"retry_delay_ms" validate:"min=0"`
	SocketTimeoutMs    int  `koanf:"socket_timeout_ms" validate:"min=0"`
	TotalTimeoutMs     int  `koanf:"total_timeout_ms" validate:"min=0"`
}

// PartitionConfig is a contiguous partition range.
type PartitionConfig struct {
	Begin int `koanf:"begin" validate:"partition"`
	Count int `koanf:"count" validate:"min=1,max=4096"`
}

// RoutineConfig is one backup routine. Its name is the map key.
type RoutineConfig struct {
	SourceCluster   string           `koanf:"source_cluster" validate:"required"`
	Namespace       string           `koanf:"namespace" validate:"required"`
	SetList         []string         `koanf:"set_list"`
	PartitionFilter *PartitionConfig `koanf:"partition_filter"`
	NodeList        []string         `koanf:"node_list"`
	Policy          string           `koanf:"backup_policy"`
	Storage         string           `koanf:"storage" validate:"required"`
	Sealed          bool             `koanf:"sealed"`

	FullInterval        time.Duration `koanf:"full_interval" validate:"gte=0"`
	IncrementalInterval time.Duration `koanf:"incremental_interval" validate:"gte=0"`
}
