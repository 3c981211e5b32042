// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultMinIOImage is the MinIO server image used for S3 tests.
	DefaultMinIOImage = "minio/minio:latest"

	minioPort      = "9000/tcp"
	minioAccessKey = "backstop"
	minioSecretKey = "backstop-secret"
)

// MinIOContainer is a running MinIO server with one empty bucket.
type MinIOContainer struct {
	testcontainers.Container
	Endpoint        string // host:port, no scheme
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewMinIOContainer starts MinIO, creates bucket and registers cleanup.
// The test is skipped when Docker is unavailable.
func NewMinIOContainer(t *testing.T, bucket string) *MinIOContainer {
	t.Helper()
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        DefaultMinIOImage,
			Cmd:          []string{"server", "/data"},
			ExposedPorts: []string{minioPort},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioAccessKey,
				"MINIO_ROOT_PASSWORD": minioSecretKey,
			},
			WaitingFor: wait.ForHTTP("/minio/health/live").WithPort(minioPort).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("minio host: %v", err)
	}
	port, err := container.MappedPort(ctx, minioPort)
	if err != nil {
		t.Fatalf("minio port: %v", err)
	}
	endpoint := fmt.Sprintf("%s:%s", host, port.Port())

	mc, err := minio.New(endpoint, &minio.Options{Creds: credentials.NewStaticV4(minioAccessKey, minioSecretKey, "")})
	if err != nil {
		t.Fatalf("minio client: %v", err)
	}
	if err := mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		t.Fatalf("create bucket %s: %v", bucket, err)
	}

	return &MinIOContainer{
		Container:       container,
		Endpoint:        endpoint,
		Bucket:          bucket,
		AccessKeyID:     minioAccessKey,
		SecretAccessKey: minioSecretKey,
	}
}
