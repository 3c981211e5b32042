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

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// DefaultNATSImage is the NATS server image used for event tests.
const DefaultNATSImage = "nats:2.12-alpine"

const natsPort = "4222/tcp"

// NewNATSContainer starts a core NATS server and returns its nats:// URL.
// The test is skipped when Docker is unavailable.
func NewNATSContainer(t *testing.T) string {
	t.Helper()
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        DefaultNATSImage,
			ExposedPorts: []string{natsPort},
			WaitingFor:   wait.ForListeningPort(natsPort).WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("nats host: %v", err)
	}
	port, err := container.MappedPort(ctx, natsPort)
	if err != nil {
		t.Fatalf("nats port: %v", err)
	}
	return fmt.Sprintf("nats://%s:%s", host, port.Port())
}
