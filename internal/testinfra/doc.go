// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package testinfra starts containers for integration tests with
// testcontainers-go.
//
// Everything here is behind the integration build tag:
//
//	go test -tags integration ./internal/storage/... ./internal/events/...
//
// Tests are skipped when Docker is unavailable. Containers are terminated
// through t.Cleanup.
//
// # MinIO
//
//	m := testinfra.NewMinIOContainer(t, "backups")
//	adapter, err := storage.NewS3(storage.Config{
//	    Endpoint:        m.Endpoint,
//	    Bucket:          m.Bucket,
//	    AccessKeyID:     m.AccessKeyID,
//	    SecretAccessKey: m.SecretAccessKey,
//	})
//
// # NATS
//
//	url := testinfra.NewNATSContainer(t)
//	pub, err := events.NewPublisher(events.Config{NATSURL: url})
package testinfra
