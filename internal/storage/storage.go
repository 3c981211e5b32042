// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

// Package storage abstracts where backup artifacts live.
//
// An Adapter is an opaque key/value object store. Keys are slash-separated
// paths such as "orders/full/1767225600000000000/metadata.json". Two
// adapters ship with Backstop: a local filesystem tree and any
// S3-compatible endpoint (AWS S3, MinIO, Cloudflare R2, GCS interoperability).
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// Class is the provider storage class of an object (STANDARD, GLACIER, LOCAL...).
type Class string

const (
	ClassLocal    Class = "LOCAL"
	ClassStandard Class = "STANDARD"
)

// ErrNotFound is returned by Get and StorageClass for missing keys.
var ErrNotFound = errors.New("storage: object not found")

// Adapter is the minimal object-store surface Backstop needs.
// Delete must be idempotent: deleting a missing key returns nil.
type Adapter interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	StorageClass(ctx context.Context, key string) (Class, error)
}

// Config selects and configures an adapter.
type Config struct {
	Type string // local or s3

	// local
	Path string

	// s3
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	Prefix          string
	StorageClass    string
}

// New builds the adapter named by cfg.Type.
func New(cfg Config) (Adapter, error) {
	switch strings.ToLower(cfg.Type) {
	case "local", "":
		return NewLocal(cfg.Path)
	case "s3":
		return NewS3(cfg)
	default:
		return nil, fmt.Errorf("storage: unsupported type %q (want local or s3)", cfg.Type)
	}
}

// DeletePrefix removes every object under prefix. Failures are collected so
// one stuck object does not stop the rest; the returned error lists them all.
func DeletePrefix(ctx context.Context, a Adapter, prefix string) (deleted int, err error) {
	keys, err := a.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", prefix, err)
	}

	var result *multierror.Error
	for _, key := range keys {
		if ctxErr := ctx.Err(); ctxErr != nil {
			result = multierror.Append(result, ctxErr)
			break
		}
		if err := a.Delete(ctx, key); err != nil {
			result = multierror.Append(result, fmt.Errorf("delete %s: %w", key, err))
			continue
		}
		deleted++
	}
	return deleted, result.ErrorOrNil()
}

// ClassOfPrefix returns the storage class of the first object under prefix,
// or ErrNotFound if the prefix is empty.
func ClassOfPrefix(ctx context.Context, a Adapter, prefix string) (Class, error) {
	keys, err := a.List(ctx, prefix)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNotFound
	}
	return a.StorageClass(ctx, keys[0])
}

// Join builds a slash-separated key.
func Join(parts ...string) string {
	trimmed := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			trimmed = append(trimmed, p)
		}
	}
	return strings.Join(trimmed, "/")
}
