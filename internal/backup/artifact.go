// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

/*
artifact.go - Artifact Layout and Codec

An artifact is everything one backup wrote, under a single key prefix:

	<routine>/<full|incremental>/<unix-nanos>/
	    metadata.json
	    data/0000_000000.jsonl.gz
	    data/0000_000001.jsonl.gz
	    data/0001_000000.jsonl.gz

Data files are gzip-compressed JSON lines, one cluster.Record per line. Each
scan worker writes its own files and rolls to a new one once the
uncompressed size reaches the policy's file limit. Byte counts reported in
metadata and progress are uncompressed line sizes.
*/

//nolint:staticcheck // File documentation, not package doc
package backup

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/bandwidth"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/cluster"
	"github.com/tomtom215/backstop/internal/storage"
)

const (
	metadataFile = "metadata.json"
	dataDir      = "data"
)

// ArtifactKey is the storage prefix of a backup taken at ts.
func ArtifactKey(routine string, kind catalog.Kind, ts time.Time) string {
	return storage.Join(routine, strings.ToLower(string(kind)), fmt.Sprintf("%d", ts.UnixNano()))
}

// ArtifactMetadata describes an artifact. It is written after all data files.
type ArtifactMetadata struct {
	Routine   string       `json:"routine"`
	Kind      catalog.Kind `json:"kind"`
	Created   time.Time    `json:"created"`
	From      time.Time    `json:"from,omitempty"`
	Namespace string       `json:"namespace"`
	Records   int64        `json:"records"`
	Bytes     int64        `json:"bytes"`
	Files     int          `json:"files"`
}

func encodeRecord(rec cluster.Record) ([]byte, error) {
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Key, err)
	}
	return append(line, '\n'), nil
}

// artifactWriter writes one worker's data files.
type artifactWriter struct {
	adapter storage.Adapter
	gov     *bandwidth.Governor
	prefix  string
	worker  int
	limit   int64
	timeout time.Duration

	buf  bytes.Buffer
	gz   *gzip.Writer
	seq  int
	size int64
	n    int64

	records int64
	bytes   int64
	files   int
}

func newArtifactWriter(a storage.Adapter, gov *bandwidth.Governor, key string, worker int, limit int64, timeout time.Duration) *artifactWriter {
	w := &artifactWriter{
		adapter: a,
		gov:     gov,
		prefix:  storage.Join(key, dataDir),
		worker:  worker,
		limit:   limit,
		timeout: timeout,
	}
	w.gz = gzip.NewWriter(&w.buf)
	return w
}

func (w *artifactWriter) append(ctx context.Context, line []byte) error {
	if _, err := w.gz.Write(line); err != nil {
		return fmt.Errorf("compress record: %w", err)
	}
	w.size += int64(len(line))
	w.n++
	w.records++
	w.bytes += int64(len(line))
	if w.limit > 0 && w.size >= w.limit {
		return w.flush(ctx)
	}
	return nil
}

func (w *artifactWriter) flush(ctx context.Context) error {
	if w.n == 0 {
		return nil
	}
	if err := w.gz.Close(); err != nil {
		return fmt.Errorf("finish gzip stream: %w", err)
	}
	name := storage.Join(w.prefix, fmt.Sprintf("%04d_%06d.jsonl.gz", w.worker, w.seq))
	data := bytes.Clone(w.buf.Bytes())

	release, err := w.gov.Enter(ctx)
	if err != nil {
		return err
	}
	err = withCallTimeout(ctx, w.timeout, "put "+name, func(ctx context.Context) error {
		return w.adapter.Put(ctx, name, data)
	})
	release()
	if err != nil {
		return err
	}

	w.files++
	w.seq++
	w.size, w.n = 0, 0
	w.buf.Reset()
	w.gz.Reset(&w.buf)
	return nil
}

func (w *artifactWriter) close(ctx context.Context) error {
	return w.flush(ctx)
}

func writeMetadata(ctx context.Context, a storage.Adapter, key string, meta ArtifactMetadata, timeout time.Duration) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return withCallTimeout(ctx, timeout, "put metadata", func(ctx context.Context) error {
		return a.Put(ctx, storage.Join(key, metadataFile), data)
	})
}

// ReadMetadata loads an artifact's metadata.
func ReadMetadata(ctx context.Context, a storage.Adapter, key string) (ArtifactMetadata, error) {
	var meta ArtifactMetadata
	data, err := a.Get(ctx, storage.Join(key, metadataFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("decode metadata of %s: %w", key, err)
	}
	return meta, nil
}

// decodedRecord is a record read back from an artifact with its encoded size.
type decodedRecord struct {
	cluster.Record
	size int
}

// readArtifact yields every record stored under key, file by file.
func readArtifact(ctx context.Context, a storage.Adapter, key string, timeout time.Duration) iter.Seq2[decodedRecord, error] {
	return func(yield func(decodedRecord, error) bool) {
		files, err := a.List(ctx, storage.Join(key, dataDir)+"/")
		if err != nil {
			yield(decodedRecord{}, fmt.Errorf("list artifact %s: %w", key, err))
			return
		}
		for _, name := range files {
			if err := ctx.Err(); err != nil {
				yield(decodedRecord{}, err)
				return
			}
			var data []byte
			err := withCallTimeout(ctx, timeout, "get "+name, func(ctx context.Context) error {
				var err error
				data, err = a.Get(ctx, name)
				return err
			})
			if err != nil {
				yield(decodedRecord{}, err)
				return
			}
			if !decodeFile(ctx, name, data, yield) {
				return
			}
		}
	}
}

// decodeFile yields the records of one data file. It checks ctx per line,
// since a caller that only indexes records never blocks on anything else.
func decodeFile(ctx context.Context, name string, data []byte, yield func(decodedRecord, error) bool) bool {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		yield(decodedRecord{}, fmt.Errorf("open %s: %w", name, err))
		return false
	}
	defer gz.Close()

	r := bufio.NewReader(gz)
	for {
		if cerr := ctx.Err(); cerr != nil {
			yield(decodedRecord{}, cerr)
			return false
		}
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			var rec cluster.Record
			if uerr := json.Unmarshal(line, &rec); uerr != nil {
				yield(decodedRecord{}, fmt.Errorf("decode %s: %w", name, uerr))
				return false
			}
			if !yield(decodedRecord{Record: rec, size: len(line)}, nil) {
				return false
			}
		}
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			yield(decodedRecord{}, fmt.Errorf("read %s: %w", name, err))
			return false
		}
	}
}
