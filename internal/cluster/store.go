// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package cluster

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/logging"
)

const recordPrefix = "rec/"

// Options configures an embedded cluster.
type Options struct {
	Name     string
	Path     string
	InMemory bool
	// Clock stamps source-side writes. Defaults to time.Now.
	Clock func() time.Time
}

// Store is a single-node cluster on BadgerDB. It serves as backup source
// and restore destination.
type Store struct {
	db    *badger.DB
	name  string
	clock func() time.Time

	// writeMu orders source-side writes so LastUpdate is monotonic per key.
	// A write stamps and commits under it, and Cut reads the clock under it.
	writeMu sync.Mutex
	lastCut time.Time
}

// Open opens (or creates) the cluster database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Path == "" {
		return nil, errors.New("cluster path is required unless in_memory is set")
	}
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open cluster %q: %w", opts.Name, err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	logging.Info().Str("cluster", opts.Name).Str("path", opts.Path).Bool("in_memory", opts.InMemory).Msg("Cluster opened")
	return &Store{db: db, name: opts.Name, clock: clock}, nil
}

func storeKey(k Key) []byte {
	return []byte(recordPrefix + k.ID())
}

func namespacePrefix(ns string) []byte {
	if ns == "" {
		return []byte(recordPrefix)
	}
	return []byte(recordPrefix + idPart(ns))
}

func getRecord(txn *badger.Txn, k Key) (Record, bool, error) {
	item, err := txn.Get(storeKey(k))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	var rec Record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	return rec, err == nil, err
}

func setRecord(txn *badger.Txn, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.Key, err)
	}
	return txn.Set(storeKey(rec.Key), data)
}

// Put writes bins as an application would: stamped with the cluster clock
// and a bumped generation.
func (s *Store) Put(ctx context.Context, k Key, bins map[string]any) (Record, error) {
	return s.sourceWrite(ctx, k, bins, false)
}

// Remove durably deletes k, leaving a tombstone that incremental backups pick up.
func (s *Store) Remove(ctx context.Context, k Key) (Record, error) {
	return s.sourceWrite(ctx, k, nil, true)
}

func (s *Store) sourceWrite(ctx context.Context, k Key, bins map[string]any, deleted bool) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var out Record
	err := s.db.Update(func(txn *badger.Txn) error {
		prev, _, err := getRecord(txn, k)
		if err != nil {
			return err
		}
		stamp := s.clock()
		if !stamp.After(s.lastCut) {
			stamp = s.lastCut.Add(time.Nanosecond)
		}
		out = Record{
			Key:        k,
			Bins:       bins,
			LastUpdate: stamp,
			Generation: prev.Generation + 1,
			Deleted:    deleted,
		}
		return setRecord(txn, out)
	})
	return out, err
}

// Cut reads clock with no source write in flight. Every write stamped at or
// before the result has committed, and every later write stamps after it.
func (s *Store) Cut(clock func() time.Time) time.Time {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	t := clock()
	if t.After(s.lastCut) {
		s.lastCut = t
	}
	return t
}

// Upsert writes rec exactly as given, preserving LastUpdate and generation.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	if rec.Deleted {
		return s.Delete(ctx, rec.Key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setRecord(txn, rec)
	})
}

// Delete removes k. Missing keys are not an error.
func (s *Store) Delete(ctx context.Context, k Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(storeKey(k))
	})
}

// WriteBatch applies recs through a badger WriteBatch; tombstones delete.
func (s *Store) WriteBatch(ctx context.Context, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, rec := range recs {
		if rec.Deleted {
			if err := wb.Delete(storeKey(rec.Key)); err != nil {
				return fmt.Errorf("batch delete %s: %w", rec.Key, err)
			}
			continue
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record %s: %w", rec.Key, err)
		}
		if err := wb.Set(storeKey(rec.Key), data); err != nil {
			return fmt.Errorf("batch set %s: %w", rec.Key, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}
	return nil
}

// ReadRecordsSince yields matching records from a consistent snapshot.
func (s *Store) ReadRecordsSince(ctx context.Context, scan Scan) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		stopped := false
		err := s.db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()

			prefix := namespacePrefix(scan.Namespace)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					return err
				}
				var rec Record
				if err := it.Item().Value(func(val []byte) error {
					return json.Unmarshal(val, &rec)
				}); err != nil {
					return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
				}
				if !scan.Matches(rec) {
					continue
				}
				if !yield(rec, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if err != nil && !stopped {
			yield(Record{}, err)
		}
	}
}

// Count returns how many records match scan.
func (s *Store) Count(ctx context.Context, scan Scan) (int64, error) {
	var n int64
	for _, err := range s.ReadRecordsSince(ctx, scan) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// LastUpdateAfter reports whether any record in the namespace changed after t.
func (s *Store) LastUpdateAfter(ctx context.Context, namespace string, t time.Time) (bool, error) {
	for _, err := range s.ReadRecordsSince(ctx, Scan{Namespace: namespace, After: t}) {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Snapshot returns live (non-tombstoned) records of a namespace keyed by Key.ID().
func (s *Store) Snapshot(ctx context.Context, namespace string) (map[string]Record, error) {
	out := make(map[string]Record)
	for rec, err := range s.ReadRecordsSince(ctx, Scan{Namespace: namespace}) {
		if err != nil {
			return nil, err
		}
		if !rec.Deleted {
			out[rec.Key.ID()] = rec
		}
	}
	return out, nil
}

// Name identifies the cluster in logs and metrics.
func (s *Store) Name() string {
	return s.name
}

// RunGC reclaims value log space.
func (s *Store) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
