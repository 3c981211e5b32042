// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package catalog

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/backstop/internal/logging"
)

const keyPrefix = "catalog/"

// BadgerConfig configures the durable catalog store.
type BadgerConfig struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore persists catalog records in BadgerDB. One key per record:
//
//	catalog/<routine>/<zero-padded unix nanos>
//
// so a prefix scan yields a routine's records in timestamp order.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the catalog database.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("catalog path is required unless in_memory is set")
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open catalog BadgerDB: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Bool("in_memory", cfg.InMemory).
		Bool("sync_writes", cfg.SyncWrites).
		Msg("Catalog store opened")
	return &BadgerStore{db: db}, nil
}

func recordKey(r Record) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, r.RoutineID, r.Timestamp.UnixNano()))
}

// Put stores rec, replacing any record with the same routine and timestamp.
func (s *BadgerStore) Put(rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal catalog record: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec), data)
	})
}

// Delete removes recs in one transaction. Missing keys are not an error.
func (s *BadgerStore) Delete(recs ...Record) error {
	return s.db.Update(func(txn *badger.Txn) error {
		for _, r := range recs {
			if err := txn.Delete(recordKey(r)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		return nil
	})
}

// LoadAll returns every stored record. Undecodable entries are logged and skipped.
func (s *BadgerStore) LoadAll() ([]Record, error) {
	var out []Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var rec Record
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Catalog failed to decode record")
				continue
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate catalog: %w", err)
	}
	return out, nil
}

// RunGC reclaims value log space. Nothing to rewrite, or an in-memory
// database, is not an error.
func (s *BadgerStore) RunGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if err == nil || errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Name identifies the store in logs.
func (s *BadgerStore) Name() string {
	return "catalog"
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
