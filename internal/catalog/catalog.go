// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package catalog

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/backstop/internal/logging"
	"github.com/tomtom215/backstop/internal/metrics"
)

// Store persists catalog records. A nil Store keeps the catalog in memory.
type Store interface {
	Put(rec Record) error
	Delete(recs ...Record) error
	LoadAll() ([]Record, error)
}

// ledger is one routine's history. Writers serialize on mu and publish a
// fresh sorted slice; readers load the pointer without locking.
type ledger struct {
	mu      sync.Mutex
	records atomic.Pointer[[]Record]
}

func (l *ledger) snapshot() []Record {
	if p := l.records.Load(); p != nil {
		return *p
	}
	return nil
}

// Catalog is the append-only ledger of completed backups per routine.
type Catalog struct {
	store   Store
	ledgers sync.Map // routine -> *ledger
}

// New returns an empty catalog backed by store (nil for memory only).
func New(store Store) *Catalog {
	return &Catalog{store: store}
}

// Open returns a catalog rebuilt from everything in store.
func Open(store Store) (*Catalog, error) {
	c := New(store)
	if store == nil {
		return c, nil
	}

	recs, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	byRoutine := make(map[string][]Record)
	for _, r := range recs {
		byRoutine[r.RoutineID] = append(byRoutine[r.RoutineID], r)
	}
	for routine, list := range byRoutine {
		sort.Slice(list, func(i, j int) bool { return list[i].Timestamp.Before(list[j].Timestamp) })
		l := c.ledgerFor(routine)
		l.records.Store(&list)
		publishSize(routine, list)
	}

	logging.Info().Int("records", len(recs)).Int("routines", len(byRoutine)).Msg("Catalog loaded")
	return c, nil
}

func (c *Catalog) ledgerFor(routine string) *ledger {
	if l, ok := c.ledgers.Load(routine); ok {
		return l.(*ledger)
	}
	l, _ := c.ledgers.LoadOrStore(routine, &ledger{})
	return l.(*ledger)
}

func (c *Catalog) existing(routine string) []Record {
	if l, ok := c.ledgers.Load(routine); ok {
		return l.(*ledger).snapshot()
	}
	return nil
}

// Append records a completed backup. The timestamp must be strictly after
// the routine's last entry, and incrementals need an earlier full.
func (c *Catalog) Append(rec Record) error {
	if rec.RoutineID == "" || !rec.Kind.Valid() || rec.Timestamp.IsZero() {
		return fmt.Errorf("%w: routine=%q kind=%q timestamp=%s", ErrInvalidRecord, rec.RoutineID, rec.Kind, rec.Timestamp)
	}

	l := c.ledgerFor(rec.RoutineID)
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.snapshot()
	if n := len(current); n > 0 && !rec.Timestamp.After(current[n-1].Timestamp) {
		return &OutOfOrderError{Routine: rec.RoutineID, Timestamp: rec.Timestamp, Last: current[n-1].Timestamp}
	}
	if rec.Kind == KindIncremental && !hasFull(current) {
		return fmt.Errorf("routine %q: %w", rec.RoutineID, ErrOrphanIncremental)
	}

	if c.store != nil {
		if err := c.store.Put(rec); err != nil {
			return fmt.Errorf("persist catalog record: %w", err)
		}
	}

	next := make([]Record, len(current), len(current)+1)
	copy(next, current)
	next = append(next, rec)
	l.records.Store(&next)
	publishSize(rec.RoutineID, next)
	return nil
}

// Remove drops records (matched by timestamp) from the routine's ledger.
// Unknown records are ignored, so Remove is idempotent.
func (c *Catalog) Remove(routine string, recs ...Record) error {
	if len(recs) == 0 {
		return nil
	}
	l := c.ledgerFor(routine)
	l.mu.Lock()
	defer l.mu.Unlock()

	drop := make(map[int64]struct{}, len(recs))
	for _, r := range recs {
		drop[r.Timestamp.UnixNano()] = struct{}{}
	}

	current := l.snapshot()
	next := make([]Record, 0, len(current))
	var removed []Record
	for _, r := range current {
		if _, ok := drop[r.Timestamp.UnixNano()]; ok {
			removed = append(removed, r)
			continue
		}
		next = append(next, r)
	}
	if len(removed) == 0 {
		return nil
	}

	if c.store != nil {
		if err := c.store.Delete(removed...); err != nil {
			return fmt.Errorf("delete catalog records: %w", err)
		}
	}
	l.records.Store(&next)
	publishSize(routine, next)
	return nil
}

// Truncate removes every record of a routine.
func (c *Catalog) Truncate(routine string) error {
	return c.Remove(routine, c.All(routine)...)
}

// All returns the routine's records in timestamp order.
func (c *Catalog) All(routine string) []Record {
	return append([]Record(nil), c.existing(routine)...)
}

// Last returns the newest record of the routine.
func (c *Catalog) Last(routine string) (Record, bool) {
	recs := c.existing(routine)
	if len(recs) == 0 {
		return Record{}, false
	}
	return recs[len(recs)-1], true
}

// Routines lists every routine with a ledger, sorted.
func (c *Catalog) Routines() []string {
	var out []string
	c.ledgers.Range(func(k, v any) bool {
		if len(v.(*ledger).snapshot()) > 0 {
			out = append(out, k.(string))
		}
		return true
	})
	sort.Strings(out)
	return out
}

// FullsInRange returns fulls with from <= ts <= to. Nil bounds are open.
func (c *Catalog) FullsInRange(routine string, from, to *time.Time) []Record {
	return filterRange(c.existing(routine), KindFull, from, to)
}

// IncrementalsInRange returns incrementals with from <= ts <= to. Nil bounds are open.
func (c *Catalog) IncrementalsInRange(routine string, from, to *time.Time) []Record {
	return filterRange(c.existing(routine), KindIncremental, from, to)
}

// LatestFullAtOrBefore returns the newest full with ts <= t.
func (c *Catalog) LatestFullAtOrBefore(routine string, t time.Time) (Record, bool) {
	recs := c.existing(routine)
	end := upperBound(recs, t)
	for i := end - 1; i >= 0; i-- {
		if recs[i].Kind == KindFull {
			return recs[i], true
		}
	}
	return Record{}, false
}

// IncrementalsBetween returns incrementals with fullTs < ts <= targetTs, ascending.
func (c *Catalog) IncrementalsBetween(routine string, fullTs, targetTs time.Time) []Record {
	recs := c.existing(routine)
	start := upperBound(recs, fullTs)
	end := upperBound(recs, targetTs)
	var out []Record
	for i := start; i < end; i++ {
		if recs[i].Kind == KindIncremental {
			out = append(out, recs[i])
		}
	}
	return out
}

// upperBound returns the index of the first record with ts > t.
func upperBound(recs []Record, t time.Time) int {
	return sort.Search(len(recs), func(i int) bool { return recs[i].Timestamp.After(t) })
}

func filterRange(recs []Record, kind Kind, from, to *time.Time) []Record {
	start := 0
	if from != nil {
		start = sort.Search(len(recs), func(i int) bool { return !recs[i].Timestamp.Before(*from) })
	}
	end := len(recs)
	if to != nil {
		end = upperBound(recs, *to)
	}
	var out []Record
	for i := start; i < end; i++ {
		if recs[i].Kind == kind {
			out = append(out, recs[i])
		}
	}
	return out
}

func hasFull(recs []Record) bool {
	for i := range recs {
		if recs[i].Kind == KindFull {
			return true
		}
	}
	return false
}

func publishSize(routine string, recs []Record) {
	fulls := 0
	for i := range recs {
		if recs[i].Kind == KindFull {
			fulls++
		}
	}
	metrics.SetCatalogSize(routine, fulls, len(recs)-fulls)
}
