// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package events

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/jobs"
)

// Topics.
const (
	TopicJobs    = "backstop.jobs"
	TopicCatalog = "backstop.catalog"
)

// Event types.
const (
	TypeJobFinished    = "job.finished"
	TypeBackupAppended = "backup.appended"
	TypeBackupsPruned  = "backups.pruned"
)

// JobEvent carries the final snapshot of a job.
type JobEvent struct {
	EventID   string        `json:"event_id"`
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Job       jobs.Snapshot `json:"job"`
}

// CatalogEvent describes backups added to or removed from the catalog.
type CatalogEvent struct {
	EventID   string           `json:"event_id"`
	Type      string           `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Routine   string           `json:"routine"`
	Backups   []catalog.Record `json:"backups"`
	// Failed counts backups a prune pass could not delete.
	Failed int `json:"failed,omitempty"`
}

func newJobEvent(s jobs.Snapshot) *JobEvent {
	return &JobEvent{
		EventID:   uuid.NewString(),
		Type:      TypeJobFinished,
		Timestamp: time.Now().UTC(),
		Job:       s,
	}
}

func newCatalogEvent(typ, routine string, backups []catalog.Record) *CatalogEvent {
	return &CatalogEvent{
		EventID:   uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Routine:   routine,
		Backups:   backups,
	}
}

// DecodeJobEvent parses a backstop.jobs payload.
func DecodeJobEvent(data []byte) (*JobEvent, error) {
	var ev JobEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal job event: %w", err)
	}
	return &ev, nil
}

// DecodeCatalogEvent parses a backstop.catalog payload.
func DecodeCatalogEvent(data []byte) (*CatalogEvent, error) {
	var ev CatalogEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("unmarshal catalog event: %w", err)
	}
	return &ev, nil
}
