// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/backstop/internal/backup"
	"github.com/tomtom215/backstop/internal/catalog"
	"github.com/tomtom215/backstop/internal/jobs"
)

func newTestPublisher(t *testing.T) *Publisher {
	t.Helper()
	p, err := NewPublisher(Config{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func subscribe(t *testing.T, p *Publisher, topic string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := p.Subscribe(ctx, topic)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return ch
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestJobFinishedEvent(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t)
	ch := subscribe(t, p, TopicJobs)

	p.JobFinished(jobs.Snapshot{ID: "j1", Routine: "orders", Kind: jobs.KindBackupFull, Status: jobs.StatusDone, ReadRecords: 42})

	msg := receive(t, ch)
	ev, err := DecodeJobEvent(msg.Payload)
	if err != nil {
		t.Fatalf("DecodeJobEvent: %v", err)
	}
	if ev.Type != TypeJobFinished || ev.Job.ID != "j1" || ev.Job.ReadRecords != 42 {
		t.Errorf("event = %+v", ev)
	}
	if msg.UUID != ev.EventID {
		t.Errorf("message id %s != event id %s", msg.UUID, ev.EventID)
	}
}

func TestCatalogEvents(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t)
	ch := subscribe(t, p, TopicCatalog)

	rec := catalog.Record{RoutineID: "orders", Kind: catalog.KindFull, Timestamp: time.Unix(100, 0).UTC(), ArtifactKey: "orders/full/100"}
	p.BackupAppended(rec)

	ev, err := DecodeCatalogEvent(receive(t, ch).Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeBackupAppended || ev.Routine != "orders" || len(ev.Backups) != 1 || ev.Backups[0].ArtifactKey != rec.ArtifactKey {
		t.Errorf("appended event = %+v", ev)
	}

	// Empty passes are not published.
	p.BackupsPruned(backup.PruneReport{Routine: "orders"})
	p.BackupsPruned(backup.PruneReport{
		Routine: "orders",
		Deleted: []backup.PrunedBackup{{Record: rec, Objects: 3}},
		Failed:  []catalog.Record{rec},
	})

	ev, err = DecodeCatalogEvent(receive(t, ch).Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Type != TypeBackupsPruned || len(ev.Backups) != 1 || ev.Failed != 1 {
		t.Errorf("pruned event = %+v", ev)
	}
}

func TestTrackerHookPublishes(t *testing.T) {
	t.Parallel()
	p := newTestPublisher(t)
	ch := subscribe(t, p, TopicJobs)

	tracker := jobs.NewTracker(jobs.WithFinishHook(p.JobFinished))
	job, err := tracker.Start(context.Background(), "orders", jobs.KindRestoreTimestamp, 10)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	job.Finish(errors.New("boom"))

	ev, err := DecodeJobEvent(receive(t, ch).Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Job.Status != jobs.StatusFailed || ev.Job.Error != "boom" {
		t.Errorf("job = %+v", ev.Job)
	}
}

func TestPublishAfterClose(t *testing.T) {
	t.Parallel()
	p, err := NewPublisher(Config{})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := p.Publish(context.Background(), TopicJobs, "id", struct{}{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish error = %v, want ErrClosed", err)
	}
	if _, err := p.Subscribe(context.Background(), TopicJobs); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe error = %v, want ErrClosed", err)
	}
	// Hooks swallow the error.
	p.JobFinished(jobs.Snapshot{ID: "late"})
}
