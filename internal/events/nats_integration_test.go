// Backstop - Backup Orchestration and Point-in-Time Restore
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backstop

//go:build integration

package events

import (
	"errors"
	"testing"
	"time"

	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/backstop/internal/jobs"
	"github.com/tomtom215/backstop/internal/testinfra"
)

func TestNATSPublish(t *testing.T) {
	url := testinfra.NewNATSContainer(t)

	nc, err := natsgo.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync(TopicJobs)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := nc.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	p, err := NewPublisher(Config{NATSURL: url, MaxReconnects: 1, ReconnectWait: time.Second})
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	wmCh, err := p.Subscribe(t.Context(), TopicJobs)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	p.JobFinished(jobs.Snapshot{ID: "j1", Routine: "orders", Kind: jobs.KindBackupFull, Status: jobs.StatusDone})

	msg, err := sub.NextMsg(10 * time.Second)
	if err != nil {
		t.Fatalf("NextMsg: %v", err)
	}
	ev, err := DecodeJobEvent(msg.Data)
	if err != nil {
		t.Fatalf("DecodeJobEvent: %v", err)
	}
	if ev.Job.ID != "j1" || ev.Type != TypeJobFinished {
		t.Errorf("event = %+v", ev)
	}
	if got := msg.Header.Get(natsgo.MsgIdHdr); got != ev.EventID {
		t.Errorf("%s = %q, want %q", natsgo.MsgIdHdr, got, ev.EventID)
	}

	select {
	case wm := <-wmCh:
		wm.Ack()
		if wm.UUID != ev.EventID {
			t.Errorf("watermill message id = %s, want %s", wm.UUID, ev.EventID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("watermill subscriber received nothing")
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if _, err := p.Subscribe(t.Context(), TopicJobs); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after Close = %v, want ErrClosed", err)
	}
}
