package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"netsync/internal/journal"
	"netsync/internal/telemetry"
)

type recordingStore struct {
	batches [][]journal.Entry
	fail    error
}

func (s *recordingStore) RecordCommits(_ context.Context, _ string, entries []journal.Entry) (int, error) {
	if s.fail != nil {
		return 0, s.fail
	}
	s.batches = append(s.batches, entries)
	return len(entries), nil
}

func TestJournalFlusherAdvancesWatermark(t *testing.T) {
	j := journal.New(16, time.Minute)
	store := &recordingStore{}
	flusher := &journalFlusher{journal: j, store: store, run: "run", logger: telemetry.Discard}

	j.Record(journal.Entry{Entity: "e", Field: "color", Version: 1})
	j.Record(journal.Entry{Entity: "e", Field: "color", Version: 2})

	inserted, err := flusher.Flush(context.Background())
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if inserted != 2 || len(store.batches) != 1 {
		t.Fatalf("expected one batch of 2, got %d entries in %d batches", inserted, len(store.batches))
	}

	if inserted, err := flusher.Flush(context.Background()); err != nil || inserted != 0 {
		t.Fatalf("expected nothing left to flush, got %d (%v)", inserted, err)
	}

	j.Record(journal.Entry{Entity: "e", Field: "color", Version: 3})
	if _, err := flusher.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(store.batches) != 2 || len(store.batches[1]) != 1 || store.batches[1][0].Version != 3 {
		t.Fatalf("expected only the new entry, got %+v", store.batches)
	}
}

func TestJournalFlusherKeepsEntriesOnFailure(t *testing.T) {
	j := journal.New(16, time.Minute)
	store := &recordingStore{fail: errors.New("disk full")}
	flusher := &journalFlusher{journal: j, store: store, run: "run", logger: telemetry.Discard}

	j.Record(journal.Entry{Entity: "e", Field: "color", Version: 1})
	if _, err := flusher.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := len(j.Unflushed()); got != 1 {
		t.Fatalf("expected entry to remain unflushed, got %d", got)
	}
}
