package app

import (
	"context"
	"time"

	"netsync/internal/journal"
	"netsync/internal/telemetry"
)

// commitStore is the durable side of the journal.
type commitStore interface {
	RecordCommits(ctx context.Context, run string, entries []journal.Entry) (int, error)
}

// journalFlusher mirrors unflushed journal entries into a commitStore.
type journalFlusher struct {
	journal *journal.Journal
	store   commitStore
	run     string
	logger  telemetry.Logger
}

// Flush writes every unflushed entry and advances the watermark on success.
func (f *journalFlusher) Flush(ctx context.Context) (int, error) {
	entries := f.journal.Unflushed()
	if len(entries) == 0 {
		return 0, nil
	}
	inserted, err := f.store.RecordCommits(ctx, f.run, entries)
	if err != nil {
		return 0, err
	}
	f.journal.MarkFlushed(entries[len(entries)-1].Sequence)
	return inserted, nil
}

// Run flushes every interval until ctx is cancelled, then flushes once more.
func (f *journalFlusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if _, err := f.Flush(final); err != nil {
				f.logger.Printf("final journal flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if _, err := f.Flush(ctx); err != nil {
				f.logger.Printf("journal flush failed: %v", err)
			}
		}
	}
}
