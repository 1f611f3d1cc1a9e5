package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"netsync/internal/journal"
)

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "commits.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestRecordAndListCommits(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	now := time.Date(2026, time.March, 3, 12, 0, 0, 0, time.UTC)
	entries := []journal.Entry{
		{Sequence: 1, Tick: 10, Entity: "e-1", Field: "color", Origin: "server", Version: 1, Data: []byte{255, 0, 0, 255}, RecordedAt: now},
		{Sequence: 2, Tick: 11, Entity: "e-1", Field: "transform", Origin: "p-1", Version: 4, Remote: true, Data: []byte{1, 2}, RecordedAt: now.Add(time.Second)},
		{Sequence: 3, Tick: 12, Entity: "e-2", Field: "color", Origin: "server", Version: 1, RecordedAt: now.Add(2 * time.Second)},
	}
	inserted, err := store.RecordCommits(context.Background(), "run-a", entries)
	if err != nil {
		t.Fatalf("record commits: %v", err)
	}
	if inserted != 3 {
		t.Fatalf("inserted = %d, want 3", inserted)
	}

	got, err := store.ListCommits(context.Background(), CommitFilter{Run: "run-a", Entity: "e-1"})
	if err != nil {
		t.Fatalf("list commits: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Sequence != 2 || got[0].Field != "transform" || !got[0].Remote || got[0].Version != 4 {
		t.Fatalf("unexpected newest commit: %+v", got[0])
	}
	if !got[0].RecordedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("recorded_at = %v, want %v", got[0].RecordedAt, now.Add(time.Second))
	}
	if !bytes.Equal(got[1].Data, []byte{255, 0, 0, 255}) {
		t.Fatalf("data = %v", got[1].Data)
	}
}

func TestRecordCommitsIsIdempotent(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	entries := []journal.Entry{
		{Sequence: 1, Entity: "e", Field: "color", Origin: "server", Version: 1, RecordedAt: time.Now()},
		{Sequence: 2, Entity: "e", Field: "color", Origin: "server", Version: 2, RecordedAt: time.Now()},
	}
	if _, err := store.RecordCommits(context.Background(), "run", entries); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	inserted, err := store.RecordCommits(context.Background(), "run", entries)
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if inserted != 0 {
		t.Fatalf("expected duplicate flush to insert nothing, got %d", inserted)
	}
	count, err := store.CountCommits(context.Background(), "run")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
	if other, _ := store.CountCommits(context.Background(), "other"); other != 0 {
		t.Fatalf("expected runs to be isolated, got %d", other)
	}
}

func TestRecordCommitsValidatesInput(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	if _, err := store.RecordCommits(context.Background(), " ", []journal.Entry{{Sequence: 1}}); err == nil {
		t.Fatal("expected run id error")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := store.RecordCommits(ctx, "run", []journal.Entry{{Sequence: 1}}); err == nil {
		t.Fatal("expected canceled context error")
	}
}

func TestApplyMigrationsSkipsAlreadyApplied(t *testing.T) {
	t.Parallel()

	db, err := sql.Open("sqlite", "file::memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	migrations := fstest.MapFS{
		"001_create.sql": &fstest.MapFile{
			Data: []byte("-- +migrate Up\nCREATE TABLE items(id TEXT PRIMARY KEY);\n-- +migrate Down\nDROP TABLE items;"),
		},
	}
	for i := 0; i < 2; i++ {
		if err := applyMigrations(context.Background(), db, migrations); err != nil {
			t.Fatalf("apply migrations (pass %d): %v", i+1, err)
		}
	}
	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + migrationTable).Scan(&rows); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected single migration row after replay, got %d", rows)
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	got := upSection("-- +migrate Up\nCREATE TABLE a(x);\n-- +migrate Down\nDROP TABLE a;")
	if got != "\nCREATE TABLE a(x);\n" {
		t.Fatalf("up section = %q", got)
	}
	if plain := upSection("CREATE TABLE b(x);"); plain != "CREATE TABLE b(x);" {
		t.Fatalf("expected content without markers to pass through, got %q", plain)
	}
}
