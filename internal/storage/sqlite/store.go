// Package sqlite persists journaled commits in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"netsync/internal/journal"
	"netsync/internal/storage/sqlite/migrations"
)

const defaultListLimit = 100

// Store persists commit journal entries.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite commit store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordCommits stores entries for run. Entries already stored are skipped,
// so flushing the same window twice is harmless. It returns the number of
// rows inserted.
func (s *Store) RecordCommits(ctx context.Context, run string, entries []journal.Entry) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	run = strings.TrimSpace(run)
	if run == "" {
		return 0, fmt.Errorf("run id is required")
	}
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin commit batch: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO commits (
		   run, sequence, tick, entity, field, origin, version, remote, data, recorded_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("prepare commit insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, entry := range entries {
		remote := 0
		if entry.Remote {
			remote = 1
		}
		_, err := stmt.ExecContext(ctx,
			run,
			int64(entry.Sequence),
			int64(entry.Tick),
			entry.Entity,
			entry.Field,
			entry.Origin,
			int64(entry.Version),
			remote,
			entry.Data,
			toMillis(entry.RecordedAt),
		)
		if err != nil {
			if isPrimaryKeyViolation(err) {
				continue
			}
			_ = tx.Rollback()
			return 0, fmt.Errorf("insert commit %d: %w", entry.Sequence, err)
		}
		inserted++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return inserted, nil
}

// CommitFilter narrows ListCommits.
type CommitFilter struct {
	Run    string
	Entity string
	Field  string
	Limit  int
}

// ListCommits returns the newest matching commits, newest first.
func (s *Store) ListCommits(ctx context.Context, filter CommitFilter) ([]journal.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	var (
		clauses []string
		args    []any
	)
	if run := strings.TrimSpace(filter.Run); run != "" {
		clauses = append(clauses, "run = ?")
		args = append(args, run)
	}
	if entity := strings.TrimSpace(filter.Entity); entity != "" {
		clauses = append(clauses, "entity = ?")
		args = append(args, entity)
	}
	if field := strings.TrimSpace(filter.Field); field != "" {
		clauses = append(clauses, "field = ?")
		args = append(args, field)
	}
	query := `SELECT sequence, tick, entity, field, origin, version, remote, data, recorded_at FROM commits`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY recorded_at DESC, sequence DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var (
			entry      journal.Entry
			sequence   int64
			tick       int64
			version    int64
			remote     int
			recordedAt int64
		)
		if err := rows.Scan(&sequence, &tick, &entry.Entity, &entry.Field, &entry.Origin, &version, &remote, &entry.Data, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		entry.Sequence = uint64(sequence)
		entry.Tick = uint64(tick)
		entry.Version = uint64(version)
		entry.Remote = remote != 0
		entry.RecordedAt = fromMillis(recordedAt)
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return out, nil
}

// CountCommits returns how many commits are stored for run.
func (s *Store) CountCommits(ctx context.Context, run string) (int, error) {
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM commits WHERE run = ?", run).Scan(&count); err != nil {
		return 0, fmt.Errorf("count commits: %w", err)
	}
	return count, nil
}

func isPrimaryKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "commits.")
}
