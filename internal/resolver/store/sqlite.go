// Package store persists resolution cache snapshots in SQLite so a restarted
// server starts with the still-live part of its previous cache.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"pylon/internal/resolver"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersion = 1

// ErrClosed is returned when using a closed store.
var ErrClosed = errors.New("store: closed")

// SQLiteStore holds one snapshot of resolution cache entries.
type SQLiteStore struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// Open opens or creates the database at path.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}
	if version == schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	queries := []string{
		// Older layouts only ever held a disposable snapshot.
		`DROP TABLE IF EXISTS resolutions`,

		// One row per cached resolution.
		// - bucket: time bucket the entry was created in
		// - full_name, module_path, line, col: the candidate identity
		`CREATE TABLE resolutions (
            full_name TEXT NOT NULL,
            module_path TEXT NOT NULL,
            line INTEGER NOT NULL,
            col INTEGER NOT NULL,
            bucket INTEGER NOT NULL,
            value TEXT NOT NULL,
            PRIMARY KEY (full_name, module_path, line, col)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_resolutions_bucket
            ON resolutions(bucket)`,

		fmt.Sprintf("PRAGMA user_version = %d", schemaVersion),
	}
	for _, q := range queries {
		if _, err := tx.Exec(q); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return tx.Commit()
}

// Save replaces the stored snapshot with entries.
func (s *SQLiteStore) Save(ctx context.Context, entries []resolver.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM resolutions`); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO resolutions (full_name, module_path, line, col, bucket, value)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(full_name, module_path, line, col) DO UPDATE SET
            bucket = excluded.bucket,
            value = excluded.value
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.Key.FullName, e.Key.ModulePath, e.Key.Line, e.Key.Column, e.Bucket, e.Value,
		); err != nil {
			return fmt.Errorf("failed to insert %s: %w", e.Key, err)
		}
	}

	return tx.Commit()
}

// Load returns the stored entries created in minBucket or later.
func (s *SQLiteStore) Load(ctx context.Context, minBucket int64) ([]resolver.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT full_name, module_path, line, col, bucket, value
        FROM resolutions
        WHERE bucket >= ?
        ORDER BY bucket, full_name
    `, minBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	defer rows.Close()

	var entries []resolver.Entry
	for rows.Next() {
		var e resolver.Entry
		if err := rows.Scan(
			&e.Key.FullName, &e.Key.ModulePath, &e.Key.Line, &e.Key.Column, &e.Bucket, &e.Value,
		); err != nil {
			return nil, fmt.Errorf("failed to scan resolution: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating resolutions: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
