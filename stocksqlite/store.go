// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package stocksqlite is the offline-first write path of the inventory client.
//
// Every mutation is written to a local SQLite store together with a pending
// action in the same transaction. When the caller reports connectivity the
// change is pushed to the remote store right away; otherwise (or when the push
// fails) the pending action is replayed later by the SyncEngine, which also
// refreshes the local cache from the authoritative remote state.
package stocksqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/ndomog/stocksync/stocksync"
)

// ErrNotFound is returned when an entity does not exist in the local store
var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LocalStore is the durable on-device cache of entities. It owns the SQLite
// handle shared with the pending action queue.
type LocalStore struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu sync.Mutex // Serialize write transactions to prevent SQLite locking issues

	hubs map[string]*hub
}

// OpenLocalStore prepares db (schema, pragmas) and returns a store on top of it
func OpenLocalStore(db *sql.DB, logger *slog.Logger) (*LocalStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// A single connection keeps ":memory:" databases coherent and gives SQLite one writer.
	db.SetMaxOpenConns(1)

	if err := initializeDatabase(db); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &LocalStore{
		db:     db,
		logger: logger,
		hubs: map[string]*hub{
			stocksync.TableItems:      newHub(),
			stocksync.TableCategories: newHub(),
		},
	}, nil
}

// DB returns the underlying database handle
func (s *LocalStore) DB() *sql.DB {
	return s.db
}

// initializeDatabase creates entity and queue tables (private function)
func initializeDatabase(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			category            TEXT NOT NULL DEFAULT '',
			category_id         TEXT NOT NULL DEFAULT '',
			details             TEXT NOT NULL DEFAULT '',
			photo_url           TEXT NOT NULL DEFAULT '',
			buying_price        REAL NOT NULL DEFAULT 0,
			selling_price       REAL NOT NULL DEFAULT 0,
			quantity            INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			is_deleted          INTEGER NOT NULL DEFAULT 0,
			created_by          TEXT NOT NULL DEFAULT '',
			created_at          TEXT NOT NULL,
			updated_at          TEXT NOT NULL,
			deleted_at          TEXT,
			deleted_by          TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS categories (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			is_deleted  INTEGER NOT NULL DEFAULT 0,
			created_by  TEXT NOT NULL DEFAULT '',
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			deleted_at  TEXT,
			deleted_by  TEXT NOT NULL DEFAULT ''
		)`,

		// Pending action log, FIFO by id
		`CREATE TABLE IF NOT EXISTS pending_actions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			kind        TEXT NOT NULL CHECK (kind IN ('create','update','update_field','soft_delete')),
			table_name  TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			payload     TEXT NOT NULL,
			enqueued_at TEXT NOT NULL,
			synced      INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS pending_actions_target_idx
			ON pending_actions (table_name, target_id, id) WHERE synced = 0`,

		// Failed delivery attempts, kept apart so action rows stay immutable
		`CREATE TABLE IF NOT EXISTS pending_attempts (
			action_id       INTEGER PRIMARY KEY,
			attempts        INTEGER NOT NULL DEFAULT 0,
			last_attempt_at TEXT NOT NULL
		)`,

		// Actions that exhausted their attempts
		`CREATE TABLE IF NOT EXISTS parked_actions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			action_id   INTEGER NOT NULL,
			kind        TEXT NOT NULL,
			table_name  TEXT NOT NULL,
			target_id   TEXT NOT NULL,
			payload     TEXT NOT NULL,
			enqueued_at TEXT NOT NULL,
			parked_at   TEXT NOT NULL,
			attempts    INTEGER NOT NULL,
			last_error  TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create local table: %w", err)
		}
	}
	return nil
}

// writeTx runs fn in a write transaction and notifies observers of table after commit
func (s *LocalStore) writeTx(ctx context.Context, table string, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if h, ok := s.hubs[table]; ok {
		h.notify()
	}
	return nil
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
