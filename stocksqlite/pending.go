// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PendingQueue is the durable, FIFO log of mutations not yet confirmed by the
// remote store. It shares the LocalStore's database so an entity write and
// its action can commit together.
type PendingQueue struct {
	store       *LocalStore
	maxAttempts int
	now         func() time.Time
}

// ParkedAction is an action that exhausted its delivery attempts
type ParkedAction struct {
	ID        int64
	Action    PendingAction
	ParkedAt  time.Time
	Attempts  int
	LastError string
}

// NewPendingQueue returns a queue on top of store. maxAttempts <= 0 never parks.
func NewPendingQueue(store *LocalStore, maxAttempts int, now func() time.Time) *PendingQueue {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &PendingQueue{store: store, maxAttempts: maxAttempts, now: now}
}

// Enqueue appends an action and returns its serial id
func (q *PendingQueue) Enqueue(ctx context.Context, a PendingAction) (int64, error) {
	var id int64
	err := q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		var err error
		id, err = enqueueTx(ctx, tx, a)
		return err
	})
	return id, err
}

// enqueueTx appends an action inside the caller's transaction
func enqueueTx(ctx context.Context, tx querier, a PendingAction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO pending_actions (kind, table_name, target_id, payload, enqueued_at, synced)
		VALUES (?, ?, ?, ?, ?, 0)`,
		string(a.Kind), a.Table, a.TargetID, string(a.Payload), formatTime(a.EnqueuedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s %s/%s: %w", a.Kind, a.Table, a.TargetID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read pending action id: %w", err)
	}
	return id, nil
}

// ListPending returns unsynced actions in enqueue order
func (q *PendingQueue) ListPending(ctx context.Context) ([]PendingAction, error) {
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT id, kind, table_name, target_id, payload, enqueued_at, synced
		FROM pending_actions
		WHERE synced = 0
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending actions: %w", err)
	}
	defer rows.Close()

	actions := []PendingAction{}
	for rows.Next() {
		var (
			a          PendingAction
			kind       string
			payload    string
			enqueuedAt string
			synced     int
		)
		if err := rows.Scan(&a.ID, &kind, &a.Table, &a.TargetID, &payload, &enqueuedAt, &synced); err != nil {
			return nil, fmt.Errorf("failed to scan pending action: %w", err)
		}
		a.Kind = ActionKind(kind)
		a.Payload = []byte(payload)
		a.Synced = synced != 0
		if a.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending actions: %w", err)
	}
	return actions, nil
}

// MarkSynced flags an action as confirmed. Marking twice is a no-op.
func (q *PendingQueue) MarkSynced(ctx context.Context, id int64) error {
	return q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE pending_actions SET synced = 1 WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to mark action %d synced: %w", id, err)
		}
		return nil
	})
}

// DeleteSynced removes every confirmed action and returns how many were removed
func (q *PendingQueue) DeleteSynced(ctx context.Context) (int64, error) {
	var n int64
	err := q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pending_attempts
			WHERE action_id IN (SELECT id FROM pending_actions WHERE synced = 1)`); err != nil {
			return fmt.Errorf("failed to delete attempts of synced actions: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE synced = 1`)
		if err != nil {
			return fmt.Errorf("failed to delete synced actions: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// complete marks one action synced and compacts it immediately
func (q *PendingQueue) complete(ctx context.Context, id int64) error {
	return q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_attempts WHERE action_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete attempts of action %d: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete action %d: %w", id, err)
		}
		return nil
	})
}

// Count returns the number of unsynced actions
func (q *PendingQueue) Count(ctx context.Context) (int, error) {
	var n int
	if err := q.store.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_actions WHERE synced = 0`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pending actions: %w", err)
	}
	return n, nil
}

// IsPending reports whether the action still exists unsynced
func (q *PendingQueue) IsPending(ctx context.Context, id int64) (bool, error) {
	var one int
	err := q.store.db.QueryRowContext(ctx, `SELECT 1 FROM pending_actions WHERE id = ? AND synced = 0`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check action %d: %w", id, err)
	}
	return true, nil
}

// HasPendingBefore reports whether an older unsynced action targets the same entity
func (q *PendingQueue) HasPendingBefore(ctx context.Context, table, targetID string, id int64) (bool, error) {
	var one int
	err := q.store.db.QueryRowContext(ctx, `
		SELECT 1 FROM pending_actions
		WHERE table_name = ? AND target_id = ? AND id < ? AND synced = 0
		LIMIT 1`, table, targetID, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check earlier actions of %s/%s: %w", table, targetID, err)
	}
	return true, nil
}

// Attempts returns the number of failed deliveries recorded for an action
func (q *PendingQueue) Attempts(ctx context.Context, id int64) (int, error) {
	var n int
	err := q.store.db.QueryRowContext(ctx, `SELECT attempts FROM pending_attempts WHERE action_id = ?`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read attempts of action %d: %w", id, err)
	}
	return n, nil
}

// RecordFailure counts a failed delivery. Once the count reaches the limit the
// action moves to the parked table and parked is true.
func (q *PendingQueue) RecordFailure(ctx context.Context, a PendingAction, cause error) (parked bool, err error) {
	now := q.now()
	err = q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO pending_attempts (action_id, attempts, last_attempt_at) VALUES (?, 1, ?)
			ON CONFLICT(action_id) DO UPDATE SET
				attempts = attempts + 1,
				last_attempt_at = excluded.last_attempt_at`, a.ID, formatTime(now)); err != nil {
			return fmt.Errorf("failed to record attempt of action %d: %w", a.ID, err)
		}
		if q.maxAttempts <= 0 {
			return nil
		}

		var attempts int
		if err := tx.QueryRowContext(ctx, `SELECT attempts FROM pending_attempts WHERE action_id = ?`, a.ID).Scan(&attempts); err != nil {
			return fmt.Errorf("failed to read attempts of action %d: %w", a.ID, err)
		}
		if attempts < q.maxAttempts {
			return nil
		}
		parked = true
		return parkTx(ctx, tx, a, attempts, cause, now)
	})
	if err != nil {
		return false, err
	}
	return parked, nil
}

// Park moves an action to the parked table regardless of its attempt count
func (q *PendingQueue) Park(ctx context.Context, a PendingAction, cause error) error {
	return q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		attempts := 0
		err := tx.QueryRowContext(ctx, `SELECT attempts FROM pending_attempts WHERE action_id = ?`, a.ID).Scan(&attempts)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to read attempts of action %d: %w", a.ID, err)
		}
		return parkTx(ctx, tx, a, attempts+1, cause, q.now())
	})
}

func parkTx(ctx context.Context, tx *sql.Tx, a PendingAction, attempts int, cause error, at time.Time) error {
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO parked_actions (action_id, kind, table_name, target_id, payload, enqueued_at, parked_at, attempts, last_error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, string(a.Kind), a.Table, a.TargetID, string(a.Payload), formatTime(a.EnqueuedAt),
		formatTime(at), attempts, lastError); err != nil {
		return fmt.Errorf("failed to park action %d: %w", a.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_attempts WHERE action_id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to delete attempts of action %d: %w", a.ID, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_actions WHERE id = ?`, a.ID); err != nil {
		return fmt.Errorf("failed to delete parked action %d: %w", a.ID, err)
	}
	return nil
}

// ListParked returns parked actions, oldest first
func (q *PendingQueue) ListParked(ctx context.Context) ([]ParkedAction, error) {
	rows, err := q.store.db.QueryContext(ctx, `
		SELECT id, action_id, kind, table_name, target_id, payload, enqueued_at, parked_at, attempts, last_error
		FROM parked_actions ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query parked actions: %w", err)
	}
	defer rows.Close()

	parked := []ParkedAction{}
	for rows.Next() {
		p, err := scanParked(rows)
		if err != nil {
			return nil, err
		}
		parked = append(parked, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate parked actions: %w", err)
	}
	return parked, nil
}

// Requeue moves a parked action back to the tail of the queue with a fresh
// id and attempt count, and returns the new id
func (q *PendingQueue) Requeue(ctx context.Context, parkedID int64) (int64, error) {
	var id int64
	err := q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT id, action_id, kind, table_name, target_id, payload, enqueued_at, parked_at, attempts, last_error
			FROM parked_actions WHERE id = ?`, parkedID)
		p, err := scanParked(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("parked action %d: %w", parkedID, ErrNotFound)
		}
		if err != nil {
			return err
		}
		a := p.Action
		a.EnqueuedAt = q.now()
		if id, err = enqueueTx(ctx, tx, a); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM parked_actions WHERE id = ?`, parkedID); err != nil {
			return fmt.Errorf("failed to delete parked action %d: %w", parkedID, err)
		}
		return nil
	})
	return id, err
}

// DiscardParked drops a parked action for good
func (q *PendingQueue) DiscardParked(ctx context.Context, parkedID int64) error {
	return q.store.writeTx(ctx, "", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM parked_actions WHERE id = ?`, parkedID)
		if err != nil {
			return fmt.Errorf("failed to discard parked action %d: %w", parkedID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("parked action %d: %w", parkedID, ErrNotFound)
		}
		return nil
	})
}

func scanParked(r rowScanner) (ParkedAction, error) {
	var (
		p                    ParkedAction
		kind, payload        string
		enqueuedAt, parkedAt string
	)
	err := r.Scan(&p.ID, &p.Action.ID, &kind, &p.Action.Table, &p.Action.TargetID, &payload,
		&enqueuedAt, &parkedAt, &p.Attempts, &p.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return p, err
		}
		return p, fmt.Errorf("failed to scan parked action: %w", err)
	}
	p.Action.Kind = ActionKind(kind)
	p.Action.Payload = []byte(payload)
	if p.Action.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
		return p, err
	}
	if p.ParkedAt, err = parseTime(parkedAt); err != nil {
		return p, err
	}
	return p, nil
}
