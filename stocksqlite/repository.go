// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndomog/stocksync/stocksync"
)

var (
	// ErrLocalWrite wraps failures to persist a mutation locally. Nothing was stored.
	ErrLocalWrite = errors.New("local write failed")
	// ErrInvalidEntity is returned for mutations that can never be valid
	ErrInvalidEntity = errors.New("invalid entity")
)

// Identity supplies the id of the signed-in user for created_by/deleted_by
type Identity interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// StaticIdentity is an Identity that always reports the same user
type StaticIdentity string

func (s StaticIdentity) CurrentUserID(context.Context) (string, error) { return string(s), nil }

// IdentityFunc adapts a function to Identity
type IdentityFunc func(ctx context.Context) (string, error)

func (f IdentityFunc) CurrentUserID(ctx context.Context) (string, error) { return f(ctx) }

// writer runs the mutation protocol shared by all entity repositories
type writer struct {
	store    *LocalStore
	queue    *PendingQueue
	remote   RemoteStore
	locks    *keyedMutex
	identity Identity
	config   *Config
	logger   *slog.Logger
}

// mutation is one local change plus the action that replays it remotely
type mutation struct {
	kind     ActionKind
	table    string
	targetID string
	// write applies the local change and returns the action payload
	write func(ctx context.Context, tx *sql.Tx) (payload any, err error)
}

func (w *writer) now() time.Time {
	return w.config.Clock()
}

func (w *writer) currentUser(ctx context.Context) (string, error) {
	if w.identity == nil {
		return "", nil
	}
	userID, err := w.identity.CurrentUserID(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to resolve current user: %w", err)
	}
	return userID, nil
}

// apply persists m and its pending action atomically, then pushes the action
// right away when online. A failed push leaves the action queued and is not
// reported to the caller.
func (w *writer) apply(ctx context.Context, m mutation, isOnline bool) error {
	unlock := w.locks.Lock(entityKey(m.table, m.targetID))
	defer unlock()

	var action PendingAction
	err := w.store.writeTx(ctx, m.table, func(tx *sql.Tx) error {
		payload, err := m.write(ctx, tx)
		if err != nil {
			return err
		}
		action, err = newAction(m.kind, m.table, m.targetID, payload, w.now())
		if err != nil {
			return err
		}
		action.ID, err = enqueueTx(ctx, tx, action)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: %s %s/%s: %w", ErrLocalWrite, m.kind, m.table, m.targetID, err)
	}

	logger := w.logger.With("action", action.String())
	if !isOnline {
		logger.Debug("Offline, action queued")
		return nil
	}

	earlier, err := w.queue.HasPendingBefore(ctx, action.Table, action.TargetID, action.ID)
	if err != nil {
		logger.Warn("Failed to check queue, action left for next drain", "error", err)
		return nil
	}
	if earlier {
		logger.Debug("Earlier action for entity still queued, deferring push to drain")
		return nil
	}

	call, err := action.decode()
	if err != nil {
		logger.Warn("Failed to decode action, left for next drain", "error", err)
		return nil
	}
	pushCtx, cancel := context.WithTimeout(ctx, w.config.RemoteTimeout)
	err = call(pushCtx, w.remote)
	cancel()
	if err != nil {
		logger.Warn("Push failed, action queued for next drain", "error", err)
		return nil
	}

	if err := w.queue.complete(ctx, action.ID); err != nil {
		// Still pending, so the next drain redelivers it
		logger.Warn("Pushed but failed to compact action", "error", err)
		return nil
	}
	logger.Debug("Action pushed")
	return nil
}

// ItemRepository is the only write path for items
type ItemRepository struct {
	w *writer
}

// Observe streams the non-deleted items, starting with the current list
func (r *ItemRepository) Observe(ctx context.Context) <-chan []stocksync.Item {
	return observe(ctx, r.w.store.hubs[stocksync.TableItems], r.w.logger, r.w.store.ListItems)
}

func (r *ItemRepository) Get(ctx context.Context, id string) (stocksync.Item, error) {
	return r.w.store.GetItem(ctx, id)
}

// List returns the cached non-deleted items
func (r *ItemRepository) List(ctx context.Context) ([]stocksync.Item, error) {
	return r.w.store.ListItems(ctx)
}

// Load refreshes the cache from the remote store when online and returns the
// non-deleted items. On a remote failure or offline the cached items are returned and fromCache
// is true.
func (r *ItemRepository) Load(ctx context.Context, isOnline bool) (items []stocksync.Item, fromCache bool, err error) {
	if isOnline {
		remoteItems, err := fetchRemote[stocksync.Item](ctx, r.w.remote, stocksync.TableItems, r.w.config.RemoteTimeout)
		if err == nil {
			if err := r.w.store.UpsertItems(ctx, remoteItems); err != nil {
				return nil, false, err
			}
			items, err = r.w.store.ListItems(ctx)
			return items, false, err
		}
		r.w.logger.Warn("Failed to load items from remote, using cache", "error", err)
	}
	items, err = r.w.store.ListItems(ctx)
	if err != nil {
		return nil, true, err
	}
	return items, true, nil
}

// Add stores a new item and queues its creation. The caller assigns the id,
// which must not exist locally yet.
func (r *ItemRepository) Add(ctx context.Context, item stocksync.Item, isOnline bool) (stocksync.Item, error) {
	if item.ID == "" {
		return item, fmt.Errorf("%w: item id is required", ErrInvalidEntity)
	}
	if item.Quantity < 0 {
		return item, fmt.Errorf("%w: negative quantity %d", ErrInvalidEntity, item.Quantity)
	}
	userID, err := r.w.currentUser(ctx)
	if err != nil {
		return item, err
	}

	now := r.w.now()
	if item.CreatedBy == "" {
		item.CreatedBy = userID
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now
	item.IsDeleted, item.DeletedAt, item.DeletedBy = false, nil, ""

	err = r.w.apply(ctx, mutation{
		kind:     KindCreate,
		table:    stocksync.TableItems,
		targetID: item.ID,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			if _, err := getItem(ctx, tx, item.ID); err == nil {
				return nil, fmt.Errorf("%w: item %s already exists", ErrInvalidEntity, item.ID)
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return item, upsertItem(ctx, tx, &item)
		},
	}, isOnline)
	return item, err
}

// Update rewrites every mutable field of an existing item
func (r *ItemRepository) Update(ctx context.Context, item stocksync.Item, isOnline bool) (stocksync.Item, error) {
	if item.Quantity < 0 {
		return item, fmt.Errorf("%w: negative quantity %d", ErrInvalidEntity, item.Quantity)
	}
	var stored stocksync.Item
	err := r.w.apply(ctx, mutation{
		kind:     KindUpdate,
		table:    stocksync.TableItems,
		targetID: item.ID,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			current, err := getItem(ctx, tx, item.ID)
			if err != nil {
				return nil, err
			}
			stored = mergeItem(current, item, r.w.now())
			return stored, updateItem(ctx, tx, &stored)
		},
	}, isOnline)
	return stored, err
}

// mergeItem copies the mutable fields of next onto current
func mergeItem(current, next stocksync.Item, at time.Time) stocksync.Item {
	current.Name = next.Name
	current.Category = next.Category
	current.CategoryID = next.CategoryID
	current.Details = next.Details
	current.PhotoURL = next.PhotoURL
	current.BuyingPrice = next.BuyingPrice
	current.SellingPrice = next.SellingPrice
	current.Quantity = next.Quantity
	current.LowStockThreshold = next.LowStockThreshold
	current.UpdatedAt = at
	return current
}

// UpdateQuantity changes only the quantity of an item
func (r *ItemRepository) UpdateQuantity(ctx context.Context, id string, quantity int, isOnline bool) error {
	if quantity < 0 {
		return fmt.Errorf("%w: negative quantity %d", ErrInvalidEntity, quantity)
	}
	return r.w.apply(ctx, mutation{
		kind:     KindUpdateField,
		table:    stocksync.TableItems,
		targetID: id,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			now := r.w.now()
			return QuantityPatch{Quantity: quantity, UpdatedAt: now}, updateItemQuantity(ctx, tx, id, quantity, now)
		},
	}, isOnline)
}

// SoftDelete flags an item as deleted by the current user. The row is kept.
func (r *ItemRepository) SoftDelete(ctx context.Context, id string, isOnline bool) error {
	userID, err := r.w.currentUser(ctx)
	if err != nil {
		return err
	}
	return r.w.apply(ctx, mutation{
		kind:     KindSoftDelete,
		table:    stocksync.TableItems,
		targetID: id,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			patch := DeletionPatch{DeletedAt: r.w.now(), DeletedBy: userID}
			return patch, softDeleteItem(ctx, tx, id, patch.DeletedAt, patch.DeletedBy)
		},
	}, isOnline)
}

// fetchRemote loads and decodes the non-deleted records of table
func fetchRemote[T any](ctx context.Context, remote RemoteStore, table string, timeout time.Duration) ([]T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	records, err := remote.SelectNonDeleted(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", table, err)
	}
	out := make([]T, 0, len(records))
	for _, raw := range records {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("failed to decode %s record: %w", table, err)
		}
		out = append(out, v)
	}
	return out, nil
}
