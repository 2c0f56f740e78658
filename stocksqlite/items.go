// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ndomog/stocksync/stocksync"
)

const itemColumns = `id, name, category, category_id, details, photo_url, buying_price, selling_price,
	quantity, low_stock_threshold, is_deleted, created_by, created_at, updated_at, deleted_at, deleted_by`

// UpsertItems writes many items in one transaction, replacing rows by id
func (s *LocalStore) UpsertItems(ctx context.Context, items []stocksync.Item) error {
	if len(items) == 0 {
		return nil
	}
	return s.writeTx(ctx, stocksync.TableItems, func(tx *sql.Tx) error {
		for i := range items {
			if err := upsertItem(ctx, tx, &items[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertItem inserts or replaces a single item
func (s *LocalStore) UpsertItem(ctx context.Context, item stocksync.Item) error {
	return s.writeTx(ctx, stocksync.TableItems, func(tx *sql.Tx) error {
		return upsertItem(ctx, tx, &item)
	})
}

// GetItem returns the item with id, soft-deleted or not
func (s *LocalStore) GetItem(ctx context.Context, id string) (stocksync.Item, error) {
	return getItem(ctx, s.db, id)
}

// ListItems returns non-deleted items ordered by name
func (s *LocalStore) ListItems(ctx context.Context) ([]stocksync.Item, error) {
	return queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items WHERE is_deleted = 0 ORDER BY name, id`)
}

// ListAllItems returns every item including soft-deleted ones
func (s *LocalStore) ListAllItems(ctx context.Context) ([]stocksync.Item, error) {
	return queryItems(ctx, s.db, `SELECT `+itemColumns+` FROM items ORDER BY name, id`)
}

// SoftDeleteItem flags the item as deleted and records who deleted it
func (s *LocalStore) SoftDeleteItem(ctx context.Context, id string, at time.Time, actor string) error {
	return s.writeTx(ctx, stocksync.TableItems, func(tx *sql.Tx) error {
		return softDeleteItem(ctx, tx, id, at, actor)
	})
}

// UpdateItemQuantity sets the quantity of a single item
func (s *LocalStore) UpdateItemQuantity(ctx context.Context, id string, quantity int, at time.Time) error {
	return s.writeTx(ctx, stocksync.TableItems, func(tx *sql.Tx) error {
		return updateItemQuantity(ctx, tx, id, quantity, at)
	})
}

func upsertItem(ctx context.Context, q querier, it *stocksync.Item) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			category_id = excluded.category_id,
			details = excluded.details,
			photo_url = excluded.photo_url,
			buying_price = excluded.buying_price,
			selling_price = excluded.selling_price,
			quantity = excluded.quantity,
			low_stock_threshold = excluded.low_stock_threshold,
			is_deleted = excluded.is_deleted,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by`,
		it.ID, it.Name, it.Category, it.CategoryID, it.Details, it.PhotoURL, it.BuyingPrice, it.SellingPrice,
		it.Quantity, it.LowStockThreshold, boolToInt(it.IsDeleted), it.CreatedBy,
		formatTime(it.CreatedAt), formatTime(it.UpdatedAt), formatNullTime(it.DeletedAt), it.DeletedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert item %s: %w", it.ID, err)
	}
	return nil
}

// updateItem rewrites the mutable columns of an existing item, leaving identity and creation metadata alone
func updateItem(ctx context.Context, q querier, it *stocksync.Item) error {
	res, err := q.ExecContext(ctx, `
		UPDATE items SET name = ?, category = ?, category_id = ?, details = ?, photo_url = ?,
			buying_price = ?, selling_price = ?, quantity = ?, low_stock_threshold = ?, updated_at = ?
		WHERE id = ?`,
		it.Name, it.Category, it.CategoryID, it.Details, it.PhotoURL,
		it.BuyingPrice, it.SellingPrice, it.Quantity, it.LowStockThreshold, formatTime(it.UpdatedAt), it.ID)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", it.ID, err)
	}
	return expectOneRow(res, stocksync.TableItems, it.ID)
}

func softDeleteItem(ctx context.Context, q querier, id string, at time.Time, actor string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE items SET is_deleted = 1, deleted_at = ?, deleted_by = ?, updated_at = ?
		WHERE id = ?`, formatTime(at), actor, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to soft delete item %s: %w", id, err)
	}
	return expectOneRow(res, stocksync.TableItems, id)
}

func updateItemQuantity(ctx context.Context, q querier, id string, quantity int, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE items SET quantity = ?, updated_at = ? WHERE id = ?`,
		quantity, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to update quantity of item %s: %w", id, err)
	}
	return expectOneRow(res, stocksync.TableItems, id)
}

func getItem(ctx context.Context, q querier, id string) (stocksync.Item, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stocksync.Item{}, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return it, err
}

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]stocksync.Item, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	items := []stocksync.Item{}
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate items: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(r rowScanner) (stocksync.Item, error) {
	var (
		it                   stocksync.Item
		isDeleted            int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := r.Scan(&it.ID, &it.Name, &it.Category, &it.CategoryID, &it.Details, &it.PhotoURL,
		&it.BuyingPrice, &it.SellingPrice, &it.Quantity, &it.LowStockThreshold, &isDeleted,
		&it.CreatedBy, &createdAt, &updatedAt, &deletedAt, &it.DeletedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return it, err
		}
		return it, fmt.Errorf("failed to scan item: %w", err)
	}
	it.IsDeleted = isDeleted != 0
	if it.CreatedAt, err = parseTime(createdAt); err != nil {
		return it, err
	}
	if it.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return it, err
	}
	if it.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return it, err
	}
	return it, nil
}

func expectOneRow(res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", table, id, ErrNotFound)
	}
	return nil
}
