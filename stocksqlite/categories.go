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

const categoryColumns = `id, name, is_deleted, created_by, created_at, updated_at, deleted_at, deleted_by`

// UpsertCategories writes many categories in one transaction
func (s *LocalStore) UpsertCategories(ctx context.Context, categories []stocksync.Category) error {
	if len(categories) == 0 {
		return nil
	}
	return s.writeTx(ctx, stocksync.TableCategories, func(tx *sql.Tx) error {
		for i := range categories {
			if err := upsertCategory(ctx, tx, &categories[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *LocalStore) UpsertCategory(ctx context.Context, c stocksync.Category) error {
	return s.writeTx(ctx, stocksync.TableCategories, func(tx *sql.Tx) error {
		return upsertCategory(ctx, tx, &c)
	})
}

func (s *LocalStore) GetCategory(ctx context.Context, id string) (stocksync.Category, error) {
	return getCategory(ctx, s.db, id)
}

// ListCategories returns non-deleted categories ordered by name
func (s *LocalStore) ListCategories(ctx context.Context) ([]stocksync.Category, error) {
	return queryCategories(ctx, s.db, `SELECT `+categoryColumns+` FROM categories WHERE is_deleted = 0 ORDER BY name, id`)
}

func (s *LocalStore) ListAllCategories(ctx context.Context) ([]stocksync.Category, error) {
	return queryCategories(ctx, s.db, `SELECT `+categoryColumns+` FROM categories ORDER BY name, id`)
}

func (s *LocalStore) SoftDeleteCategory(ctx context.Context, id string, at time.Time, actor string) error {
	return s.writeTx(ctx, stocksync.TableCategories, func(tx *sql.Tx) error {
		return softDeleteCategory(ctx, tx, id, at, actor)
	})
}

// RenameCategory stores the normalized name of a category
func (s *LocalStore) RenameCategory(ctx context.Context, id, name string, at time.Time) error {
	return s.writeTx(ctx, stocksync.TableCategories, func(tx *sql.Tx) error {
		return renameCategory(ctx, tx, id, stocksync.NormalizeCategoryName(name), at)
	})
}

func upsertCategory(ctx context.Context, q querier, c *stocksync.Category) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_deleted = excluded.is_deleted,
			created_by = excluded.created_by,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			deleted_at = excluded.deleted_at,
			deleted_by = excluded.deleted_by`,
		c.ID, c.Name, boolToInt(c.IsDeleted), c.CreatedBy,
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt), formatNullTime(c.DeletedAt), c.DeletedBy)
	if err != nil {
		return fmt.Errorf("failed to upsert category %s: %w", c.ID, err)
	}
	return nil
}

func renameCategory(ctx context.Context, q querier, id, name string, at time.Time) error {
	res, err := q.ExecContext(ctx, `UPDATE categories SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to rename category %s: %w", id, err)
	}
	return expectOneRow(res, stocksync.TableCategories, id)
}

func softDeleteCategory(ctx context.Context, q querier, id string, at time.Time, actor string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE categories SET is_deleted = 1, deleted_at = ?, deleted_by = ?, updated_at = ?
		WHERE id = ?`, formatTime(at), actor, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to soft delete category %s: %w", id, err)
	}
	return expectOneRow(res, stocksync.TableCategories, id)
}

func getCategory(ctx context.Context, q querier, id string) (stocksync.Category, error) {
	row := q.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)
	c, err := scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return stocksync.Category{}, fmt.Errorf("category %s: %w", id, ErrNotFound)
	}
	return c, err
}

func queryCategories(ctx context.Context, q querier, query string, args ...any) ([]stocksync.Category, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	categories := []stocksync.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

func scanCategory(r rowScanner) (stocksync.Category, error) {
	var (
		c                    stocksync.Category
		isDeleted            int
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	err := r.Scan(&c.ID, &c.Name, &isDeleted, &c.CreatedBy, &createdAt, &updatedAt, &deletedAt, &c.DeletedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c, err
		}
		return c, fmt.Errorf("failed to scan category: %w", err)
	}
	c.IsDeleted = isDeleted != 0
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return c, err
	}
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return c, err
	}
	if c.DeletedAt, err = parseNullTime(deletedAt); err != nil {
		return c, err
	}
	return c, nil
}
