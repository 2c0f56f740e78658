// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ndomog/stocksync/stocksync"
)

// CategoryRepository is the only write path for categories
type CategoryRepository struct {
	w *writer
}

func (r *CategoryRepository) Observe(ctx context.Context) <-chan []stocksync.Category {
	return observe(ctx, r.w.store.hubs[stocksync.TableCategories], r.w.logger, r.w.store.ListCategories)
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (stocksync.Category, error) {
	return r.w.store.GetCategory(ctx, id)
}

func (r *CategoryRepository) List(ctx context.Context) ([]stocksync.Category, error) {
	return r.w.store.ListCategories(ctx)
}

// Load refreshes cached categories from the remote store when online
func (r *CategoryRepository) Load(ctx context.Context, isOnline bool) (categories []stocksync.Category, fromCache bool, err error) {
	if isOnline {
		remoteCategories, err := fetchRemote[stocksync.Category](ctx, r.w.remote, stocksync.TableCategories, r.w.config.RemoteTimeout)
		if err == nil {
			if err := r.w.store.UpsertCategories(ctx, remoteCategories); err != nil {
				return nil, false, err
			}
			categories, err = r.w.store.ListCategories(ctx)
			return categories, false, err
		}
		r.w.logger.Warn("Failed to load categories from remote, using cache", "error", err)
	}
	categories, err = r.w.store.ListCategories(ctx)
	if err != nil {
		return nil, true, err
	}
	return categories, true, nil
}

// Add stores a new category with its name upper-cased
func (r *CategoryRepository) Add(ctx context.Context, c stocksync.Category, isOnline bool) (stocksync.Category, error) {
	c.Name = stocksync.NormalizeCategoryName(c.Name)
	if c.ID == "" || c.Name == "" {
		return c, fmt.Errorf("%w: category id and name are required", ErrInvalidEntity)
	}
	userID, err := r.w.currentUser(ctx)
	if err != nil {
		return c, err
	}

	now := r.w.now()
	if c.CreatedBy == "" {
		c.CreatedBy = userID
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.IsDeleted, c.DeletedAt, c.DeletedBy = false, nil, ""

	err = r.w.apply(ctx, mutation{
		kind:     KindCreate,
		table:    stocksync.TableCategories,
		targetID: c.ID,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			if _, err := getCategory(ctx, tx, c.ID); err == nil {
				return nil, fmt.Errorf("%w: category %s already exists", ErrInvalidEntity, c.ID)
			} else if !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return c, upsertCategory(ctx, tx, &c)
		},
	}, isOnline)
	return c, err
}

// Rename changes the name of a category. Items keep the category name they
// were saved with.
func (r *CategoryRepository) Rename(ctx context.Context, id, name string, isOnline bool) (stocksync.Category, error) {
	name = stocksync.NormalizeCategoryName(name)
	if name == "" {
		return stocksync.Category{}, fmt.Errorf("%w: category name is required", ErrInvalidEntity)
	}
	var stored stocksync.Category
	err := r.w.apply(ctx, mutation{
		kind:     KindUpdate,
		table:    stocksync.TableCategories,
		targetID: id,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			now := r.w.now()
			if err := renameCategory(ctx, tx, id, name, now); err != nil {
				return nil, err
			}
			var err error
			stored, err = getCategory(ctx, tx, id)
			return stored, err
		},
	}, isOnline)
	return stored, err
}

// SoftDelete flags a category as deleted by the current user
func (r *CategoryRepository) SoftDelete(ctx context.Context, id string, isOnline bool) error {
	userID, err := r.w.currentUser(ctx)
	if err != nil {
		return err
	}
	return r.w.apply(ctx, mutation{
		kind:     KindSoftDelete,
		table:    stocksync.TableCategories,
		targetID: id,
		write: func(ctx context.Context, tx *sql.Tx) (any, error) {
			patch := DeletionPatch{DeletedAt: r.w.now(), DeletedBy: userID}
			return patch, softDeleteCategory(ctx, tx, id, patch.DeletedAt, patch.DeletedBy)
		},
	}, isOnline)
}
