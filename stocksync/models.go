// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

// Package stocksync holds the inventory domain model shared by the offline
// client and the reference remote store, together with that remote store:
// a Postgres-backed record service exposed over JSON/HTTP.
package stocksync

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Item is a single inventory record. Soft-deleted items keep their row with
// IsDeleted set so they remain available for audit.
type Item struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Category          string     `json:"category"`
	CategoryID        string     `json:"category_id,omitempty"`
	Details           string     `json:"details,omitempty"`
	PhotoURL          string     `json:"photo_url,omitempty"`
	BuyingPrice       float64    `json:"buying_price"`
	SellingPrice      float64    `json:"selling_price"`
	Quantity          int        `json:"quantity"`
	LowStockThreshold int        `json:"low_stock_threshold"`
	IsDeleted         bool       `json:"is_deleted"`
	CreatedBy         string     `json:"created_by,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	DeletedBy         string     `json:"deleted_by,omitempty"`
}

// IsLowStock reports whether the quantity reached the low stock threshold
func (it *Item) IsLowStock() bool {
	return it.Quantity <= it.LowStockThreshold
}

// Patch returns a patch carrying every mutable field of the item
func (it *Item) Patch() ItemPatch {
	p := ItemPatch{
		Name:              ptr(it.Name),
		Category:          ptr(it.Category),
		CategoryID:        ptr(it.CategoryID),
		Details:           ptr(it.Details),
		PhotoURL:          ptr(it.PhotoURL),
		BuyingPrice:       ptr(it.BuyingPrice),
		SellingPrice:      ptr(it.SellingPrice),
		Quantity:          ptr(it.Quantity),
		LowStockThreshold: ptr(it.LowStockThreshold),
		IsDeleted:         ptr(it.IsDeleted),
		DeletedBy:         ptr(it.DeletedBy),
		DeletedAt:         it.DeletedAt,
	}
	if !it.UpdatedAt.IsZero() {
		p.UpdatedAt = ptr(it.UpdatedAt)
	}
	return p
}

// Category groups items. Names are stored upper-cased.
type Category struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	IsDeleted bool       `json:"is_deleted"`
	CreatedBy string     `json:"created_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

// Patch returns a patch carrying every mutable field of the category
func (c *Category) Patch() CategoryPatch {
	p := CategoryPatch{
		Name:      ptr(c.Name),
		IsDeleted: ptr(c.IsDeleted),
		DeletedBy: ptr(c.DeletedBy),
		DeletedAt: c.DeletedAt,
	}
	if !c.UpdatedAt.IsZero() {
		p.UpdatedAt = ptr(c.UpdatedAt)
	}
	return p
}

// NormalizeCategoryName trims and upper-cases a category name
func NormalizeCategoryName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// ItemPatch is a partial update of an item; nil fields are left untouched
type ItemPatch struct {
	Name              *string    `json:"name,omitempty"`
	Category          *string    `json:"category,omitempty"`
	CategoryID        *string    `json:"category_id,omitempty"`
	Details           *string    `json:"details,omitempty"`
	PhotoURL          *string    `json:"photo_url,omitempty"`
	BuyingPrice       *float64   `json:"buying_price,omitempty"`
	SellingPrice      *float64   `json:"selling_price,omitempty"`
	Quantity          *int       `json:"quantity,omitempty"`
	LowStockThreshold *int       `json:"low_stock_threshold,omitempty"`
	IsDeleted         *bool      `json:"is_deleted,omitempty"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	DeletedBy         *string    `json:"deleted_by,omitempty"`
}

// CategoryPatch is a partial update of a category; nil fields are left untouched
type CategoryPatch struct {
	Name      *string    `json:"name,omitempty"`
	IsDeleted *bool      `json:"is_deleted,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy *string    `json:"deleted_by,omitempty"`
}

// NewID returns a fresh entity identifier
func NewID() string {
	return uuid.NewString()
}

func ptr[T any](v T) *T { return &v }
