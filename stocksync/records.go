// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const itemColumns = `id, name, category, category_id, details, photo_url, buying_price, selling_price,
	quantity, low_stock_threshold, is_deleted, created_by, created_at, updated_at, deleted_at, deleted_by`

const categoryColumns = `id, name, is_deleted, created_by, created_at, updated_at, deleted_at, deleted_by`

// assignment is one column = value pair of an UPDATE statement
type assignment struct {
	column string
	value  any
}

// Insert stores a new record. Inserting an id that already exists is a no-op,
// which makes redelivered creates harmless.
func (s *Service) Insert(ctx context.Context, userID, table string, payload []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateTable(table); err != nil {
		return err
	}
	if err := s.checkPayload(payload); err != nil {
		return err
	}

	now := time.Now().UTC()
	var (
		query string
		args  []any
	)
	switch table {
	case TableItems:
		var it Item
		if err := decodePayload(payload, &it); err != nil {
			return err
		}
		if err := validateItem(&it); err != nil {
			return err
		}
		stampCreated(&it.CreatedBy, &it.CreatedAt, &it.UpdatedAt, userID, now)
		query = fmt.Sprintf(`INSERT INTO %s (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (id) DO NOTHING`, s.tableIdent(TableItems), itemColumns)
		args = []any{it.ID, it.Name, it.Category, it.CategoryID, it.Details, it.PhotoURL,
			it.BuyingPrice, it.SellingPrice, it.Quantity, it.LowStockThreshold, it.IsDeleted,
			it.CreatedBy, it.CreatedAt, it.UpdatedAt, it.DeletedAt, it.DeletedBy}
	case TableCategories:
		var c Category
		if err := decodePayload(payload, &c); err != nil {
			return err
		}
		c.Name = NormalizeCategoryName(c.Name)
		if err := validateCategory(&c); err != nil {
			return err
		}
		stampCreated(&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt, userID, now)
		query = fmt.Sprintf(`INSERT INTO %s (%s)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`, s.tableIdent(TableCategories), categoryColumns)
		args = []any{c.ID, c.Name, c.IsDeleted, c.CreatedBy, c.CreatedAt, c.UpdatedAt, c.DeletedAt, c.DeletedBy}
	}

	err := s.withRetry(ctx, "insert_"+table, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

// UpdateByID applies a partial update to the record with the given id.
// It returns ErrNotFound when no such record exists.
func (s *Service) UpdateByID(ctx context.Context, table, id string, payload []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := validateTable(table); err != nil {
		return err
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrBadPayload)
	}
	if err := s.checkPayload(payload); err != nil {
		return err
	}

	var sets []assignment
	switch table {
	case TableItems:
		var p ItemPatch
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		if err := validateItemPatch(&p); err != nil {
			return err
		}
		sets = p.assignments()
	case TableCategories:
		var p CategoryPatch
		if err := decodePayload(payload, &p); err != nil {
			return err
		}
		if err := validateCategoryPatch(&p); err != nil {
			return err
		}
		sets = p.assignments()
	}
	if len(sets) == 0 {
		return fmt.Errorf("%w: no fields to update", ErrBadPayload)
	}
	if !hasColumn(sets, "updated_at") {
		sets = append(sets, assignment{column: "updated_at", value: time.Now().UTC()})
	}

	query, args := buildUpdate(s.tableIdent(table), id, sets)
	var affected int64
	err := s.withRetry(ctx, "update_"+table, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", table, id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return nil
}

// SelectNonDeleted returns every record of table that is not soft-deleted, ordered by name
func (s *Service) SelectNonDeleted(ctx context.Context, table string) ([]json.RawMessage, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateTable(table); err != nil {
		return nil, err
	}

	var (
		columns string
		scan    pgx.RowToFunc[json.RawMessage]
	)
	switch table {
	case TableItems:
		columns = itemColumns
		scan = scanItemJSON
	case TableCategories:
		columns = categoryColumns
		scan = scanCategoryJSON
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE NOT is_deleted ORDER BY name, id`, columns, s.tableIdent(table))
	var records []json.RawMessage
	err := s.withRetry(ctx, "select_"+table, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		records, err = pgx.CollectRows(rows, scan)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", table, err)
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

func scanItemJSON(row pgx.CollectableRow) (json.RawMessage, error) {
	var it Item
	if err := row.Scan(&it.ID, &it.Name, &it.Category, &it.CategoryID, &it.Details, &it.PhotoURL,
		&it.BuyingPrice, &it.SellingPrice, &it.Quantity, &it.LowStockThreshold, &it.IsDeleted,
		&it.CreatedBy, &it.CreatedAt, &it.UpdatedAt, &it.DeletedAt, &it.DeletedBy); err != nil {
		return nil, err
	}
	return json.Marshal(&it)
}

func scanCategoryJSON(row pgx.CollectableRow) (json.RawMessage, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.IsDeleted, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		&c.DeletedAt, &c.DeletedBy); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

func stampCreated(createdBy *string, createdAt, updatedAt *time.Time, userID string, now time.Time) {
	if *createdBy == "" {
		*createdBy = userID
	}
	if createdAt.IsZero() {
		*createdAt = now
	}
	if updatedAt.IsZero() {
		*updatedAt = *createdAt
	}
}

func (p *ItemPatch) assignments() []assignment {
	var sets []assignment
	add := func(column string, set bool, value any) {
		if set {
			sets = append(sets, assignment{column: column, value: value})
		}
	}
	add("name", p.Name != nil, p.Name)
	add("category", p.Category != nil, p.Category)
	add("category_id", p.CategoryID != nil, p.CategoryID)
	add("details", p.Details != nil, p.Details)
	add("photo_url", p.PhotoURL != nil, p.PhotoURL)
	add("buying_price", p.BuyingPrice != nil, p.BuyingPrice)
	add("selling_price", p.SellingPrice != nil, p.SellingPrice)
	add("quantity", p.Quantity != nil, p.Quantity)
	add("low_stock_threshold", p.LowStockThreshold != nil, p.LowStockThreshold)
	sets = append(sets, deletionAssignments(p.IsDeleted, p.DeletedAt, p.DeletedBy)...)
	add("updated_at", p.UpdatedAt != nil, p.UpdatedAt)
	return sets
}

func (p *CategoryPatch) assignments() []assignment {
	var sets []assignment
	if p.Name != nil {
		name := NormalizeCategoryName(*p.Name)
		sets = append(sets, assignment{column: "name", value: name})
	}
	sets = append(sets, deletionAssignments(p.IsDeleted, p.DeletedAt, p.DeletedBy)...)
	if p.UpdatedAt != nil {
		sets = append(sets, assignment{column: "updated_at", value: p.UpdatedAt})
	}
	return sets
}

// deletionAssignments maps the soft-delete fields. Restoring a record
// (is_deleted=false without deleted_at) also clears the deletion metadata.
func deletionAssignments(isDeleted *bool, deletedAt *time.Time, deletedBy *string) []assignment {
	var sets []assignment
	if isDeleted != nil {
		sets = append(sets, assignment{column: "is_deleted", value: *isDeleted})
		if !*isDeleted && deletedAt == nil {
			sets = append(sets, assignment{column: "deleted_at", value: nil})
			if deletedBy == nil {
				sets = append(sets, assignment{column: "deleted_by", value: ""})
			}
		}
	}
	if deletedAt != nil {
		sets = append(sets, assignment{column: "deleted_at", value: deletedAt})
	}
	if deletedBy != nil {
		sets = append(sets, assignment{column: "deleted_by", value: *deletedBy})
	}
	return sets
}

func hasColumn(sets []assignment, column string) bool {
	for _, a := range sets {
		if a.column == column {
			return true
		}
	}
	return false
}

func buildUpdate(table, id string, sets []assignment) (string, []any) {
	parts := make([]string, 0, len(sets))
	args := make([]any, 0, len(sets)+1)
	for i, a := range sets {
		parts = append(parts, fmt.Sprintf("%s = $%d", pgx.Identifier{a.column}.Sanitize(), i+1))
		args = append(args, a.value)
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $%d`, table, strings.Join(parts, ", "), len(args))
	return query, args
}
