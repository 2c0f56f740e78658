// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// initializeSchemaInTx creates the inventory tables within an existing transaction
func (s *Service) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	schema := pgx.Identifier{s.config.Schema}.Sanitize()
	items := s.tableIdent(TableItems)
	categories := s.tableIdent(TableCategories)

	migrations := []string{
		/*language=postgresql*/ fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, schema),

		/*language=postgresql*/ fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			is_deleted          BOOLEAN NOT NULL DEFAULT FALSE,
			created_by          TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at          TIMESTAMPTZ,
			deleted_by          TEXT NOT NULL DEFAULT ''
		)`, categories),

		/*language=postgresql*/ fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                  TEXT PRIMARY KEY,
			name                TEXT NOT NULL,
			category            TEXT NOT NULL DEFAULT '',
			category_id         TEXT NOT NULL DEFAULT '',
			details             TEXT NOT NULL DEFAULT '',
			photo_url           TEXT NOT NULL DEFAULT '',
			buying_price        DOUBLE PRECISION NOT NULL DEFAULT 0,
			selling_price       DOUBLE PRECISION NOT NULL DEFAULT 0,
			quantity            INTEGER NOT NULL DEFAULT 0,
			low_stock_threshold INTEGER NOT NULL DEFAULT 5,
			is_deleted          BOOLEAN NOT NULL DEFAULT FALSE,
			created_by          TEXT NOT NULL DEFAULT '',
			created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at          TIMESTAMPTZ,
			deleted_by          TEXT NOT NULL DEFAULT ''
		)`, items),

		/*language=postgresql*/ fmt.Sprintf(`CREATE INDEX IF NOT EXISTS items_live_idx ON %s (name) WHERE NOT is_deleted`, items),
		/*language=postgresql*/ fmt.Sprintf(`CREATE INDEX IF NOT EXISTS categories_live_idx ON %s (name) WHERE NOT is_deleted`, categories),
	}

	for _, migration := range migrations {
		if _, err := tx.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply schema migration: %w", err)
		}
	}
	return nil
}
