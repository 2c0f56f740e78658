// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validation error sentinels for better error mapping
var (
	ErrBadPayload        = errors.New("bad_payload")
	ErrUnregisteredTable = errors.New("unregistered_table")
	ErrNotFound          = errors.New("not_found")
	ErrPayloadTooLarge   = errors.New("payload_too_large")
)

// IsRegisteredTable reports whether table is served by the remote store
func IsRegisteredTable(table string) bool {
	for _, t := range RegisteredTables {
		if t == table {
			return true
		}
	}
	return false
}

func validateTable(table string) error {
	if !IsRegisteredTable(strings.ToLower(strings.TrimSpace(table))) {
		return fmt.Errorf("%w: %q", ErrUnregisteredTable, table)
	}
	return nil
}

func (s *Service) checkPayload(payload []byte) error {
	if s.config.MaxPayloadBytes > 0 && len(payload) > s.config.MaxPayloadBytes {
		return fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(payload), s.config.MaxPayloadBytes)
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: payload must be a JSON object", ErrBadPayload)
	}
	return nil
}

func decodePayload(payload []byte, dst any) error {
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	return nil
}

func validateItem(it *Item) error {
	if strings.TrimSpace(it.ID) == "" {
		return fmt.Errorf("%w: item id is required", ErrBadPayload)
	}
	if strings.TrimSpace(it.Name) == "" {
		return fmt.Errorf("%w: item name is required", ErrBadPayload)
	}
	if it.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrBadPayload)
	}
	if it.BuyingPrice < 0 || it.SellingPrice < 0 {
		return fmt.Errorf("%w: prices must be >= 0", ErrBadPayload)
	}
	if it.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low_stock_threshold must be >= 0", ErrBadPayload)
	}
	return nil
}

func validateItemPatch(p *ItemPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: item name cannot be empty", ErrBadPayload)
	}
	if p.Quantity != nil && *p.Quantity < 0 {
		return fmt.Errorf("%w: quantity must be >= 0", ErrBadPayload)
	}
	if (p.BuyingPrice != nil && *p.BuyingPrice < 0) || (p.SellingPrice != nil && *p.SellingPrice < 0) {
		return fmt.Errorf("%w: prices must be >= 0", ErrBadPayload)
	}
	if p.LowStockThreshold != nil && *p.LowStockThreshold < 0 {
		return fmt.Errorf("%w: low_stock_threshold must be >= 0", ErrBadPayload)
	}
	return nil
}

func validateCategory(c *Category) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: category id is required", ErrBadPayload)
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: category name is required", ErrBadPayload)
	}
	return nil
}

func validateCategoryPatch(p *CategoryPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: category name cannot be empty", ErrBadPayload)
	}
	return nil
}
