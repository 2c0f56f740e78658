// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

// Entity tables exposed by the remote store
const (
	TableItems      = "items"
	TableCategories = "categories"
)

// DefaultSchema is the Postgres schema holding the inventory tables
const DefaultSchema = "inventory"

// DefaultLowStockThreshold is applied to items created without an explicit threshold
const DefaultLowStockThreshold = 5

// Error codes returned in ErrorResponse.Error
const (
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeAuthentication    = "authentication_failed"
	CodeInvalidRequest    = "invalid_request"
	CodeBadPayload        = "bad_payload"
	CodeUnregisteredTable = "unregistered_table"
	CodeNotFound          = "not_found"
	CodePayloadTooLarge   = "payload_too_large"
	CodeInternal          = "internal_error"
)

// RegisteredTables lists every table accepted by the remote store
var RegisteredTables = []string{TableItems, TableCategories}
