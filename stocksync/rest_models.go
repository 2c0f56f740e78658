// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"encoding/json"
)

// REST/JSON models for the record API.
// Insert requests carry the full record as the body and update requests carry a patch,
// so only list and error envelopes need dedicated types.

// ListResponse is returned by GET /v1/{table}
type ListResponse struct {
	Table   string            `json:"table"`
	Records []json.RawMessage `json:"records"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusResponse represents service status response
type StatusResponse struct {
	Status           string   `json:"status"`            // healthy, unhealthy
	Version          string   `json:"version"`           // API version
	AppName          string   `json:"app_name"`          // Application name
	RegisteredTables []string `json:"registered_tables"` // Tables accepted by the record API
}

// APIVersion is reported by the status endpoint
const APIVersion = "v1"
