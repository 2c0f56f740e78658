// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/ndomog/stocksync/internal/auth"
)

// HTTPHandlers exposes a RecordStore over the JSON record API
type HTTPHandlers struct {
	store           RecordStore
	logger          *slog.Logger
	maxPayloadBytes int64
}

// NewHTTPHandlers creates a new instance of record handlers.
// maxPayloadBytes bounds request bodies (0 = unlimited).
func NewHTTPHandlers(store RecordStore, maxPayloadBytes int, logger *slog.Logger) *HTTPHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandlers{
		store:           store,
		logger:          logger,
		maxPayloadBytes: int64(maxPayloadBytes),
	}
}

// Mount registers the record API on mux. Every route except status goes
// through authMiddleware.
func (h *HTTPHandlers) Mount(mux *http.ServeMux, authMiddleware func(http.Handler) http.Handler) {
	mux.Handle("POST /v1/{table}", authMiddleware(http.HandlerFunc(h.HandleInsert)))
	mux.Handle("PATCH /v1/{table}/{id}", authMiddleware(http.HandlerFunc(h.HandleUpdate)))
	mux.Handle("GET /v1/{table}", authMiddleware(http.HandlerFunc(h.HandleList)))
	mux.HandleFunc("GET /v1/status", h.HandleStatus)
}

// HandleInsert stores the record carried in the request body
func (h *HTTPHandlers) HandleInsert(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthentication, "missing authenticated actor")
		return
	}
	table := r.PathValue("table")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if err := h.store.Insert(r.Context(), actor.UserID, table, body); err != nil {
		h.writeStoreError(w, err, "insert", table, "")
		return
	}

	h.logger.Debug("Inserted record", "table", table, "user_id", actor.UserID, "device_id", actor.DeviceID)
	w.WriteHeader(http.StatusCreated)
}

// HandleUpdate applies the patch in the request body to /v1/{table}/{id}
func (h *HTTPHandlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, CodeAuthentication, "missing authenticated actor")
		return
	}
	table := r.PathValue("table")
	id := r.PathValue("id")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if err := h.store.UpdateByID(r.Context(), table, id, body); err != nil {
		h.writeStoreError(w, err, "update", table, id)
		return
	}

	h.logger.Debug("Updated record", "table", table, "id", id, "user_id", actor.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// HandleList returns every non-deleted record of a table
func (h *HTTPHandlers) HandleList(w http.ResponseWriter, r *http.Request) {
	table := r.PathValue("table")

	records, err := h.store.SelectNonDeleted(r.Context(), table)
	if err != nil {
		h.writeStoreError(w, err, "list", table, "")
		return
	}

	writeJSON(w, http.StatusOK, ListResponse{Table: table, Records: records}, h.logger)
}

// HandleStatus reports service health
func (h *HTTPHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := h.store.Status(r.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status, h.logger)
}

func (h *HTTPHandlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	reader := io.Reader(r.Body)
	if h.maxPayloadBytes > 0 {
		reader = http.MaxBytesReader(w, r.Body, h.maxPayloadBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read request body")
		return nil, false
	}
	return body, true
}

func (h *HTTPHandlers) writeStoreError(w http.ResponseWriter, err error, op, table, id string) {
	switch {
	case errors.Is(err, ErrUnregisteredTable):
		writeError(w, http.StatusNotFound, CodeUnregisteredTable, err.Error())
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, ErrPayloadTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, err.Error())
	case errors.Is(err, ErrBadPayload):
		writeError(w, http.StatusBadRequest, CodeBadPayload, err.Error())
	default:
		h.logger.Error("Record operation failed", "op", op, "table", table, "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, CodeInternal, "failed to "+op+" record")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && logger != nil {
		logger.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: message})
}
