// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordStore is the capability set the HTTP handlers need from the backend
type RecordStore interface {
	Insert(ctx context.Context, userID, table string, payload []byte) error
	UpdateByID(ctx context.Context, table, id string, payload []byte) error
	SelectNonDeleted(ctx context.Context, table string) ([]json.RawMessage, error)
	Status(ctx context.Context) StatusResponse
}

// ServiceConfig holds configuration for the record service
type ServiceConfig struct {
	AppName         string        // Application name for status reporting
	Schema          string        // Postgres schema holding the inventory tables
	MaxPayloadBytes int           // Maximum JSON body size per request in bytes (0 = unlimited)
	MaxRetries      int           // Retries for serialization/deadlock/lock errors
	RetryBaseDelay  time.Duration // First retry delay, doubled per attempt
}

// DefaultServiceConfig returns a configuration suitable for most deployments
func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		AppName:         "stocksync",
		Schema:          DefaultSchema,
		MaxPayloadBytes: 256 * 1024,
		MaxRetries:      3,
		RetryBaseDelay:  20 * time.Millisecond,
	}
}

// Service is the authoritative remote store: it applies inserts and partial
// updates to Postgres and serves the non-deleted record sets.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	config *ServiceConfig

	mu     sync.RWMutex
	closed bool
}

var _ RecordStore = (*Service)(nil)

// NewService creates the service from an existing pool and makes sure the
// inventory schema exists
func NewService(ctx context.Context, pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*Service, error) {
	if config == nil {
		config = DefaultServiceConfig()
	}
	if config.Schema == "" {
		config.Schema = DefaultSchema
	}
	if logger == nil {
		logger = slog.Default()
	}

	service := &Service{
		pool:   pool,
		logger: logger,
		config: config,
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return service.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		logger.Error("Failed to initialize database schema", "error", err)
		return nil, fmt.Errorf("failed to initialize record service: %w", err)
	}
	logger.Debug("Database schema initialized successfully", "schema", config.Schema)

	return service, nil
}

// Config returns the service configuration
func (s *Service) Config() *ServiceConfig {
	return s.config
}

// Status reports service health by pinging the pool
func (s *Service) Status(ctx context.Context) StatusResponse {
	status := "healthy"
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		status = "unhealthy"
	} else if err := s.pool.Ping(ctx); err != nil {
		s.logger.Warn("Status ping failed", "error", err)
		status = "unhealthy"
	}
	return StatusResponse{
		Status:           status,
		Version:          APIVersion,
		AppName:          s.config.AppName,
		RegisteredTables: append([]string(nil), RegisteredTables...),
	}
}

// Close marks the service closed. The pool is owned by the caller.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Service) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("record service is closed")
	}
	return nil
}

func (s *Service) tableIdent(table string) string {
	return pgx.Identifier{s.config.Schema, table}.Sanitize()
}
