// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// Client wires the local store, the pending queue, the repositories and the
// sync engine over one SQLite database
type Client struct {
	Store      *LocalStore
	Queue      *PendingQueue
	Items      *ItemRepository
	Categories *CategoryRepository
	Engine     *SyncEngine

	config *Config
}

// NewClient prepares db and returns a client pushing to remote. A nil config
// means DefaultConfig().
func NewClient(db *sql.DB, remote RemoteStore, identity Identity, config *Config) (*Client, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote store cannot be nil")
	}
	config = config.withDefaults()

	store, err := OpenLocalStore(db, config.Logger)
	if err != nil {
		return nil, err
	}
	queue := NewPendingQueue(store, config.MaxAttempts, config.Clock)
	locks := newKeyedMutex()

	w := &writer{
		store:    store,
		queue:    queue,
		remote:   remote,
		locks:    locks,
		identity: identity,
		config:   config,
		logger:   config.Logger,
	}
	return &Client{
		Store:      store,
		Queue:      queue,
		Items:      &ItemRepository{w: w},
		Categories: &CategoryRepository{w: w},
		Engine: &SyncEngine{
			store:  store,
			queue:  queue,
			remote: remote,
			locks:  locks,
			config: config,
			logger: config.Logger,
		},
		config: config,
	}, nil
}

// Drain is shorthand for c.Engine.Drain
func (c *Client) Drain(ctx context.Context) (SyncResult, error) {
	return c.Engine.Drain(ctx)
}

// PendingCount returns the number of changes not yet confirmed remotely
func (c *Client) PendingCount(ctx context.Context) (int, error) {
	return c.Queue.Count(ctx)
}

// NewRunner returns a background trigger for this client's engine
func (c *Client) NewRunner() *Runner {
	return NewRunner(c.Engine, c.config)
}
