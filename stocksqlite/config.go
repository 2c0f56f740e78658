// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"log/slog"
	"time"
)

// Config holds configuration for the offline client
type Config struct {
	RemoteTimeout time.Duration // Deadline for every remote store call, e.g. 60s
	MaxAttempts   int           // Failed drains before an action is parked (<= 0 never parks)
	SyncInterval  time.Duration // Runner tick while online, e.g. 30s
	BackoffMin    time.Duration // 1s
	BackoffMax    time.Duration // 60s

	Logger *slog.Logger
	Clock  func() time.Time // Timestamps for created/updated/deleted fields
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		RemoteTimeout: 60 * time.Second,
		MaxAttempts:   25,
		SyncInterval:  30 * time.Second,
		BackoffMin:    1 * time.Second,
		BackoffMax:    60 * time.Second,
		Logger:        slog.Default(),
		Clock:         func() time.Time { return time.Now().UTC() },
	}
}

func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.RemoteTimeout <= 0 {
		out.RemoteTimeout = def.RemoteTimeout
	}
	if out.SyncInterval <= 0 {
		out.SyncInterval = def.SyncInterval
	}
	if out.BackoffMin <= 0 {
		out.BackoffMin = def.BackoffMin
	}
	if out.BackoffMax < out.BackoffMin {
		out.BackoffMax = max(def.BackoffMax, out.BackoffMin)
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Clock == nil {
		out.Clock = def.Clock
	}
	return &out
}
