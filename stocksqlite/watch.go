// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"log/slog"
	"sync"
)

// hub wakes the subscribers of one table after each committed write
type hub struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan struct{}]struct{})}
}

func (h *hub) subscribe() (wake <-chan struct{}, cancel func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
}

func (h *hub) notify() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- struct{}{}:
		default: // a wake-up is already queued
		}
	}
}

// observe streams snapshots produced by load: one right away, then one after
// every write to the hub's table. A slow reader only sees the latest snapshot.
// The channel closes when ctx is done.
func observe[T any](ctx context.Context, h *hub, logger *slog.Logger, load func(context.Context) ([]T, error)) <-chan []T {
	out := make(chan []T, 1)
	wake, cancel := h.subscribe()

	go func() {
		defer close(out)
		defer cancel()
		for {
			snapshot, err := load(ctx)
			switch {
			case ctx.Err() != nil:
				return
			case err != nil:
				logger.Warn("Failed to load snapshot for observer", "error", err)
			default:
				replaceLatest(out, snapshot)
			}

			select {
			case <-ctx.Done():
				return
			case <-wake:
			}
		}
	}()
	return out
}

func replaceLatest[T any](out chan []T, v []T) {
	for {
		select {
		case out <- v:
			return
		default:
			select {
			case <-out: // drop the stale snapshot
			default:
			}
		}
	}
}
