// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner triggers drains: periodically while online, right after coming back
// online, and on demand. Failed drains back off exponentially.
type Runner struct {
	engine *SyncEngine
	config *Config
	logger *slog.Logger

	online atomic.Bool
	paused atomic.Bool
	wake   chan struct{}

	// OnResult, when set, receives every drain outcome
	OnResult func(SyncResult, error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRunner(engine *SyncEngine, config *Config) *Runner {
	config = config.withDefaults()
	return &Runner{
		engine: engine,
		config: config,
		logger: config.Logger,
		wake:   make(chan struct{}, 1),
	}
}

// SetOnline records connectivity. Going online triggers a drain.
func (r *Runner) SetOnline(online bool) {
	if was := r.online.Swap(online); online && !was {
		r.Notify()
	}
}

// Notify requests a drain as soon as possible
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pause suspends triggered drains until Resume
func (r *Runner) Pause() { r.paused.Store(true) }

// Resume lifts Pause and triggers a drain
func (r *Runner) Resume() {
	r.paused.Store(false)
	r.Notify()
}

// Start launches the trigger loop. It stops when ctx is done or Stop is called.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		r.loop(ctx)
	}(r.done)
}

// Stop ends the loop and waits for an in-flight drain to return
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (r *Runner) loop(ctx context.Context) {
	timer := time.NewTimer(r.config.SyncInterval)
	defer timer.Stop()
	var backoff time.Duration

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-timer.C:
		}

		next := r.config.SyncInterval
		if r.online.Load() && !r.paused.Load() {
			res, err := r.engine.Drain(ctx)
			if r.OnResult != nil {
				r.OnResult(res, err)
			}
			if ctx.Err() != nil {
				return
			}
			if err != nil || !res.Success {
				backoff = nextBackoff(backoff, r.config.BackoffMin, r.config.BackoffMax)
				next = backoff
				r.logger.Warn("Drain incomplete, backing off", "errors", len(res.Errors), "retry_in", next)
			} else {
				backoff = 0
			}
		}
		timer.Reset(next)
	}
}

func nextBackoff(current, lo, hi time.Duration) time.Duration {
	if current < lo {
		return lo
	}
	return min(current*2, hi)
}
