// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ndomog/stocksync/stocksync"
	"golang.org/x/sync/singleflight"
)

// SyncResult summarizes one drain
type SyncResult struct {
	Success          bool     `json:"success"`
	ActionsSynced    int      `json:"actions_synced"`
	ItemsSynced      int      `json:"items_synced"`
	CategoriesSynced int      `json:"categories_synced"`
	ActionsParked    int      `json:"actions_parked"`
	Errors           []string `json:"errors,omitempty"`
	// Coalesced is set when the result was shared by concurrent Drain callers
	Coalesced bool `json:"coalesced"`
}

func (r *SyncResult) fail(msg string) {
	r.Success = false
	r.Errors = append(r.Errors, msg)
}

// SyncEngine replays pending actions against the remote store and refreshes
// the local cache afterwards
type SyncEngine struct {
	store  *LocalStore
	queue  *PendingQueue
	remote RemoteStore
	locks  *keyedMutex
	config *Config
	logger *slog.Logger

	group singleflight.Group
}

type outcome int

const (
	outcomeSynced outcome = iota
	outcomeSkipped
	outcomeFailed
	outcomeParked
)

// Drain delivers every pending action in FIFO order, compacts the confirmed
// ones and refreshes items and categories. A failed action never stops the
// actions after it, including later ones for the same entity. Concurrent
// calls share one run.
//
// Per-action failures are reported in the result only. The returned error is
// set when the queue could not be read or ctx was cancelled mid-run.
func (e *SyncEngine) Drain(ctx context.Context) (SyncResult, error) {
	v, err, shared := e.group.Do("drain", func() (any, error) {
		res, err := e.drain(ctx)
		return res, err
	})
	res := v.(SyncResult)
	// Copy so callers sharing a run never alias the same slice
	res.Errors = append([]string(nil), res.Errors...)
	res.Coalesced = shared
	return res, err
}

func (e *SyncEngine) drain(ctx context.Context) (SyncResult, error) {
	start := time.Now()
	result := SyncResult{Success: true}

	actions, err := e.queue.ListPending(ctx)
	if err != nil {
		result.fail(fmt.Sprintf("list pending actions: %v", err))
		return result, fmt.Errorf("failed to list pending actions: %w", err)
	}
	if len(actions) == 0 {
		return result, nil
	}
	e.logger.Debug("Draining pending actions", "count", len(actions))

	var cancelErr error

	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			cancelErr = err
			break
		}

		switch out, err := e.dispatch(ctx, a); out {
		case outcomeSynced:
			result.ActionsSynced++
		case outcomeSkipped:
		case outcomeParked:
			result.ActionsParked++
			result.fail(fmt.Sprintf("%s: %v (parked)", a, err))
			e.logger.Error("Action parked", "action", a.String(), "error", err)
		case outcomeFailed:
			result.fail(fmt.Sprintf("%s: %v", a, err))
			e.logger.Error("Failed to sync action", "action", a.String(), "error", err)
		}
	}

	// Compaction and the cancellation report must survive a cancelled ctx
	bookkeeping := context.WithoutCancel(ctx)
	if n, err := e.queue.DeleteSynced(bookkeeping); err != nil {
		result.fail(fmt.Sprintf("delete synced actions: %v", err))
	} else if n > 0 {
		e.logger.Debug("Compacted synced actions", "count", n)
	}

	if cancelErr == nil && ctx.Err() != nil {
		cancelErr = ctx.Err()
	}
	if cancelErr != nil {
		result.fail(fmt.Sprintf("drain cancelled: %v", cancelErr))
		return result, cancelErr
	}

	e.refresh(ctx, &result)

	e.logger.Info("Drain finished",
		"success", result.Success,
		"actions_synced", result.ActionsSynced,
		"actions_parked", result.ActionsParked,
		"errors", len(result.Errors),
		"duration", time.Since(start))
	return result, nil
}

// dispatch delivers one action under its entity lock
func (e *SyncEngine) dispatch(ctx context.Context, a PendingAction) (outcome, error) {
	unlock := e.locks.Lock(a.entityKey())
	defer unlock()

	// A repository push may have confirmed it while we waited for the lock
	pending, err := e.queue.IsPending(ctx, a.ID)
	if err != nil {
		return outcomeFailed, err
	}
	if !pending {
		return outcomeSkipped, nil
	}

	bookkeeping := context.WithoutCancel(ctx)
	call, err := a.decode()
	if err != nil {
		if perr := e.queue.Park(bookkeeping, a, err); perr != nil {
			return outcomeFailed, errors.Join(err, perr)
		}
		return outcomeParked, err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
	err = call(callCtx, e.remote)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by the caller, not the action's fault
			return outcomeFailed, err
		}
		parked, rerr := e.queue.RecordFailure(bookkeeping, a, err)
		if rerr != nil {
			return outcomeFailed, errors.Join(err, rerr)
		}
		if parked {
			return outcomeParked, err
		}
		return outcomeFailed, err
	}

	if err := e.queue.MarkSynced(bookkeeping, a.ID); err != nil {
		// Confirmed remotely but still pending locally; redelivery is harmless
		return outcomeFailed, err
	}
	e.logger.Debug("Action synced", "action", a.String())
	return outcomeSynced, nil
}

// refresh overwrites cached items and categories with the remote state. This
// also corrects local drift left by actions that failed above. The first
// failed fetch ends the refresh and is its only reported error.
func (e *SyncEngine) refresh(ctx context.Context, result *SyncResult) {
	items, err := fetchRemote[stocksync.Item](ctx, e.remote, stocksync.TableItems, e.config.RemoteTimeout)
	if err == nil {
		err = e.store.UpsertItems(ctx, items)
	}
	if err != nil {
		result.fail(fmt.Sprintf("refresh: %v", err))
		e.logger.Error("Failed to refresh items", "error", err)
		return
	}
	result.ItemsSynced = len(items)

	categories, err := fetchRemote[stocksync.Category](ctx, e.remote, stocksync.TableCategories, e.config.RemoteTimeout)
	if err == nil {
		err = e.store.UpsertCategories(ctx, categories)
	}
	if err != nil {
		result.fail(fmt.Sprintf("refresh: %v", err))
		e.logger.Error("Failed to refresh categories", "error", err)
		return
	}
	result.CategoriesSynced = len(categories)
}
