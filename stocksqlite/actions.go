// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package stocksqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ndomog/stocksync/stocksync"
)

// ActionKind identifies the remote operation a pending action replays
type ActionKind string

const (
	KindCreate      ActionKind = "create"       // insert a full record
	KindUpdate      ActionKind = "update"       // rewrite every mutable field
	KindUpdateField ActionKind = "update_field" // partial update, e.g. quantity only
	KindSoftDelete  ActionKind = "soft_delete"  // flag as deleted with actor and timestamp
)

// PendingAction is one queued mutation awaiting remote confirmation. Rows are
// immutable apart from Synced.
type PendingAction struct {
	ID         int64           `json:"id"`
	Kind       ActionKind      `json:"kind"`
	Table      string          `json:"table"`
	TargetID   string          `json:"target_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Synced     bool            `json:"synced"`
}

// QuantityPatch is the payload of an update_field action on items
type QuantityPatch struct {
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeletionPatch is the payload of a soft_delete action
type DeletionPatch struct {
	DeletedAt time.Time `json:"deleted_at"`
	DeletedBy string    `json:"deleted_by"`
}

func (p DeletionPatch) itemPatch() stocksync.ItemPatch {
	deleted := true
	return stocksync.ItemPatch{
		IsDeleted: &deleted,
		DeletedAt: &p.DeletedAt,
		DeletedBy: &p.DeletedBy,
		UpdatedAt: &p.DeletedAt,
	}
}

func (p DeletionPatch) categoryPatch() stocksync.CategoryPatch {
	deleted := true
	return stocksync.CategoryPatch{
		IsDeleted: &deleted,
		DeletedAt: &p.DeletedAt,
		DeletedBy: &p.DeletedBy,
		UpdatedAt: &p.DeletedAt,
	}
}

// newAction builds an unsaved action with payload marshaled to JSON
func newAction(kind ActionKind, table, targetID string, payload any, at time.Time) (PendingAction, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return PendingAction{}, fmt.Errorf("failed to marshal %s payload for %s/%s: %w", kind, table, targetID, err)
	}
	return PendingAction{
		Kind:       kind,
		Table:      table,
		TargetID:   targetID,
		Payload:    raw,
		EnqueuedAt: at,
	}, nil
}

// String renders the action as "<kind> <table>/<target> (action <id>)"
func (a PendingAction) String() string {
	return fmt.Sprintf("%s %s/%s (action %d)", a.Kind, a.Table, a.TargetID, a.ID)
}

func (a PendingAction) entityKey() string {
	return entityKey(a.Table, a.TargetID)
}

// remoteCall performs the remote operation of a decoded action
type remoteCall func(ctx context.Context, remote RemoteStore) error

// decode turns the stored payload into the remote call it stands for.
// Failures here are permanent: replaying the same bytes can never succeed.
func (a PendingAction) decode() (remoteCall, error) {
	switch a.Table {
	case stocksync.TableItems:
		return a.decodeItem()
	case stocksync.TableCategories:
		return a.decodeCategory()
	default:
		return nil, fmt.Errorf("unsupported table %q", a.Table)
	}
}

func (a PendingAction) decodeItem() (remoteCall, error) {
	switch a.Kind {
	case KindCreate:
		var item stocksync.Item
		if err := a.unmarshal(&item); err != nil {
			return nil, err
		}
		return func(ctx context.Context, remote RemoteStore) error {
			return remote.Insert(ctx, a.Table, item)
		}, nil
	case KindUpdate:
		var item stocksync.Item
		if err := a.unmarshal(&item); err != nil {
			return nil, err
		}
		return a.update(item.Patch()), nil
	case KindUpdateField:
		var p QuantityPatch
		if err := a.unmarshal(&p); err != nil {
			return nil, err
		}
		patch := stocksync.ItemPatch{Quantity: &p.Quantity}
		if !p.UpdatedAt.IsZero() {
			patch.UpdatedAt = &p.UpdatedAt
		}
		return a.update(patch), nil
	case KindSoftDelete:
		var p DeletionPatch
		if err := a.unmarshal(&p); err != nil {
			return nil, err
		}
		return a.update(p.itemPatch()), nil
	default:
		return nil, fmt.Errorf("unsupported action kind %q", a.Kind)
	}
}

func (a PendingAction) decodeCategory() (remoteCall, error) {
	switch a.Kind {
	case KindCreate:
		var c stocksync.Category
		if err := a.unmarshal(&c); err != nil {
			return nil, err
		}
		return func(ctx context.Context, remote RemoteStore) error {
			return remote.Insert(ctx, a.Table, c)
		}, nil
	case KindUpdate:
		var c stocksync.Category
		if err := a.unmarshal(&c); err != nil {
			return nil, err
		}
		return a.update(c.Patch()), nil
	case KindSoftDelete:
		var p DeletionPatch
		if err := a.unmarshal(&p); err != nil {
			return nil, err
		}
		return a.update(p.categoryPatch()), nil
	default:
		return nil, fmt.Errorf("unsupported action kind %q for categories", a.Kind)
	}
}

func (a PendingAction) update(fields any) remoteCall {
	return func(ctx context.Context, remote RemoteStore) error {
		return remote.UpdateByID(ctx, a.Table, a.TargetID, fields)
	}
}

func (a PendingAction) unmarshal(v any) error {
	if err := json.Unmarshal(a.Payload, v); err != nil {
		return fmt.Errorf("invalid %s payload: %w", a.Kind, err)
	}
	return nil
}
