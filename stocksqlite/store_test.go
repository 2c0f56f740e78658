package stocksqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ndomog/stocksync/stocksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalStore_CreatesTables(t *testing.T) {
	store := newTestStore(t)

	for _, table := range []string{"items", "categories", "pending_actions", "pending_attempts", "parked_actions"} {
		var count int
		err := store.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "Table %s should exist", table)
	}

	var journalMode string
	require.NoError(t, store.DB().QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)
}

func TestLocalStore_ItemRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 123000000, time.UTC)

	it := testItem("item-1", "Hammer", 7)
	it.Details = "steel"
	it.CreatedBy = "user-1"
	it.CreatedAt, it.UpdatedAt = at, at
	require.NoError(t, store.UpsertItem(ctx, it))

	got, err := store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, it, got)

	it.Name = "Claw hammer"
	require.NoError(t, store.UpsertItem(ctx, it))
	got, err = store.GetItem(ctx, "item-1")
	require.NoError(t, err)
	assert.Equal(t, "Claw hammer", got.Name)
}

func TestLocalStore_GetItemNotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetItem(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_ListItemsHidesSoftDeleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertItems(ctx, []stocksync.Item{
		testItem("b", "Bolt", 100),
		testItem("a", "Anvil", 1),
	}))
	require.NoError(t, store.SoftDeleteItem(ctx, "b", at, "user-2"))

	live, err := store.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "a", live[0].ID)

	all, err := store.ListAllItems(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Anvil", all[0].Name)
	deleted := all[1]
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, "user-2", deleted.DeletedBy)
	require.NotNil(t, deleted.DeletedAt)
	assert.True(t, at.Equal(*deleted.DeletedAt))
}

func TestLocalStore_UpdateItemQuantity(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.UpsertItem(ctx, testItem("a", "Anvil", 1)))

	require.NoError(t, store.UpdateItemQuantity(ctx, "a", 42, time.Now()))
	got, err := store.GetItem(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 42, got.Quantity)

	err = store.UpdateItemQuantity(ctx, "nope", 1, time.Now())
	require.True(t, errors.Is(err, ErrNotFound))
	err = store.SoftDeleteItem(ctx, "nope", time.Now(), "user-1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLocalStore_Categories(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.UpsertCategories(ctx, []stocksync.Category{
		{ID: "c1", Name: "TOOLS", CreatedAt: at, UpdatedAt: at},
		{ID: "c2", Name: "PAINT", CreatedAt: at, UpdatedAt: at},
	}))
	require.NoError(t, store.RenameCategory(ctx, "c1", "  hand tools ", at))
	require.NoError(t, store.SoftDeleteCategory(ctx, "c2", at, "user-1"))

	live, err := store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "HAND TOOLS", live[0].Name)

	all, err := store.ListAllCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = store.GetCategory(ctx, "c3")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.RenameCategory(ctx, "c3", "x", at), ErrNotFound)
}
