package stocksync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ndomog/stocksync/stocksqlite"
	"github.com/ndomog/stocksync/stocksync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newItem(id, name string, qty int) stocksync.Item {
	return stocksync.Item{
		ID:                id,
		Name:              name,
		Category:          "HARDWARE",
		BuyingPrice:       1.25,
		SellingPrice:      2.5,
		Quantity:          qty,
		LowStockThreshold: stocksync.DefaultLowStockThreshold,
	}
}

func TestOfflineSequenceThenDrain(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	device := h.NewDevice("phone")

	id := stocksync.NewID()
	_, err := device.Items.Add(ctx, newItem(id, "Hinge", 10), false)
	require.NoError(t, err)
	require.NoError(t, device.Items.UpdateQuantity(ctx, id, 7, false))
	require.NoError(t, device.Items.SoftDelete(ctx, id, false))

	n, err := device.PendingCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	result, err := device.Drain(ctx)
	require.NoError(t, err)
	require.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.ActionsSynced)
	assert.Zero(t, result.ItemsSynced, "the only item is soft-deleted remotely")

	name, qty, deleted, deletedBy := h.ItemRow(id)
	assert.Equal(t, "Hinge", name)
	assert.Equal(t, 7, qty)
	assert.True(t, deleted)
	assert.Equal(t, h.userID, deletedBy)

	n, err = device.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOnlineRoundTripAcrossDevices(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	phone := h.NewDevice("phone")
	tablet := h.NewDevice("tablet")

	cat, err := phone.Categories.Add(ctx, stocksync.Category{ID: stocksync.NewID(), Name: "fasteners"}, true)
	require.NoError(t, err)
	item := newItem(stocksync.NewID(), "Screw", 500)
	item.Category, item.CategoryID = cat.Name, cat.ID
	_, err = phone.Items.Add(ctx, item, true)
	require.NoError(t, err)

	n, err := phone.PendingCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "online writes are confirmed immediately")

	items, fromCache, err := tablet.Items.Load(ctx, true)
	require.NoError(t, err)
	assert.False(t, fromCache)
	require.Len(t, items, 1)
	assert.Equal(t, "Screw", items[0].Name)
	assert.Equal(t, h.userID, items[0].CreatedBy)

	categories, _, err := tablet.Categories.Load(ctx, true)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "FASTENERS", categories[0].Name)
}

func TestRedeliveredCreateIsHarmless(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	device := h.NewDevice("phone")

	item := newItem(stocksync.NewID(), "Nail", 1)
	_, err := device.Items.Add(ctx, item, true)
	require.NoError(t, err)

	// A second device replays the same create, as a lost confirmation would
	replay := h.NewDevice("replay")
	require.NoError(t, replay.Store.UpsertItem(ctx, item))
	_, err = replay.Queue.Enqueue(ctx, stocksqlite.PendingAction{
		Kind: stocksqlite.KindCreate, Table: stocksync.TableItems, TargetID: item.ID, Payload: mustJSON(t, item),
	})
	require.NoError(t, err)

	result, err := replay.Drain(ctx)
	require.NoError(t, err)
	assert.True(t, result.Success, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.ActionsSynced)
	assert.Equal(t, 1, result.ItemsSynced)
}

func TestUpdateOfUnknownRecordIsNotFound(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	remote := stocksqlite.NewHTTPRemote(h.server.URL, func(context.Context) (string, error) {
		return h.jwtAuth.GenerateToken(h.userID, "cli", time.Hour)
	}, 5*time.Second)

	qty := 3
	err := remote.UpdateByID(ctx, stocksync.TableItems, "does-not-exist", stocksync.ItemPatch{Quantity: &qty})
	require.True(t, errors.Is(err, stocksqlite.ErrRemoteNotFound), "got %v", err)
}

func TestPartialFailureKeepsFailedAction(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	device := h.NewDevice("phone")

	good1 := newItem(stocksync.NewID(), "Bolt", 3)
	bad := newItem(stocksync.NewID(), "", 3) // the server rejects empty names
	good2 := newItem(stocksync.NewID(), "Washer", 3)
	for _, it := range []stocksync.Item{good1, bad, good2} {
		_, err := device.Items.Add(ctx, it, false)
		require.NoError(t, err)
	}

	result, err := device.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ActionsSynced)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], bad.ID)

	pending, err := device.Queue.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, bad.ID, pending[0].TargetID)
}

func TestConcurrentDevicesConverge(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()

	const devices = 3
	var wg sync.WaitGroup
	errs := make(chan error, devices)
	for i := range devices {
		device := h.NewDevice("device" + string(rune('a'+i)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 5 {
				if _, err := device.Items.Add(ctx, newItem(stocksync.NewID(), "Part", j), j%2 == 0); err != nil {
					errs <- err
					return
				}
			}
			if _, err := device.Drain(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	observer := h.NewDevice("observer")
	items, _, err := observer.Items.Load(ctx, true)
	require.NoError(t, err)
	assert.Len(t, items, devices*5)
}

func TestUnreachableRemoteKeepsWork(t *testing.T) {
	h := NewHarness(t)
	ctx := context.Background()
	device, _ := h.UnreachableDevice("tunnel")

	_, err := device.Items.Add(ctx, newItem(stocksync.NewID(), "Lamp", 2), true)
	require.NoError(t, err, "a failed push is absorbed")

	result, err := device.Drain(ctx)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Zero(t, result.ActionsSynced)

	items, fromCache, err := device.Items.Load(ctx, true)
	require.NoError(t, err)
	assert.True(t, fromCache)
	assert.Len(t, items, 1)

	n, err := device.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
