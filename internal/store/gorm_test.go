package store_test

import (
	"context"
	"testing"
	"time"

	"pos_report/internal/model"
	"pos_report/internal/money"
	"pos_report/internal/sales"
	"pos_report/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertProductUpdatesPriceAndRestores(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()

	p, err := s.UpsertProduct(ctx, "Latte", 500)
	require.NoError(t, err)
	assert.NotZero(t, p.ID)

	again, err := s.UpsertProduct(ctx, "Latte", 550)
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
	assert.Equal(t, money.Amount(550), again.UnitPrice)

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	list, err := s.ListProducts(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = s.GetProduct(ctx, p.ID)
	assert.ErrorIs(t, err, sales.ErrNotFound)

	restored, err := s.UpsertProduct(ctx, "Latte", 600)
	require.NoError(t, err)
	assert.Equal(t, p.ID, restored.ID)

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(600), got.UnitPrice)
}

func TestDeleteMissingIsNotFound(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.DeleteProduct(ctx, 42), sales.ErrNotFound)
	assert.ErrorIs(t, s.DeletePlatform(ctx, 42), sales.ErrNotFound)
}

func TestUpsertPlatformIsIdempotent(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()

	a, err := s.UpsertPlatform(ctx, "Dine-in")
	require.NoError(t, err)
	b, err := s.UpsertPlatform(ctx, "Dine-in")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)

	list, err := s.ListPlatforms(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateOrderPersistsItemsInOrder(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()
	createdAt := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

	id, err := s.CreateOrder(ctx, nil, createdAt, []model.OrderItem{
		{ProductName: "Latte", UnitPrice: 500, Quantity: 2},
		{ProductName: "Muffin", UnitPrice: 300, Quantity: 1, Discount: 50},
	})
	require.NoError(t, err)

	orders, err := s.ListOrders(ctx, sales.OrderFilter{IDs: []uint{id}})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].CreatedAt.Equal(createdAt))
	assert.Nil(t, orders[0].PlatformID)

	items, err := s.ListItems(ctx, []uint{id})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Latte", items[0].ProductName)
	assert.Equal(t, money.Amount(1000), items[0].Subtotal)
	assert.Equal(t, "Muffin", items[1].ProductName)
	assert.Equal(t, money.Amount(250), items[1].Subtotal)
}

func TestCreateOrderRejectsEmpty(t *testing.T) {
	s := storetest.Store(t)
	_, err := s.CreateOrder(context.Background(), nil, time.Now(), nil)
	assert.ErrorIs(t, err, sales.ErrValidation)

	orders, err := s.ListOrders(context.Background(), sales.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestListOrdersFiltersHalfOpenRange(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()
	base := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{
		base.Add(-time.Second),
		base,
		base.Add(23*time.Hour + 59*time.Minute + 59*time.Second),
		base.Add(24 * time.Hour),
	} {
		_, err := s.CreateOrder(ctx, nil, at, []model.OrderItem{{ProductName: "Tea", UnitPrice: 100, Quantity: 1}})
		require.NoError(t, err)
	}

	orders, err := s.ListOrders(ctx, sales.OrderFilter{From: base, Until: base.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.True(t, orders[0].CreatedAt.After(orders[1].CreatedAt), "most recent first")

	empty, err := s.ListOrders(ctx, sales.OrderFilter{IDs: []uint{}})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUpdateItemRecomputesSubtotal(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()

	id, err := s.CreateOrder(ctx, nil, time.Now(), []model.OrderItem{
		{ProductName: "Latte", UnitPrice: 500, Quantity: 1},
	})
	require.NoError(t, err)
	items, err := s.ListItems(ctx, []uint{id})
	require.NoError(t, err)

	updated, err := s.UpdateItem(ctx, id, items[0].ID, 3, 200)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(1300), updated.Subtotal)

	items, err = s.ListItems(ctx, []uint{id})
	require.NoError(t, err)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, money.Amount(200), items[0].Discount)
	assert.Equal(t, money.Amount(1300), items[0].Subtotal)

	_, err = s.UpdateItem(ctx, id+1, items[0].ID, 1, 0)
	assert.ErrorIs(t, err, sales.ErrNotFound)
}

func TestSnapshotUsesTransaction(t *testing.T) {
	s := storetest.Store(t)
	ctx := context.Background()
	_, err := s.CreateOrder(ctx, nil, time.Now(), []model.OrderItem{{ProductName: "Tea", UnitPrice: 100, Quantity: 1}})
	require.NoError(t, err)

	var n int
	err = s.Snapshot(ctx, func(tx sales.Store) error {
		orders, err := tx.ListOrders(ctx, sales.OrderFilter{})
		n = len(orders)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
