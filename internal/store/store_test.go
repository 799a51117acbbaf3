package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errAbort = errors.New("abort")

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.UpsertProducts(ctx, []models.Product{
		{ID: "beer", Name: "Beer", Price: decimal.RequireFromString("10"), Active: true},
	}))
	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for id := int64(1); id <= 3; id++ {
			if err := tx.CreateTable(ctx, &models.Table{ID: id, Status: models.TableStatusFree}); err != nil {
				return err
			}
		}
		return nil
	}))
	return m
}

func TestMemoryRollbackDiscardsWrites(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	orderID := "o1"

	err := m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := tx.LockTable(ctx, 1)
		require.NoError(t, err)
		table.Status = models.TableStatusOccupied
		table.ActiveOrderID = &orderID
		require.NoError(t, tx.UpdateTable(ctx, table))
		require.NoError(t, tx.CreateOrder(ctx, &models.Order{ID: orderID, TableID: 1, Status: models.OrderStatusOpen}))

		inside, err := tx.GetTable(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.TableStatusOccupied, inside.Status)
		return errAbort
	})
	assert.ErrorIs(t, err, errAbort)

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := tx.GetTable(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, models.TableStatusFree, table.Status)
		assert.Nil(t, table.ActiveOrderID)

		_, err = tx.GetOrder(ctx, orderID)
		assert.ErrorIs(t, err, models.ErrNotFound)
		return nil
	}))
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := tx.GetTable(ctx, 2)
		require.NoError(t, err)
		table.Status = models.TableStatusAlert
		return nil
	}))

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := tx.GetTable(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, models.TableStatusFree, table.Status, "mutating a read must not write")
		return nil
	}))
}

func TestMemoryOrderItems(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.CreateOrder(ctx, &models.Order{ID: "o1", TableID: 1, Status: models.OrderStatusOpen}))
		require.NoError(t, tx.AddOrderItem(ctx, &models.OrderItem{ID: "i1", OrderID: "o1", ProductID: "beer", Quantity: 1}))
		return tx.AddOrderItem(ctx, &models.OrderItem{ID: "i2", OrderID: "o1", ProductID: "beer", Quantity: 1})
	}))

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.UpdateOrderItemQuantity(ctx, "i1", 5))
		return tx.DeleteOrderItem(ctx, "i2")
	}))

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrder(ctx, "o1")
		require.NoError(t, err)
		require.Len(t, order.Items, 1)
		assert.Equal(t, "i1", order.Items[0].ID)
		assert.Equal(t, 5, order.Items[0].Quantity)

		assert.ErrorIs(t, tx.DeleteOrderItem(ctx, "i2"), models.ErrNotFound)
		assert.ErrorIs(t, tx.UpdateOrderItemQuantity(ctx, "nope", 1), models.ErrNotFound)
		assert.ErrorIs(t, tx.CreateOrder(ctx, &models.Order{ID: "o1"}), models.ErrConflict)
		return nil
	}))
}

func TestMemorySales(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		for i, id := range []string{"s1", "s2", "s3"} {
			sale := &models.Sale{ID: id, TableID: 1, PaymentMethod: models.PaymentCash, Timestamp: base.Add(time.Duration(i) * time.Hour)}
			if err := tx.CreateSale(ctx, sale); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		from, to := base.Add(30*time.Minute), base.Add(2*time.Hour)
		sales, err := tx.ListSales(ctx, &from, &to)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, "s2", sales[0].ID)

		require.NoError(t, tx.DeleteSale(ctx, "s2"))
		_, err = tx.GetSale(ctx, "s2")
		assert.ErrorIs(t, err, models.ErrNotFound)
		assert.ErrorIs(t, tx.DeleteSale(ctx, "s2"), models.ErrNotFound)
		return nil
	}))

	require.NoError(t, m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		sales, err := tx.ListSales(ctx, nil, nil)
		require.NoError(t, err)
		require.Len(t, sales, 2)
		assert.Equal(t, "s1", sales[0].ID)
		assert.Equal(t, "s3", sales[1].ID)
		return nil
	}))
}

func TestMemoryCanceledContext(t *testing.T) {
	m := seedMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error { return nil })
	assert.ErrorIs(t, err, models.ErrConnectivity)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(fmt.Errorf("dial: %w", context.DeadlineExceeded)), models.ErrConnectivity)
	assert.ErrorIs(t, classify(&pq.Error{Code: "08006"}), models.ErrConnectivity)
	assert.ErrorIs(t, classify(&pq.Error{Code: "23505"}), models.ErrConflict)

	plain := errors.New("syntax error")
	assert.Equal(t, plain, classify(plain))
}

// TestPostgresLifecycle runs against a real database when TEST_DATABASE_URL
// is set
func TestPostgresLifecycle(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	s, err := NewStore(url)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	productID := "test-" + uuid.New().String()
	require.NoError(t, s.UpsertProducts(ctx, []models.Product{
		{ID: productID, Name: "Test Beer", Price: decimal.RequireFromString("10.00"), Active: true},
	}))

	tableID := time.Now().UnixNano()
	orderID := uuid.New().String()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.CreateTable(ctx, &models.Table{ID: tableID, Status: models.TableStatusFree}); err != nil {
			return err
		}
		table, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		table.Status = models.TableStatusOccupied
		table.ActiveOrderID = &orderID
		table.OccupiedSince = &now
		if err := tx.UpdateTable(ctx, table); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, &models.Order{ID: orderID, TableID: tableID, Status: models.OrderStatusOpen, StartTime: now}); err != nil {
			return err
		}
		return tx.AddOrderItem(ctx, &models.OrderItem{
			ID: uuid.New().String(), OrderID: orderID, ProductID: productID,
			ProductName: "Test Beer", PriceAtOrder: decimal.RequireFromString("10.00"), Quantity: 2,
		})
	}))

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		require.NoError(t, err)
		require.Len(t, order.Items, 1)
		assert.Equal(t, 2, order.Items[0].Quantity)
		assert.Equal(t, "10.00", order.Items[0].PriceAtOrder.StringFixed(2))

		product, err := tx.GetProduct(ctx, productID)
		require.NoError(t, err)
		assert.True(t, product.Active)
		return nil
	}))

	err = s.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := tx.LockTable(ctx, tableID)
		if err != nil {
			return err
		}
		table.Status = models.TableStatusFree
		return tx.UpdateTable(ctx, table)
	})
	assert.Error(t, err, "free table with an active order violates the table check")
}
