package service

import (
	"context"
	"testing"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInitialize(t *testing.T) {
	mem := store.NewMemory()

	var created int
	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		created, err = NewTableRegistry(tx).Initialize(ctx, 20)
		return err
	}))
	assert.Equal(t, 20, created)

	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		created, err = NewTableRegistry(tx).Initialize(ctx, 20)
		return err
	}))
	assert.Zero(t, created)

	var tables []models.Table
	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		tables, err = NewTableRegistry(tx).List(ctx)
		return err
	}))
	require.Len(t, tables, 20)
	assert.Equal(t, int64(1), tables[0].ID)
	assert.Equal(t, int64(20), tables[19].ID)
	for _, table := range tables {
		assert.Equal(t, models.TableStatusFree, table.Status)
		assert.Nil(t, table.ActiveOrderID)
	}
}

func TestRegistryOccupyRelease(t *testing.T) {
	mem := newMemoryStore(t, 3)
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)

	var table *models.Table
	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = NewTableRegistry(tx).Occupy(ctx, 2, "o1", now)
		return err
	}))
	assert.Equal(t, models.TableStatusOccupied, table.Status)
	require.NotNil(t, table.ActiveOrderID)
	assert.Equal(t, "o1", *table.ActiveOrderID)
	require.NotNil(t, table.OccupiedSince)
	assert.True(t, now.Equal(*table.OccupiedSince))

	err := inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).Occupy(ctx, 2, "o2", now)
		return err
	})
	assert.ErrorIs(t, err, models.ErrConflict)

	var orderID string
	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		orderID, err = NewTableRegistry(tx).ActiveOrderID(ctx, 2)
		return err
	}))
	assert.Equal(t, "o1", orderID)

	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = NewTableRegistry(tx).Release(ctx, 2)
		return err
	}))
	assert.Equal(t, models.TableStatusFree, table.Status)
	assert.Nil(t, table.ActiveOrderID)
	assert.Nil(t, table.OccupiedSince)

	err = inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).Release(ctx, 2)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).ActiveOrderID(ctx, 2)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)

	err = inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).Occupy(ctx, 99, "o3", now)
		return err
	})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRegistryAlerts(t *testing.T) {
	mem := newMemoryStore(t, 2)
	now := time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC)

	err := inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).SetAlert(ctx, 1)
		return err
	})
	assert.ErrorIs(t, err, models.ErrInvalidState, "free table cannot alert")

	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).Occupy(ctx, 1, "o1", now)
		return err
	}))

	for i := 0; i < 2; i++ {
		var table *models.Table
		require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
			var err error
			table, err = NewTableRegistry(tx).SetAlert(ctx, 1)
			return err
		}))
		assert.Equal(t, models.TableStatusAlert, table.Status)
		require.NotNil(t, table.ActiveOrderID)
		assert.Equal(t, "o1", *table.ActiveOrderID)
	}

	var table *models.Table
	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = NewTableRegistry(tx).ClearAlert(ctx, 1)
		return err
	}))
	assert.Equal(t, models.TableStatusOccupied, table.Status)
	require.NotNil(t, table.ActiveOrderID)

	require.NoError(t, inTx(t, mem, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = NewTableRegistry(tx).ClearAlert(ctx, 2)
		return err
	}))
	assert.Equal(t, models.TableStatusFree, table.Status)
}
