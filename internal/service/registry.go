package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
)

// TableRegistry owns table occupancy and the table to order back-reference.
// A table has an active order exactly when its status is not FREE.
type TableRegistry struct {
	tables repository.TableRepository
}

// NewTableRegistry creates a registry bound to a transaction's repository
func NewTableRegistry(tables repository.TableRepository) *TableRegistry {
	return &TableRegistry{tables: tables}
}

// Initialize creates tables 1..n when no table exists yet. It returns the
// number of tables created.
func (r *TableRegistry) Initialize(ctx context.Context, n int) (int, error) {
	count, err := r.tables.CountTables(ctx)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		return 0, nil
	}

	for id := int64(1); id <= int64(n); id++ {
		if err := r.tables.CreateTable(ctx, &models.Table{ID: id, Status: models.TableStatusFree}); err != nil {
			return 0, fmt.Errorf("failed to create table %d: %w", id, err)
		}
	}
	return n, nil
}

// Get returns a snapshot of one table
func (r *TableRegistry) Get(ctx context.Context, tableID int64) (*models.Table, error) {
	return r.tables.GetTable(ctx, tableID)
}

// List returns snapshots of all tables
func (r *TableRegistry) List(ctx context.Context) ([]models.Table, error) {
	return r.tables.ListTables(ctx)
}

// ActiveOrderID resolves the order currently attached to a table
func (r *TableRegistry) ActiveOrderID(ctx context.Context, tableID int64) (string, error) {
	table, err := r.tables.LockTable(ctx, tableID)
	if err != nil {
		return "", err
	}
	if table.Status == models.TableStatusFree || table.ActiveOrderID == nil {
		return "", fmt.Errorf("%w: no active order on table %d", models.ErrNotFound, tableID)
	}
	return *table.ActiveOrderID, nil
}

// Occupy attaches an order to a FREE table
func (r *TableRegistry) Occupy(ctx context.Context, tableID int64, orderID string, now time.Time) (*models.Table, error) {
	table, err := r.tables.LockTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.Status != models.TableStatusFree {
		return nil, fmt.Errorf("%w: table %d is %s", models.ErrConflict, tableID, table.Status)
	}

	table.Status = models.TableStatusOccupied
	table.ActiveOrderID = &orderID
	table.OccupiedSince = &now

	if err := r.tables.UpdateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// Release frees an occupied or alerted table
func (r *TableRegistry) Release(ctx context.Context, tableID int64) (*models.Table, error) {
	table, err := r.tables.LockTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.Status == models.TableStatusFree {
		return nil, fmt.Errorf("%w: no active order on table %d", models.ErrNotFound, tableID)
	}

	table.Status = models.TableStatusFree
	table.ActiveOrderID = nil
	table.OccupiedSince = nil

	if err := r.tables.UpdateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// SetAlert flags an occupied table. Alerting an already alerted table is a
// no-op; a FREE table has nothing to alert on.
func (r *TableRegistry) SetAlert(ctx context.Context, tableID int64) (*models.Table, error) {
	table, err := r.tables.LockTable(ctx, tableID)
	if err != nil {
		return nil, err
	}

	switch table.Status {
	case models.TableStatusAlert:
		return table, nil
	case models.TableStatusFree:
		return nil, fmt.Errorf("%w: table %d is FREE", models.ErrInvalidState, tableID)
	}

	table.Status = models.TableStatusAlert
	if err := r.tables.UpdateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}

// ClearAlert returns an alerted table to OCCUPIED. Other states are left as is.
func (r *TableRegistry) ClearAlert(ctx context.Context, tableID int64) (*models.Table, error) {
	table, err := r.tables.LockTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if table.Status != models.TableStatusAlert {
		return table, nil
	}

	table.Status = models.TableStatusOccupied
	if err := r.tables.UpdateTable(ctx, table); err != nil {
		return nil, err
	}
	return table, nil
}
