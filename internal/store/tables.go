package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"
)

const tableColumns = "id, status, active_order_id, occupied_since"

// GetTable retrieves a table by ID
func (r *txRepo) GetTable(ctx context.Context, id int64) (*models.Table, error) {
	return r.getTable(ctx, "SELECT "+tableColumns+" FROM restaurant_tables WHERE id = $1", id)
}

// LockTable retrieves a table by ID and locks its row (FOR UPDATE)
func (r *txRepo) LockTable(ctx context.Context, id int64) (*models.Table, error) {
	return r.getTable(ctx, "SELECT "+tableColumns+" FROM restaurant_tables WHERE id = $1 FOR UPDATE", id)
}

func (r *txRepo) getTable(ctx context.Context, query string, id int64) (*models.Table, error) {
	var table models.Table
	err := r.tx.GetContext(ctx, &table, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: table %d", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &table, nil
}

// ListTables retrieves all tables ordered by ID
func (r *txRepo) ListTables(ctx context.Context) ([]models.Table, error) {
	tables := []models.Table{}
	err := r.tx.SelectContext(ctx, &tables, "SELECT "+tableColumns+" FROM restaurant_tables ORDER BY id")
	return tables, classify(err)
}

// CountTables returns the number of tables
func (r *txRepo) CountTables(ctx context.Context) (int, error) {
	var n int
	err := r.tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM restaurant_tables")
	return n, classify(err)
}

// CreateTable inserts a table
func (r *txRepo) CreateTable(ctx context.Context, table *models.Table) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO restaurant_tables ("+tableColumns+") VALUES ($1, $2, $3, $4)",
		table.ID, table.Status, table.ActiveOrderID, table.OccupiedSince)
	return classify(err)
}

// UpdateTable writes status, active order and occupancy time
func (r *txRepo) UpdateTable(ctx context.Context, table *models.Table) error {
	res, err := r.tx.ExecContext(ctx,
		"UPDATE restaurant_tables SET status = $1, active_order_id = $2, occupied_since = $3 WHERE id = $4",
		table.Status, table.ActiveOrderID, table.OccupiedSince, table.ID)
	if err != nil {
		return classify(err)
	}
	return expectAffected(res, "table", table.ID)
}
