package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pos-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	saleColumns     = "id, order_id, table_id, total_amount, payment_method, sold_at"
	saleItemColumns = "sale_id, product_id, product_name, price_at_sale, quantity, send_to_kitchen"
)

// CreateSale inserts a sale and its items
func (r *txRepo) CreateSale(ctx context.Context, sale *models.Sale) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO sales ("+saleColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
		sale.ID, sale.OrderID, sale.TableID, sale.TotalAmount, sale.PaymentMethod, sale.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create sale: %w", classify(err))
	}

	for _, item := range sale.Items {
		_, err := r.tx.ExecContext(ctx,
			"INSERT INTO sale_items ("+saleItemColumns+") VALUES ($1, $2, $3, $4, $5, $6)",
			sale.ID, item.ProductID, item.ProductName, item.PriceAtSale, item.Quantity, item.SendToKitchen)
		if err != nil {
			return fmt.Errorf("failed to create sale item: %w", classify(err))
		}
	}
	return nil
}

// GetSale retrieves a sale with its items
func (r *txRepo) GetSale(ctx context.Context, id string) (*models.Sale, error) {
	var sale models.Sale
	err := r.tx.GetContext(ctx, &sale, "SELECT "+saleColumns+" FROM sales WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: sale %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err)
	}

	sales := []models.Sale{sale}
	if err := r.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

// DeleteSale removes a sale; items go with it (ON DELETE CASCADE)
func (r *txRepo) DeleteSale(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx, "DELETE FROM sales WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete sale: %w", classify(err))
	}
	return expectAffected(res, "sale", id)
}

// ListSales retrieves sales in a time window, oldest first
func (r *txRepo) ListSales(ctx context.Context, from, to *time.Time) ([]models.Sale, error) {
	var (
		conds []string
		args  []interface{}
	)
	if from != nil {
		args = append(args, *from)
		conds = append(conds, fmt.Sprintf("sold_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, *to)
		conds = append(conds, fmt.Sprintf("sold_at < $%d", len(args)))
	}

	query := "SELECT " + saleColumns + " FROM sales"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sold_at"

	sales := []models.Sale{}
	if err := r.tx.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", classify(err))
	}
	if err := r.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

// attachSaleItems loads the items of all given sales in one query
func (r *txRepo) attachSaleItems(ctx context.Context, sales []models.Sale) error {
	if len(sales) == 0 {
		return nil
	}

	ids := make([]string, len(sales))
	index := make(map[string]int, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
		index[sales[i].ID] = i
		sales[i].Items = []models.SaleItem{}
	}

	query, args, err := sqlx.In("SELECT "+saleItemColumns+" FROM sale_items WHERE sale_id IN (?) ORDER BY seq", ids)
	if err != nil {
		return err
	}
	query = r.tx.Rebind(query)

	var items []models.SaleItem
	if err := r.tx.SelectContext(ctx, &items, query, args...); err != nil {
		return fmt.Errorf("failed to load sale items: %w", classify(err))
	}

	for _, item := range items {
		i := index[item.SaleID]
		sales[i].Items = append(sales[i].Items, item)
	}
	return nil
}
