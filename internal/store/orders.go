package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"pos-service/internal/models"
)

const (
	orderColumns     = "id, table_id, total_amount, status, start_time, end_time, payment_method"
	orderItemColumns = "id, order_id, product_id, product_name, price_at_order, quantity, send_to_kitchen"
)

// CreateOrder creates a new order header. Items are added separately.
func (r *txRepo) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO orders ("+orderColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		order.ID, order.TableID, order.TotalAmount, order.Status,
		order.StartTime, order.EndTime, order.PaymentMethod)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", classify(err))
	}
	return nil
}

// GetOrder retrieves an order with its items
func (r *txRepo) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return r.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
}

// LockOrder retrieves an order with its items and locks the order row
func (r *txRepo) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return r.getOrder(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = $1 FOR UPDATE", id)
}

func (r *txRepo) getOrder(ctx context.Context, query, id string) (*models.Order, error) {
	var order models.Order
	err := r.tx.GetContext(ctx, &order, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	if err != nil {
		return nil, classify(err)
	}

	order.Items = []models.OrderItem{}
	err = r.tx.SelectContext(ctx, &order.Items,
		"SELECT "+orderItemColumns+" FROM order_items WHERE order_id = $1 ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load order items: %w", classify(err))
	}
	return &order, nil
}

// UpdateOrder writes the mutable order header fields
func (r *txRepo) UpdateOrder(ctx context.Context, order *models.Order) error {
	res, err := r.tx.ExecContext(ctx,
		"UPDATE orders SET total_amount = $1, status = $2, end_time = $3, payment_method = $4 WHERE id = $5",
		order.TotalAmount, order.Status, order.EndTime, order.PaymentMethod, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", classify(err))
	}
	return expectAffected(res, "order", order.ID)
}

// AddOrderItem inserts an order line
func (r *txRepo) AddOrderItem(ctx context.Context, item *models.OrderItem) error {
	_, err := r.tx.ExecContext(ctx,
		"INSERT INTO order_items ("+orderItemColumns+") VALUES ($1, $2, $3, $4, $5, $6, $7)",
		item.ID, item.OrderID, item.ProductID, item.ProductName,
		item.PriceAtOrder, item.Quantity, item.SendToKitchen)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", classify(err))
	}
	return nil
}

// UpdateOrderItemQuantity sets the quantity of an order line
func (r *txRepo) UpdateOrderItemQuantity(ctx context.Context, itemID string, quantity int) error {
	res, err := r.tx.ExecContext(ctx,
		"UPDATE order_items SET quantity = $1 WHERE id = $2", quantity, itemID)
	if err != nil {
		return fmt.Errorf("failed to update order item: %w", classify(err))
	}
	return expectAffected(res, "order item", itemID)
}

// DeleteOrderItem removes an order line
func (r *txRepo) DeleteOrderItem(ctx context.Context, itemID string) error {
	res, err := r.tx.ExecContext(ctx, "DELETE FROM order_items WHERE id = $1", itemID)
	if err != nil {
		return fmt.Errorf("failed to delete order item: %w", classify(err))
	}
	return expectAffected(res, "order item", itemID)
}
