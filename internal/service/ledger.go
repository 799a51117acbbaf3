package service

import (
	"context"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"

	"github.com/shopspring/decimal"
)

// OrderLedger applies the order state machine inside one transaction.
// OPEN is the only mutable state; PAID and CANCELED are terminal.
type OrderLedger struct {
	orders   repository.OrderRepository
	products repository.ProductRepository
}

// NewOrderLedger creates a ledger bound to a transaction's repositories
func NewOrderLedger(orders repository.OrderRepository, products repository.ProductRepository) *OrderLedger {
	return &OrderLedger{orders: orders, products: products}
}

// RecomputeTotal sums price times quantity over all lines
func RecomputeTotal(items []models.OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Open creates an empty OPEN order for a table
func (l *OrderLedger) Open(ctx context.Context, orderID string, tableID int64, now time.Time) (*models.Order, error) {
	order := &models.Order{
		ID:          orderID,
		TableID:     tableID,
		Items:       []models.OrderItem{},
		TotalAmount: decimal.Zero,
		Status:      models.OrderStatusOpen,
		StartTime:   now,
	}
	if err := l.orders.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Get returns an order in any state
func (l *OrderLedger) Get(ctx context.Context, orderID string) (*models.Order, error) {
	return l.orders.GetOrder(ctx, orderID)
}

// AddItem adds quantity of a product. A line with the same product and the
// same snapshot is incremented instead of duplicated. The returned item is
// the affected line after the change.
func (l *OrderLedger) AddItem(ctx context.Context, orderID, productID string, quantity int) (*models.Order, *models.OrderItem, error) {
	order, err := l.openOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	product, err := l.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	line, err := PriceLine(product, quantity)
	if err != nil {
		return nil, nil, err
	}
	line.OrderID = order.ID

	var affected *models.OrderItem
	for i := range order.Items {
		existing := &order.Items[i]
		if !existing.SameSnapshot(line) {
			continue
		}
		existing.Quantity += quantity
		if err := l.orders.UpdateOrderItemQuantity(ctx, existing.ID, existing.Quantity); err != nil {
			return nil, nil, err
		}
		affected = existing
		break
	}

	if affected == nil {
		if err := l.orders.AddOrderItem(ctx, &line); err != nil {
			return nil, nil, err
		}
		order.Items = append(order.Items, line)
		affected = &order.Items[len(order.Items)-1]
	}

	if err := l.saveTotal(ctx, order); err != nil {
		return nil, nil, err
	}
	item := *affected
	return order, &item, nil
}

// UpdateQuantity sets the quantity of a line. Anything below 1 removes it.
func (l *OrderLedger) UpdateQuantity(ctx context.Context, orderID, itemID string, quantity int) (*models.Order, error) {
	if quantity < 1 {
		return l.RemoveItem(ctx, orderID, itemID)
	}

	order, err := l.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	item, ok := order.ItemByID(itemID)
	if !ok {
		return nil, fmt.Errorf("%w: item %s on order %s", models.ErrNotFound, itemID, orderID)
	}
	item.Quantity = quantity
	if err := l.orders.UpdateOrderItemQuantity(ctx, itemID, quantity); err != nil {
		return nil, err
	}

	if err := l.saveTotal(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// RemoveItem deletes a line from the order
func (l *OrderLedger) RemoveItem(ctx context.Context, orderID, itemID string) (*models.Order, error) {
	order, err := l.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if _, ok := order.ItemByID(itemID); !ok {
		return nil, fmt.Errorf("%w: item %s on order %s", models.ErrNotFound, itemID, orderID)
	}
	if err := l.orders.DeleteOrderItem(ctx, itemID); err != nil {
		return nil, err
	}

	remaining := make([]models.OrderItem, 0, len(order.Items)-1)
	for _, it := range order.Items {
		if it.ID != itemID {
			remaining = append(remaining, it)
		}
	}
	order.Items = remaining

	if err := l.saveTotal(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Close marks the order PAID. Orders without items cannot be closed.
func (l *OrderLedger) Close(ctx context.Context, orderID string, method models.PaymentMethod, now time.Time) (*models.Order, error) {
	if method == "" {
		return nil, fmt.Errorf("%w: payment method is required", models.ErrValidation)
	}

	order, err := l.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("%w: order %s has no items", models.ErrValidation, orderID)
	}

	order.TotalAmount = RecomputeTotal(order.Items)
	order.Status = models.OrderStatusPaid
	order.EndTime = &now
	order.PaymentMethod = &method

	if err := l.orders.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel marks the order CANCELED. Its lines stay with the order and no
// sale is produced.
func (l *OrderLedger) Cancel(ctx context.Context, orderID string, now time.Time) (*models.Order, error) {
	order, err := l.openOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	order.Status = models.OrderStatusCanceled
	order.EndTime = &now

	if err := l.orders.UpdateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// openOrder loads and row-locks an order, failing unless it is OPEN
func (l *OrderLedger) openOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := l.orders.LockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderStatusOpen {
		return nil, fmt.Errorf("%w: order %s is %s", models.ErrInvalidState, orderID, order.Status)
	}
	return order, nil
}

func (l *OrderLedger) saveTotal(ctx context.Context, order *models.Order) error {
	order.TotalAmount = RecomputeTotal(order.Items)
	return l.orders.UpdateOrder(ctx, order)
}
