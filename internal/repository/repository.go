// Package repository declares the persistence contracts used by the service
// layer. internal/store provides the Postgres and in-memory implementations.
package repository

import (
	"context"
	"time"

	"pos-service/internal/models"
)

// TableRepository persists table occupancy
type TableRepository interface {
	// GetTable returns models.ErrNotFound for unknown ids
	GetTable(ctx context.Context, id int64) (*models.Table, error)
	// LockTable is GetTable plus a row lock held until the transaction ends
	LockTable(ctx context.Context, id int64) (*models.Table, error)
	ListTables(ctx context.Context) ([]models.Table, error)
	CountTables(ctx context.Context) (int, error)
	CreateTable(ctx context.Context, table *models.Table) error
	UpdateTable(ctx context.Context, table *models.Table) error
}

// OrderRepository persists orders and their lines
type OrderRepository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	// GetOrder loads the order with its items in insertion order
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	// LockOrder is GetOrder plus a row lock held until the transaction ends
	LockOrder(ctx context.Context, id string) (*models.Order, error)
	// UpdateOrder writes total, status, end time and payment method
	UpdateOrder(ctx context.Context, order *models.Order) error
	AddOrderItem(ctx context.Context, item *models.OrderItem) error
	UpdateOrderItemQuantity(ctx context.Context, itemID string, quantity int) error
	DeleteOrderItem(ctx context.Context, itemID string) error
}

// SaleRepository persists the sales journal
type SaleRepository interface {
	CreateSale(ctx context.Context, sale *models.Sale) error
	GetSale(ctx context.Context, id string) (*models.Sale, error)
	// DeleteSale returns models.ErrNotFound when nothing was deleted
	DeleteSale(ctx context.Context, id string) error
	// ListSales returns sales with items whose timestamp is in [from, to).
	// Nil bounds are open.
	ListSales(ctx context.Context, from, to *time.Time) ([]models.Sale, error)
}

// ProductRepository is the read side of the product catalog
type ProductRepository interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

// Tx is a unit of work spanning every repository
type Tx interface {
	TableRepository
	OrderRepository
	SaleRepository
	ProductRepository
}

// TxRunner runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
