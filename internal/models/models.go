package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TableStatus is the occupancy state of a physical table
type TableStatus string

// Table statuses
const (
	TableStatusFree     TableStatus = "FREE"
	TableStatusOccupied TableStatus = "OCCUPIED"
	TableStatusAlert    TableStatus = "ALERT"
)

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusPaid     OrderStatus = "PAID"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// PaymentMethod is recorded on a paid order and its sale
type PaymentMethod string

// Payment methods
const (
	PaymentCash   PaymentMethod = "CASH"
	PaymentPix    PaymentMethod = "PIX"
	PaymentDebit  PaymentMethod = "DEBIT"
	PaymentCredit PaymentMethod = "CREDIT"
)

// PaymentMethods lists every accepted payment method
var PaymentMethods = []PaymentMethod{PaymentCash, PaymentPix, PaymentDebit, PaymentCredit}

// ParsePaymentMethod parses a payment method, ignoring case
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	pm := PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
	for _, m := range PaymentMethods {
		if pm == m {
			return pm, nil
		}
	}
	if pm == "" {
		return "", fmt.Errorf("%w: payment method is required", ErrValidation)
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
}

// Product represents a catalog product. The catalog is owned elsewhere and
// read here only to price new order lines.
type Product struct {
	ID            string          `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Category      string          `db:"category" json:"category"`
	Price         decimal.Decimal `db:"price" json:"price"`
	SendToKitchen bool            `db:"send_to_kitchen" json:"sendToKitchen"`
	Active        bool            `db:"active" json:"active"`
}

// Table represents a physical table and its link to the active order
type Table struct {
	ID            int64       `db:"id" json:"id"`
	Status        TableStatus `db:"status" json:"status"`
	ActiveOrderID *string     `db:"active_order_id" json:"activeOrderId"`
	OccupiedSince *time.Time  `db:"occupied_since" json:"occupiedSince"`
}

// Order represents the tab of an occupied table
type Order struct {
	ID            string          `db:"id" json:"id"`
	TableID       int64           `db:"table_id" json:"tableId"`
	Items         []OrderItem     `db:"-" json:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	Status        OrderStatus     `db:"status" json:"status"`
	StartTime     time.Time       `db:"start_time" json:"startTime"`
	EndTime       *time.Time      `db:"end_time" json:"endTime"`
	PaymentMethod *PaymentMethod  `db:"payment_method" json:"paymentMethod"`
}

// ItemByID returns the line with the given id
func (o *Order) ItemByID(itemID string) (*OrderItem, bool) {
	for i := range o.Items {
		if o.Items[i].ID == itemID {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the order
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.EndTime != nil {
		t := *o.EndTime
		c.EndTime = &t
	}
	if o.PaymentMethod != nil {
		pm := *o.PaymentMethod
		c.PaymentMethod = &pm
	}
	return &c
}

// OrderItem is a priced line of an order. Name, price and kitchen flag are
// snapshots taken when the line was added.
type OrderItem struct {
	ID            string          `db:"id" json:"id"`
	OrderID       string          `db:"order_id" json:"-"`
	ProductID     string          `db:"product_id" json:"productId"`
	ProductName   string          `db:"product_name" json:"productName"`
	PriceAtOrder  decimal.Decimal `db:"price_at_order" json:"priceAtOrder"`
	Quantity      int             `db:"quantity" json:"quantity"`
	SendToKitchen bool            `db:"send_to_kitchen" json:"sendToKitchen"`
}

// Subtotal returns price times quantity
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtOrder.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SameSnapshot reports whether both lines carry the same commercial facts
func (i OrderItem) SameSnapshot(other OrderItem) bool {
	return i.ProductID == other.ProductID &&
		i.ProductName == other.ProductName &&
		i.SendToKitchen == other.SendToKitchen &&
		i.PriceAtOrder.Equal(other.PriceAtOrder)
}

// Sale is the immutable financial record of a paid order
type Sale struct {
	ID            string          `db:"id" json:"id"`
	OrderID       *string         `db:"order_id" json:"orderId"`
	TableID       int64           `db:"table_id" json:"tableId"`
	Items         []SaleItem      `db:"-" json:"items"`
	TotalAmount   decimal.Decimal `db:"total_amount" json:"totalAmount"`
	PaymentMethod PaymentMethod   `db:"payment_method" json:"paymentMethod"`
	Timestamp     time.Time       `db:"sold_at" json:"timestamp"`
}

// Clone returns a deep copy of the sale
func (s *Sale) Clone() *Sale {
	c := *s
	c.Items = append([]SaleItem(nil), s.Items...)
	if s.OrderID != nil {
		id := *s.OrderID
		c.OrderID = &id
	}
	return &c
}

// SaleItem is the copy of an order line kept by a sale
type SaleItem struct {
	SaleID        string          `db:"sale_id" json:"-"`
	ProductID     string          `db:"product_id" json:"productId"`
	ProductName   string          `db:"product_name" json:"productName"`
	PriceAtSale   decimal.Decimal `db:"price_at_sale" json:"priceAtSale"`
	Quantity      int             `db:"quantity" json:"quantity"`
	SendToKitchen bool            `db:"send_to_kitchen" json:"sendToKitchen"`
}

// Subtotal returns price times quantity
func (i SaleItem) Subtotal() decimal.Decimal {
	return i.PriceAtSale.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Clone returns a deep copy of the table
func (t *Table) Clone() *Table {
	c := *t
	if t.ActiveOrderID != nil {
		id := *t.ActiveOrderID
		c.ActiveOrderID = &id
	}
	if t.OccupiedSince != nil {
		ts := *t.OccupiedSince
		c.OccupiedSince = &ts
	}
	return &c
}
