package models

import "time"

// Event types
const (
	EventTypeOrderStarted  = "ORDER_STARTED"
	EventTypeKitchenTicket = "KITCHEN_TICKET"
	EventTypeOrderClosed   = "ORDER_CLOSED"
	EventTypeOrderCanceled = "ORDER_CANCELED"
	EventTypeSaleCanceled  = "SALE_CANCELED"

	EventTypeTableAlertRaised  = "TABLE_ALERT_RAISED"
	EventTypeTableAlertCleared = "TABLE_ALERT_CLEARED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderStartedEvent published when a table is opened
type OrderStartedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	TableID int64  `json:"table_id"`
}

// KitchenTicketEvent published when a kitchen item is added to an order.
// Printers subscribe to it; delivery is best effort.
type KitchenTicketEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	TableID     int64  `json:"table_id"`
	ItemID      string `json:"item_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
}

// OrderClosedEvent carries the receipt of a paid order
type OrderClosedEvent struct {
	BaseEvent
	OrderID       string            `json:"order_id"`
	SaleID        string            `json:"sale_id"`
	TableID       int64             `json:"table_id"`
	PaymentMethod PaymentMethod     `json:"payment_method"`
	TotalAmount   string            `json:"total_amount"`
	Lines         []ReceiptLineData `json:"lines"`
}

// ReceiptLineData is one printed receipt line
type ReceiptLineData struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Subtotal    string `json:"subtotal"`
}

// OrderCanceledEvent published when an open order is canceled
type OrderCanceledEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	TableID int64  `json:"table_id"`
}

// SaleCanceledEvent published when a recorded sale is reversed
type SaleCanceledEvent struct {
	BaseEvent
	SaleID  string `json:"sale_id"`
	TableID int64  `json:"table_id"`
}

// TableAlertEvent is written by the external table monitor
type TableAlertEvent struct {
	BaseEvent
	TableID int64  `json:"table_id"`
	Reason  string `json:"reason,omitempty"`
}
