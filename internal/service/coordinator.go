package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

// Options tunes a Coordinator. Zero values fall back to defaults.
type Options struct {
	// Location is the venue time zone used for day filters
	Location *time.Location
	LockWait time.Duration
	DedupTTL time.Duration
	Clock    func() time.Time
}

// Coordinator runs every table and order operation as one transaction under
// the table and order locks. Either all effects of an operation are stored
// or none are. Events go out only after commit.
type Coordinator struct {
	tx        repository.TxRunner
	locker    Locker
	dedup     Deduplicator
	publisher Publisher
	location  *time.Location
	lockWait  time.Duration
	dedupTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// NewCoordinator creates a new coordinator
func NewCoordinator(
	tx repository.TxRunner,
	locker Locker,
	dedup Deduplicator,
	publisher Publisher,
	opts Options,
) *Coordinator {
	c := &Coordinator{
		tx:        tx,
		locker:    locker,
		dedup:     dedup,
		publisher: publisher,
		location:  opts.Location,
		lockWait:  opts.LockWait,
		dedupTTL:  opts.DedupTTL,
		now:       opts.Clock,
		logger:    util.Named("coordinator"),
	}
	if c.publisher == nil {
		c.publisher = NopPublisher{}
	}
	if c.location == nil {
		c.location = time.UTC
	}
	if c.lockWait <= 0 {
		c.lockWait = 5 * time.Second
	}
	if c.dedupTTL <= 0 {
		c.dedupTTL = 10 * time.Minute
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Location returns the venue time zone
func (c *Coordinator) Location() *time.Location {
	return c.location
}

// InitializeTables creates tables 1..n on an empty store
func (c *Coordinator) InitializeTables(ctx context.Context, n int) (int, error) {
	var created int
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		created, err = NewTableRegistry(tx).Initialize(ctx, n)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize tables: %w", err)
	}
	if created > 0 {
		c.logger.Info("Tables initialized", zap.Int("count", created))
	}
	return created, nil
}

// StartOrder opens a new order on a FREE table
func (c *Coordinator) StartOrder(ctx context.Context, tableID int64) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.StartOrder")
	defer span.End()
	defer c.observe("start_order", time.Now(), &err)

	unlock, err := c.lock(ctx, tableKey(tableID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := c.now()
	orderID := uuid.New().String()

	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if _, err := NewTableRegistry(tx).Occupy(ctx, tableID, orderID, now); err != nil {
			return err
		}
		var err error
		order, err = NewOrderLedger(tx, tx).Open(ctx, orderID, tableID, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.OrdersStartedTotal.Inc()
	c.logger.Info("Order started",
		zap.Int64("table_id", tableID),
		zap.String("order_id", order.ID))

	c.publish(ctx, models.EventTypeOrderStarted, func(ctx context.Context) error {
		return c.publisher.PublishOrderStarted(ctx, &models.OrderStartedEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderStarted, now),
			OrderID:   order.ID,
			TableID:   tableID,
		})
	})

	return order, nil
}

// AddItem adds a product to the table's active order. A non-empty requestID
// is remembered per order; repeating it returns the current order without
// adding again.
func (c *Coordinator) AddItem(ctx context.Context, tableID int64, productID string, quantity int, requestID string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.AddItem")
	defer span.End()
	defer c.observe("add_item", time.Now(), &err)

	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1, got %d", models.ErrValidation, quantity)
	}

	orderID, unlock, err := c.lockActiveOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if c.dedup == nil {
		requestID = ""
	}
	if requestID != "" {
		claimed, err := c.dedup.Claim(ctx, orderID, requestID, c.dedupTTL)
		if err != nil {
			return nil, err
		}
		if !claimed {
			util.DuplicateRequestsTotal.Inc()
			c.logger.Info("Duplicate add item request",
				zap.String("order_id", orderID),
				zap.String("request_id", requestID))
			return c.GetOrder(ctx, orderID)
		}
	}

	var item *models.OrderItem
	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := requireActive(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		var err error
		order, item, err = NewOrderLedger(tx, tx).AddItem(ctx, orderID, productID, quantity)
		return err
	})
	if err != nil {
		if requestID != "" {
			if ferr := c.dedup.Forget(context.WithoutCancel(ctx), orderID, requestID); ferr != nil {
				c.logger.Warn("Failed to forget request id", zap.String("request_id", requestID), zap.Error(ferr))
			}
		}
		return nil, err
	}

	util.OrderItemsAddedTotal.Add(float64(quantity))
	c.logger.Info("Item added",
		zap.Int64("table_id", tableID),
		zap.String("order_id", orderID),
		zap.String("product_id", productID),
		zap.Int("quantity", quantity),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	if item.SendToKitchen {
		now := c.now()
		c.publish(ctx, models.EventTypeKitchenTicket, func(ctx context.Context) error {
			return c.publisher.PublishKitchenTicket(ctx, &models.KitchenTicketEvent{
				BaseEvent:   newBaseEvent(models.EventTypeKitchenTicket, now),
				OrderID:     orderID,
				TableID:     tableID,
				ItemID:      item.ID,
				ProductName: item.ProductName,
				Quantity:    quantity,
			})
		})
	}

	return order, nil
}

// RemoveItem deletes a line from the table's active order
func (c *Coordinator) RemoveItem(ctx context.Context, tableID int64, itemID string) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.RemoveItem")
	defer span.End()
	defer c.observe("remove_item", time.Now(), &err)

	orderID, unlock, err := c.lockActiveOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := requireActive(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		var err error
		order, err = NewOrderLedger(tx, tx).RemoveItem(ctx, orderID, itemID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Item removed",
		zap.Int64("table_id", tableID),
		zap.String("order_id", orderID),
		zap.String("item_id", itemID))
	return order, nil
}

// UpdateQuantity sets a line's quantity. Quantities below 1 remove the line.
func (c *Coordinator) UpdateQuantity(ctx context.Context, tableID int64, itemID string, quantity int) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.UpdateQuantity")
	defer span.End()
	defer c.observe("update_quantity", time.Now(), &err)

	orderID, unlock, err := c.lockActiveOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := requireActive(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		var err error
		order, err = NewOrderLedger(tx, tx).UpdateQuantity(ctx, orderID, itemID, quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Item quantity updated",
		zap.Int64("table_id", tableID),
		zap.String("order_id", orderID),
		zap.String("item_id", itemID),
		zap.Int("quantity", quantity))
	return order, nil
}

// CloseOrder pays the table's active order, records the sale and frees the
// table in one transaction
func (c *Coordinator) CloseOrder(ctx context.Context, tableID int64, method models.PaymentMethod) (sale *models.Sale, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.CloseOrder")
	defer span.End()
	defer c.observe("close_order", time.Now(), &err)

	method, err = models.ParsePaymentMethod(string(method))
	if err != nil {
		return nil, err
	}

	orderID, unlock, err := c.lockTableAndOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := c.now()
	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := requireActive(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		order, err := NewOrderLedger(tx, tx).Close(ctx, orderID, method, now)
		if err != nil {
			return err
		}
		sale, err = SaleFromOrder(order, now)
		if err != nil {
			return err
		}
		if err := NewSalesJournal(tx, c.location).Record(ctx, sale); err != nil {
			return fmt.Errorf("failed to record sale: %w", err)
		}
		_, err = NewTableRegistry(tx).Release(ctx, tableID)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.OrdersClosedTotal.WithLabelValues(string(method)).Inc()
	util.SalesAmountTotal.WithLabelValues(string(method)).Add(sale.TotalAmount.InexactFloat64())
	c.logger.Info("Order closed",
		zap.Int64("table_id", tableID),
		zap.String("order_id", orderID),
		zap.String("sale_id", sale.ID),
		zap.String("payment_method", string(method)),
		zap.String("total", sale.TotalAmount.StringFixed(2)))

	c.publish(ctx, models.EventTypeOrderClosed, func(ctx context.Context) error {
		return c.publisher.PublishOrderClosed(ctx, receiptEvent(sale, now))
	})

	return sale, nil
}

// CancelOrder discards the table's active order and frees the table. No
// sale is recorded.
func (c *Coordinator) CancelOrder(ctx context.Context, tableID int64) (order *models.Order, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.CancelOrder")
	defer span.End()
	defer c.observe("cancel_order", time.Now(), &err)

	orderID, unlock, err := c.lockTableAndOrder(ctx, tableID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := c.now()
	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := requireActive(ctx, tx, tableID, orderID); err != nil {
			return err
		}
		var err error
		order, err = NewOrderLedger(tx, tx).Cancel(ctx, orderID, now)
		if err != nil {
			return err
		}
		_, err = NewTableRegistry(tx).Release(ctx, tableID)
		return err
	})
	if err != nil {
		return nil, err
	}

	util.OrdersCanceledTotal.Inc()
	c.logger.Info("Order canceled",
		zap.Int64("table_id", tableID),
		zap.String("order_id", orderID))

	c.publish(ctx, models.EventTypeOrderCanceled, func(ctx context.Context) error {
		return c.publisher.PublishOrderCanceled(ctx, &models.OrderCanceledEvent{
			BaseEvent: newBaseEvent(models.EventTypeOrderCanceled, now),
			OrderID:   orderID,
			TableID:   tableID,
		})
	})

	return order, nil
}

// CancelSale reverses a recorded sale. Tables and orders are not touched.
func (c *Coordinator) CancelSale(ctx context.Context, saleID string) (err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.CancelSale")
	defer span.End()
	defer c.observe("cancel_sale", time.Now(), &err)

	var sale *models.Sale
	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		journal := NewSalesJournal(tx, c.location)
		var err error
		sale, err = journal.Get(ctx, saleID)
		if err != nil {
			return err
		}
		return journal.Reverse(ctx, saleID)
	})
	if err != nil {
		return err
	}

	util.SalesCanceledTotal.Inc()
	c.logger.Info("Sale canceled",
		zap.String("sale_id", saleID),
		zap.Int64("table_id", sale.TableID))

	now := c.now()
	c.publish(ctx, models.EventTypeSaleCanceled, func(ctx context.Context) error {
		return c.publisher.PublishSaleCanceled(ctx, &models.SaleCanceledEvent{
			BaseEvent: newBaseEvent(models.EventTypeSaleCanceled, now),
			SaleID:    saleID,
			TableID:   sale.TableID,
		})
	})
	return nil
}

// SetAlert marks an occupied table as needing attention
func (c *Coordinator) SetAlert(ctx context.Context, tableID int64) (*models.Table, error) {
	return c.updateAlert(ctx, tableID, "set_alert", (*TableRegistry).SetAlert)
}

// ClearAlert returns an alerted table to OCCUPIED
func (c *Coordinator) ClearAlert(ctx context.Context, tableID int64) (*models.Table, error) {
	return c.updateAlert(ctx, tableID, "clear_alert", (*TableRegistry).ClearAlert)
}

func (c *Coordinator) updateAlert(
	ctx context.Context,
	tableID int64,
	op string,
	apply func(*TableRegistry, context.Context, int64) (*models.Table, error),
) (table *models.Table, err error) {
	ctx, span := util.StartSpan(ctx, "Coordinator.UpdateAlert")
	defer span.End()
	defer c.observe(op, time.Now(), &err)

	unlock, err := c.lock(ctx, tableKey(tableID))
	if err != nil {
		return nil, err
	}
	defer unlock()

	err = c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = apply(NewTableRegistry(tx), ctx, tableID)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("Table alert updated",
		zap.Int64("table_id", tableID),
		zap.String("status", string(table.Status)))
	return table, nil
}

// ListTables returns every table ordered by id
func (c *Coordinator) ListTables(ctx context.Context) ([]models.Table, error) {
	var tables []models.Table
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		tables, err = NewTableRegistry(tx).List(ctx)
		return err
	})
	return tables, err
}

// GetTable returns one table
func (c *Coordinator) GetTable(ctx context.Context, tableID int64) (*models.Table, error) {
	var table *models.Table
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		table, err = NewTableRegistry(tx).Get(ctx, tableID)
		return err
	})
	return table, err
}

// GetActiveOrder returns the table's active order, or nil when the table is
// FREE
func (c *Coordinator) GetActiveOrder(ctx context.Context, tableID int64) (*models.Order, error) {
	var order *models.Order
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		table, err := NewTableRegistry(tx).Get(ctx, tableID)
		if err != nil {
			return err
		}
		if table.ActiveOrderID == nil {
			return nil
		}
		order, err = NewOrderLedger(tx, tx).Get(ctx, *table.ActiveOrderID)
		return err
	})
	return order, err
}

// GetOrder returns an order in any state
func (c *Coordinator) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	var order *models.Order
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		order, err = NewOrderLedger(tx, tx).Get(ctx, orderID)
		return err
	})
	return order, err
}

// GetSale returns one recorded sale
func (c *Coordinator) GetSale(ctx context.Context, saleID string) (*models.Sale, error) {
	var sale *models.Sale
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		sale, err = NewSalesJournal(tx, c.location).Get(ctx, saleID)
		return err
	})
	return sale, err
}

// ListSales returns recorded sales matching filter
func (c *Coordinator) ListSales(ctx context.Context, filter SalesFilter) ([]models.Sale, error) {
	var sales []models.Sale
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		sales, err = NewSalesJournal(tx, c.location).List(ctx, filter)
		return err
	})
	return sales, err
}

// SalesSummary aggregates recorded sales matching filter
func (c *Coordinator) SalesSummary(ctx context.Context, filter SalesFilter) (*SalesSummary, error) {
	var summary *SalesSummary
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		summary, err = NewSalesJournal(tx, c.location).Summary(ctx, filter)
		return err
	})
	return summary, err
}

// lock acquires key within the lock wait budget
func (c *Coordinator) lock(ctx context.Context, key string) (func(), error) {
	start := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, c.lockWait)
	defer cancel()

	unlock, err := c.locker.Lock(lockCtx, key)
	util.LockWaitLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, fmt.Errorf("%w: lock %s: %w", models.ErrConnectivity, key, err)
	}
	return unlock, nil
}

// lockActiveOrder resolves the table's active order and locks it. Callers
// must re-check the association inside their transaction.
func (c *Coordinator) lockActiveOrder(ctx context.Context, tableID int64) (string, func(), error) {
	orderID, err := c.activeOrderID(ctx, tableID)
	if err != nil {
		return "", nil, err
	}
	unlock, err := c.lock(ctx, orderKey(orderID))
	if err != nil {
		return "", nil, err
	}
	return orderID, unlock, nil
}

// lockTableAndOrder takes the table lock, then the lock of its active order
func (c *Coordinator) lockTableAndOrder(ctx context.Context, tableID int64) (string, func(), error) {
	unlockTable, err := c.lock(ctx, tableKey(tableID))
	if err != nil {
		return "", nil, err
	}
	orderID, unlockOrder, err := c.lockActiveOrder(ctx, tableID)
	if err != nil {
		unlockTable()
		return "", nil, err
	}
	return orderID, func() {
		unlockOrder()
		unlockTable()
	}, nil
}

func (c *Coordinator) activeOrderID(ctx context.Context, tableID int64) (string, error) {
	var orderID string
	err := c.tx.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		orderID, err = NewTableRegistry(tx).ActiveOrderID(ctx, tableID)
		return err
	})
	return orderID, err
}

// requireActive fails when the table moved on to another order (or none)
// between lock acquisition and the transaction
func requireActive(ctx context.Context, tx repository.Tx, tableID int64, orderID string) error {
	current, err := NewTableRegistry(tx).ActiveOrderID(ctx, tableID)
	if err != nil {
		return err
	}
	if current != orderID {
		return fmt.Errorf("%w: no active order %s on table %d", models.ErrNotFound, orderID, tableID)
	}
	return nil
}

// publish sends an event after commit. Failures are logged and counted only.
func (c *Coordinator) publish(ctx context.Context, eventType string, send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := send(ctx); err != nil {
		util.EventsFailedTotal.WithLabelValues(eventType).Inc()
		c.logger.Error("Failed to publish event",
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}
	util.EventsPublishedTotal.WithLabelValues(eventType).Inc()
}

func (c *Coordinator) observe(op string, start time.Time, errp *error) {
	util.OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err := *errp; err != nil {
		util.OperationsFailedTotal.WithLabelValues(op, ErrorKind(err)).Inc()
		c.logger.Debug("Operation failed", zap.String("operation", op), zap.Error(err))
	}
}

// ErrorKind names the failure class of err for metrics and responses
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrConflict):
		return "conflict"
	case errors.Is(err, models.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, models.ErrValidation):
		return "validation"
	case errors.Is(err, models.ErrConnectivity):
		return "connectivity"
	default:
		return "internal"
	}
}

func tableKey(tableID int64) string {
	return fmt.Sprintf("table:%d", tableID)
}

func orderKey(orderID string) string {
	return fmt.Sprintf("order:%s", orderID)
}

func newBaseEvent(eventType string, now time.Time) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: now,
	}
}

func receiptEvent(sale *models.Sale, now time.Time) *models.OrderClosedEvent {
	event := &models.OrderClosedEvent{
		BaseEvent:     newBaseEvent(models.EventTypeOrderClosed, now),
		SaleID:        sale.ID,
		TableID:       sale.TableID,
		PaymentMethod: sale.PaymentMethod,
		TotalAmount:   sale.TotalAmount.StringFixed(2),
		Lines:         make([]models.ReceiptLineData, 0, len(sale.Items)),
	}
	if sale.OrderID != nil {
		event.OrderID = *sale.OrderID
	}
	for _, item := range sale.Items {
		event.Lines = append(event.Lines, models.ReceiptLineData{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.PriceAtSale.StringFixed(2),
			Subtotal:    item.Subtotal().StringFixed(2),
		})
	}
	return event
}
