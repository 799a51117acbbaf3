package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pos-service/internal/models"
	"pos-service/internal/repository"
)

var _ repository.TxRunner = (*Memory)(nil)

// Memory keeps all state in process. Transactions run one at a time against
// a private overlay that is merged into the shared state on commit, so a
// failed transaction leaves nothing behind.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

type memState struct {
	tables    map[int64]*models.Table
	orders    map[string]*models.Order
	itemOrder map[string]string
	sales     map[string]*models.Sale
	products  map[string]*models.Product
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{state: &memState{
		tables:    make(map[int64]*models.Table),
		orders:    make(map[string]*models.Order),
		itemOrder: make(map[string]string),
		sales:     make(map[string]*models.Sale),
		products:  make(map[string]*models.Product),
	}}
}

// Ping always succeeds
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// UpsertProducts writes catalog entries
func (m *Memory) UpsertProducts(_ context.Context, products []models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range products {
		p := products[i]
		m.state.products[p.ID] = &p
	}
	return nil
}

// WithTx runs fn against a transaction overlay and merges it on success
func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", models.ErrConnectivity, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memTx{
		base:      m.state,
		tables:    make(map[int64]*models.Table),
		orders:    make(map[string]*models.Order),
		itemOrder: make(map[string]string),
		sales:     make(map[string]*models.Sale),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memTx is the write overlay of one transaction. A nil sale marks a delete,
// an empty itemOrder value marks a removed item.
type memTx struct {
	base      *memState
	tables    map[int64]*models.Table
	orders    map[string]*models.Order
	itemOrder map[string]string
	sales     map[string]*models.Sale
}

func (tx *memTx) commit() {
	for id, t := range tx.tables {
		tx.base.tables[id] = t
	}
	for id, o := range tx.orders {
		tx.base.orders[id] = o
	}
	for itemID, orderID := range tx.itemOrder {
		if orderID == "" {
			delete(tx.base.itemOrder, itemID)
		} else {
			tx.base.itemOrder[itemID] = orderID
		}
	}
	for id, s := range tx.sales {
		if s == nil {
			delete(tx.base.sales, id)
		} else {
			tx.base.sales[id] = s
		}
	}
}

func (tx *memTx) table(id int64) (*models.Table, bool) {
	if t, ok := tx.tables[id]; ok {
		return t, true
	}
	t, ok := tx.base.tables[id]
	if !ok {
		return nil, false
	}
	t = t.Clone()
	tx.tables[id] = t
	return t, true
}

func (tx *memTx) order(id string) (*models.Order, bool) {
	if o, ok := tx.orders[id]; ok {
		return o, true
	}
	o, ok := tx.base.orders[id]
	if !ok {
		return nil, false
	}
	o = o.Clone()
	tx.orders[id] = o
	return o, true
}

func (tx *memTx) orderOfItem(itemID string) (*models.Order, bool) {
	orderID, ok := tx.itemOrder[itemID]
	if !ok {
		orderID, ok = tx.base.itemOrder[itemID]
	}
	if !ok || orderID == "" {
		return nil, false
	}
	return tx.order(orderID)
}

func (tx *memTx) sale(id string) (*models.Sale, bool) {
	if s, ok := tx.sales[id]; ok {
		return s, s != nil
	}
	s, ok := tx.base.sales[id]
	return s, ok
}

func (tx *memTx) GetTable(_ context.Context, id int64) (*models.Table, error) {
	t, ok := tx.table(id)
	if !ok {
		return nil, fmt.Errorf("%w: table %d", models.ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (tx *memTx) LockTable(ctx context.Context, id int64) (*models.Table, error) {
	return tx.GetTable(ctx, id)
}

func (tx *memTx) ListTables(_ context.Context) ([]models.Table, error) {
	ids := make(map[int64]struct{}, len(tx.base.tables)+len(tx.tables))
	for id := range tx.base.tables {
		ids[id] = struct{}{}
	}
	for id := range tx.tables {
		ids[id] = struct{}{}
	}

	tables := make([]models.Table, 0, len(ids))
	for id := range ids {
		t, _ := tx.table(id)
		tables = append(tables, *t.Clone())
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })
	return tables, nil
}

func (tx *memTx) CountTables(ctx context.Context) (int, error) {
	tables, err := tx.ListTables(ctx)
	return len(tables), err
}

func (tx *memTx) CreateTable(_ context.Context, table *models.Table) error {
	if _, exists := tx.table(table.ID); exists {
		return fmt.Errorf("%w: table %d already exists", models.ErrConflict, table.ID)
	}
	tx.tables[table.ID] = table.Clone()
	return nil
}

func (tx *memTx) UpdateTable(_ context.Context, table *models.Table) error {
	if _, ok := tx.table(table.ID); !ok {
		return fmt.Errorf("%w: table %d", models.ErrNotFound, table.ID)
	}
	tx.tables[table.ID] = table.Clone()
	return nil
}

func (tx *memTx) CreateOrder(_ context.Context, order *models.Order) error {
	if _, exists := tx.order(order.ID); exists {
		return fmt.Errorf("%w: order %s already exists", models.ErrConflict, order.ID)
	}
	o := order.Clone()
	o.Items = []models.OrderItem{}
	tx.orders[o.ID] = o
	return nil
}

func (tx *memTx) GetOrder(_ context.Context, id string) (*models.Order, error) {
	o, ok := tx.order(id)
	if !ok {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, id)
	}
	return o.Clone(), nil
}

func (tx *memTx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return tx.GetOrder(ctx, id)
}

func (tx *memTx) UpdateOrder(_ context.Context, order *models.Order) error {
	o, ok := tx.order(order.ID)
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, order.ID)
	}
	updated := order.Clone()
	updated.Items = o.Items
	tx.orders[order.ID] = updated
	return nil
}

func (tx *memTx) AddOrderItem(_ context.Context, item *models.OrderItem) error {
	o, ok := tx.order(item.OrderID)
	if !ok {
		return fmt.Errorf("%w: order %s", models.ErrNotFound, item.OrderID)
	}
	o.Items = append(o.Items, *item)
	tx.itemOrder[item.ID] = o.ID
	return nil
}

func (tx *memTx) UpdateOrderItemQuantity(_ context.Context, itemID string, quantity int) error {
	o, ok := tx.orderOfItem(itemID)
	if !ok {
		return fmt.Errorf("%w: order item %s", models.ErrNotFound, itemID)
	}
	item, _ := o.ItemByID(itemID)
	item.Quantity = quantity
	return nil
}

func (tx *memTx) DeleteOrderItem(_ context.Context, itemID string) error {
	o, ok := tx.orderOfItem(itemID)
	if !ok {
		return fmt.Errorf("%w: order item %s", models.ErrNotFound, itemID)
	}
	items := o.Items[:0:0]
	for _, it := range o.Items {
		if it.ID != itemID {
			items = append(items, it)
		}
	}
	o.Items = items
	tx.itemOrder[itemID] = ""
	return nil
}

func (tx *memTx) CreateSale(_ context.Context, sale *models.Sale) error {
	if _, exists := tx.sale(sale.ID); exists {
		return fmt.Errorf("%w: sale %s already exists", models.ErrConflict, sale.ID)
	}
	tx.sales[sale.ID] = sale.Clone()
	return nil
}

func (tx *memTx) GetSale(_ context.Context, id string) (*models.Sale, error) {
	s, ok := tx.sale(id)
	if !ok {
		return nil, fmt.Errorf("%w: sale %s", models.ErrNotFound, id)
	}
	return s.Clone(), nil
}

func (tx *memTx) DeleteSale(_ context.Context, id string) error {
	if _, ok := tx.sale(id); !ok {
		return fmt.Errorf("%w: sale %s", models.ErrNotFound, id)
	}
	tx.sales[id] = nil
	return nil
}

func (tx *memTx) ListSales(_ context.Context, from, to *time.Time) ([]models.Sale, error) {
	ids := make(map[string]struct{}, len(tx.base.sales)+len(tx.sales))
	for id := range tx.base.sales {
		ids[id] = struct{}{}
	}
	for id := range tx.sales {
		ids[id] = struct{}{}
	}

	sales := []models.Sale{}
	for id := range ids {
		s, ok := tx.sale(id)
		if !ok {
			continue
		}
		if from != nil && s.Timestamp.Before(*from) {
			continue
		}
		if to != nil && !s.Timestamp.Before(*to) {
			continue
		}
		sales = append(sales, *s.Clone())
	}
	sort.SliceStable(sales, func(i, j int) bool {
		if sales[i].Timestamp.Equal(sales[j].Timestamp) {
			return sales[i].ID < sales[j].ID
		}
		return sales[i].Timestamp.Before(sales[j].Timestamp)
	})
	return sales, nil
}

func (tx *memTx) GetProduct(_ context.Context, id string) (*models.Product, error) {
	p, ok := tx.base.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %s", models.ErrNotFound, id)
	}
	cp := *p
	return &cp, nil
}
