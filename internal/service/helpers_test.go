package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"pos-service/internal/lock"
	"pos-service/internal/models"
	"pos-service/internal/repository"
	"pos-service/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testCatalog = []models.Product{
	{ID: "burger", Name: "Burger", Category: "Food", Price: decimal.RequireFromString("10.00"), SendToKitchen: true, Active: true},
	{ID: "beer", Name: "Beer", Category: "Drinks", Price: decimal.RequireFromString("10.00"), Active: true},
	{ID: "soda", Name: "Soda", Category: "Drinks", Price: decimal.RequireFromString("5.00"), Active: true},
	{ID: "fries", Name: "Fries", Category: "Food", Price: decimal.RequireFromString("7.50"), SendToKitchen: true, Active: true},
	{ID: "retired", Name: "Retired Dish", Category: "Food", Price: decimal.RequireFromString("1.00")},
}

func newMemoryStore(t *testing.T, tables int) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.UpsertProducts(ctx, testCatalog))
	require.NoError(t, mem.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		_, err := NewTableRegistry(tx).Initialize(ctx, tables)
		return err
	}))
	return mem
}

func inTx(t *testing.T, runner repository.TxRunner, fn func(ctx context.Context, tx repository.Tx) error) error {
	t.Helper()
	return runner.WithTx(context.Background(), fn)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(start time.Time) *testClock {
	return &testClock{now: start}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingPublisher keeps every published event type in order
type recordingPublisher struct {
	mu      sync.Mutex
	types   []string
	tickets []models.KitchenTicketEvent
	closed  []models.OrderClosedEvent
	fail    bool
}

func (p *recordingPublisher) record(eventType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	if p.fail {
		return fmt.Errorf("%w: broker down", models.ErrConnectivity)
	}
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}

func (p *recordingPublisher) PublishOrderStarted(_ context.Context, e *models.OrderStartedEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishKitchenTicket(_ context.Context, e *models.KitchenTicketEvent) error {
	p.mu.Lock()
	p.tickets = append(p.tickets, *e)
	p.mu.Unlock()
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderClosed(_ context.Context, e *models.OrderClosedEvent) error {
	p.mu.Lock()
	p.closed = append(p.closed, *e)
	p.mu.Unlock()
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishOrderCanceled(_ context.Context, e *models.OrderCanceledEvent) error {
	return p.record(e.EventType)
}

func (p *recordingPublisher) PublishSaleCanceled(_ context.Context, e *models.SaleCanceledEvent) error {
	return p.record(e.EventType)
}

// failingSales makes every sale write fail inside otherwise normal
// transactions
type failingSales struct {
	inner repository.TxRunner
}

func (f failingSales) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.inner.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, failingSaleTx{Tx: tx})
	})
}

type failingSaleTx struct {
	repository.Tx
}

func (failingSaleTx) CreateSale(context.Context, *models.Sale) error {
	return fmt.Errorf("%w: sales storage unavailable", models.ErrConnectivity)
}

type coordinatorFixture struct {
	mem       *store.Memory
	clock     *testClock
	publisher *recordingPublisher
	c         *Coordinator
}

func newCoordinatorFixture(t *testing.T) *coordinatorFixture {
	t.Helper()
	mem := newMemoryStore(t, 20)
	clock := newTestClock(time.Date(2024, 5, 10, 20, 0, 0, 0, time.UTC))
	pub := &recordingPublisher{}
	c := NewCoordinator(mem, lock.NewKeyedMutex(), lock.NewDedup(), pub, Options{
		Location: time.UTC,
		LockWait: time.Second,
		DedupTTL: time.Minute,
		Clock:    clock.Now,
	})
	return &coordinatorFixture{mem: mem, clock: clock, publisher: pub, c: c}
}

// assertTableInvariant checks that every non-FREE table points at an OPEN
// order and every FREE table points nowhere
func assertTableInvariant(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx := context.Background()
	tables, err := c.ListTables(ctx)
	require.NoError(t, err)
	for _, table := range tables {
		if table.Status == models.TableStatusFree {
			require.Nil(t, table.ActiveOrderID, "table %d", table.ID)
			continue
		}
		require.NotNil(t, table.ActiveOrderID, "table %d", table.ID)
		order, err := c.GetOrder(ctx, *table.ActiveOrderID)
		require.NoError(t, err)
		require.Equal(t, models.OrderStatusOpen, order.Status, "table %d", table.ID)
		require.Equal(t, table.ID, order.TableID)
	}
}

// assertTotal checks the order total against its lines
func assertTotal(t *testing.T, order *models.Order) {
	t.Helper()
	require.True(t, RecomputeTotal(order.Items).Equal(order.TotalAmount),
		"total %s does not match lines", order.TotalAmount)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// faultyWrites fails the selected table or order writes inside otherwise
// normal transactions
type faultyWrites struct {
	inner       repository.TxRunner
	createOrder bool
	updateTable bool
}

func (f faultyWrites) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.inner.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, faultyWriteTx{Tx: tx, cfg: f})
	})
}

type faultyWriteTx struct {
	repository.Tx
	cfg faultyWrites
}

func (t faultyWriteTx) CreateOrder(ctx context.Context, order *models.Order) error {
	if t.cfg.createOrder {
		return fmt.Errorf("%w: orders storage unavailable", models.ErrConnectivity)
	}
	return t.Tx.CreateOrder(ctx, order)
}

func (t faultyWriteTx) UpdateTable(ctx context.Context, table *models.Table) error {
	if t.cfg.updateTable {
		return fmt.Errorf("%w: tables storage unavailable", models.ErrConnectivity)
	}
	return t.Tx.UpdateTable(ctx, table)
}

// blockingLocker never grants a lock and waits for ctx instead
type blockingLocker struct{}

func (blockingLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
