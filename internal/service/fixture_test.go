package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testRate = decimal.NewFromInt(3700)

var errCacheMiss = errors.New("not cached")

// recordingPublisher keeps every published event in order
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
	types  []string
}

func (p *recordingPublisher) record(eventType string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	p.types = append(p.types, eventType)
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.types {
		if t == eventType {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) PublishOrderCreated(ctx context.Context, e *models.OrderCreatedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishOrderUpdated(ctx context.Context, e *models.OrderUpdatedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishOrderDeleted(ctx context.Context, e *models.OrderDeletedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishReturnApproved(ctx context.Context, e *models.ReturnApprovedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishReturnRejected(ctx context.Context, e *models.ReturnRejectedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishStockLow(ctx context.Context, e *models.StockLowEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishInvoiceGenerated(ctx context.Context, e *models.InvoiceGeneratedEvent) error {
	return p.record(e.EventType, e)
}

func (p *recordingPublisher) PublishExpenseRecorded(ctx context.Context, e *models.ExpenseRecordedEvent) error {
	return p.record(e.EventType, e)
}

// fakeCache mimics the Lua stock counters
type fakeCache struct {
	mu       sync.Mutex
	stock    map[int64]int
	versions map[int64]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{stock: make(map[int64]int), versions: make(map[int64]int64)}
}

func (c *fakeCache) ReserveStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	available, ok := c.stock[productID]
	if !ok {
		return false, errCacheMiss
	}
	if available < quantity {
		return false, nil
	}
	c.stock[productID] = available - quantity
	return true, nil
}

func (c *fakeCache) ReleaseStock(ctx context.Context, productID int64, quantity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.stock[productID]; ok {
		c.stock[productID] += quantity
	}
	return nil
}

func (c *fakeCache) SetStock(ctx context.Context, productID int64, available int, version int64) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.versions[productID]; ok && cached > version {
		return false, nil
	}
	c.stock[productID] = available
	c.versions[productID] = version
	return true, nil
}

func (c *fakeCache) DeleteStock(ctx context.Context, productID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.stock, productID)
	delete(c.versions, productID)
	return nil
}

func (c *fakeCache) get(productID int64) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.stock[productID]
	return v, ok
}

// fakeIdempotency is an in-memory key and lock store
type fakeIdempotency struct {
	mu    sync.Mutex
	keys  map[string]int64
	locks map[string]bool
}

func newFakeIdempotency() *fakeIdempotency {
	return &fakeIdempotency{keys: make(map[string]int64), locks: make(map[string]bool)}
}

func (f *fakeIdempotency) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locks[key] {
		return false, nil
	}
	f.locks[key] = true
	return true, nil
}

func (f *fakeIdempotency) ReleaseLock(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.locks, key)
	return nil
}

func (f *fakeIdempotency) RememberIdempotencyKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys[key] = orderID
	return nil
}

func (f *fakeIdempotency) LookupIdempotencyKey(ctx context.Context, key string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.keys[key]
	return id, ok, nil
}

type fixture struct {
	ctx       context.Context
	repo      *memory.Store
	events    *recordingPublisher
	cache     *fakeCache
	inventory *InventoryClient
	products  *ProductService
	customers *CustomerService
	orders    *OrderService
	returns   *ReturnService
	invoices  *InvoiceService
	expenses  *ExpenseService
	analytics *AnalyticsService
}

var testAdmin = models.Actor{UserID: 1, Username: "admin", Role: models.RoleAdmin}

// newFixture wires every service over one memory store. withCache puts the
// fake stock counters in front of it.
func newFixture(t *testing.T, withCache bool) *fixture {
	t.Helper()

	f := &fixture{
		ctx:    WithActor(context.Background(), testAdmin),
		repo:   memory.New(),
		events: &recordingPublisher{},
	}
	var cache StockCache
	if withCache {
		f.cache = newFakeCache()
		cache = f.cache
	}
	f.inventory = NewInventoryClient(f.repo, cache, f.events)
	f.products = NewProductService(f.repo, f.inventory, models.DefaultLowStockThreshold)
	f.customers = NewCustomerService(f.repo)
	f.orders = NewOrderService(f.repo, f.inventory, nil, f.events, testRate, 50)
	f.returns = NewReturnService(f.repo, f.inventory, f.events)
	f.invoices = NewInvoiceService(f.repo, f.events, testRate)
	f.expenses = NewExpenseService(f.repo, f.events)
	f.analytics = NewAnalyticsService(f.repo, testRate)
	return f
}

func (f *fixture) product(t *testing.T, sku string, price, cost int64, qty int) *models.Product {
	t.Helper()
	threshold := 2
	p, err := f.products.CreateProduct(f.ctx, &ProductRequest{
		Name:              "Product " + sku,
		SKU:               sku,
		UnitPrice:         decimal.NewFromInt(price),
		CostPrice:         decimal.NewFromInt(cost),
		QuantityInStock:   qty,
		LowStockThreshold: &threshold,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) order(t *testing.T, currency string, lines ...LineRequest) *models.SalesOrder {
	t.Helper()
	order, created, err := f.orders.CreateOrder(f.ctx, &CreateOrderRequest{
		CustomerName:  "Jane",
		CustomerPhone: "0700000001",
		Currency:      currency,
		Items:         lines,
	})
	require.NoError(t, err)
	require.True(t, created)
	return order
}

func (f *fixture) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := f.repo.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.QuantityInStock
}

func line(productID int64, qty int) LineRequest {
	return LineRequest{ProductID: productID, Quantity: qty}
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

// itemSum recomputes Σ unit_price × quantity over an order's items
func itemSum(o *models.SalesOrder) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return sum
}
