package service

import (
	"context"
	"testing"

	"retail-core/internal/models"
	"retail-core/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProductDerivesProfit(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "P-1", 10000, 6000, 1)

	assert.True(t, p.Profit.Equal(dec("4000")))
	assert.True(t, p.ProfitMargin.Equal(dec("40")))
	assert.True(t, p.IsLowStock)

	cached, ok := f.cache.get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 1, cached)

	_, err := f.products.CreateProduct(f.ctx, &ProductRequest{Name: "Dup", SKU: "P-1"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.products.CreateProduct(f.ctx, &ProductRequest{SKU: "NO-NAME"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.products.CreateProduct(context.Background(), &ProductRequest{Name: "Anon", SKU: "ANON"})
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestCreateProductDefaultThreshold(t *testing.T) {
	f := newFixture(t, false)
	p, err := f.products.CreateProduct(f.ctx, &ProductRequest{Name: "Rice", SKU: "RICE", QuantityInStock: 50})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultLowStockThreshold, p.LowStockThreshold)
	assert.False(t, p.IsLowStock)
}

func TestUpdateProductLogsAdjustment(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "ADJ", 1000, 500, 10)

	updated, err := f.products.UpdateProduct(f.ctx, p.ID, &ProductRequest{
		Name: "Renamed", SKU: "ADJ", UnitPrice: dec("1200"), CostPrice: dec("500"), QuantityInStock: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.True(t, updated.Profit.Equal(dec("700")))

	history, err := f.products.StockHistory(f.ctx, p.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockTxAdjustment, history[0].TransactionType)
	assert.Equal(t, -9, history[0].Quantity)

	cached, _ := f.cache.get(p.ID)
	assert.Equal(t, 1, cached)
	assert.Equal(t, 1, f.events.count(models.EventTypeStockLow))

	_, err = f.products.UpdateProduct(f.ctx, 999, &ProductRequest{Name: "X", SKU: "X"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteProductKeepsOrderSnapshots(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "DEL", 1000, 500, 10)
	order := f.order(t, "", line(p.ID, 2))

	require.NoError(t, f.products.DeleteProduct(f.ctx, p.ID))
	_, ok := f.cache.get(p.ID)
	assert.False(t, ok)

	stored, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Product DEL", stored.Items[0].ProductName)

	_, err = f.products.StockHistory(f.ctx, p.ID, 0)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.products.DeleteProduct(f.ctx, p.ID), ErrNotFound)
}

func TestListProductsSearchAndPaging(t *testing.T) {
	f := newFixture(t, false)
	for _, sku := range []string{"AA-1", "AA-2", "BB-1"} {
		f.product(t, sku, 100, 50, 5)
	}

	rows, total, err := f.products.ListProducts(f.ctx, store.ProductFilter{Search: "AA"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, rows, 2)

	rows, total, err = f.products.ListProducts(f.ctx, store.ProductFilter{Page: store.Page{Page: 2, Limit: 2}})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, rows, 1)
}

func TestCustomerDirectory(t *testing.T) {
	f := newFixture(t, false)

	c, err := f.customers.CreateCustomer(f.ctx, &CustomerRequest{Name: "Jane", Phone: "0700000001", Email: "jane@example.com"})
	require.NoError(t, err)

	_, err = f.customers.CreateCustomer(f.ctx, &CustomerRequest{Name: "Other", Phone: "0700000001"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.customers.CreateCustomer(f.ctx, &CustomerRequest{Name: "Bad", Phone: "1", Email: "not-an-email"})
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := f.customers.UpdateCustomer(f.ctx, c.ID, &CustomerRequest{Name: "Jane D", Phone: "0700000001"})
	require.NoError(t, err)
	assert.Equal(t, "Jane D", updated.Name)
	assert.Empty(t, updated.Email)

	_, err = f.customers.UpdateCustomer(f.ctx, 999, &CustomerRequest{Name: "X", Phone: "2"})
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.customers.DeleteCustomer(f.ctx, c.ID))
	_, err = f.customers.GetCustomer(f.ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPurchaseHistoryUsesSnapshotRate(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "HA", 10000, 5000, 20)
	b := f.product(t, "HB", 37000, 20000, 20)
	c, err := f.customers.CreateCustomer(f.ctx, &CustomerRequest{Name: "Jane", Phone: "0700000001"})
	require.NoError(t, err)

	first := f.order(t, "", line(a.ID, 2))
	f.order(t, models.CurrencyUSD, line(b.ID, 1))
	_, _, err = f.orders.CreateOrder(f.ctx, &CreateOrderRequest{CustomerName: "Sam", CustomerPhone: "0711111111", Items: []LineRequest{line(a.ID, 9)}})
	require.NoError(t, err)

	orderID := first.ID
	_, err = f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{OrderID: &orderID})
	require.NoError(t, err)

	// a later rate change must not revalue past orders
	f.orders.exchangeRate = dec("4000")

	history, err := f.customers.PurchaseHistory(f.ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, history.Stats.TotalOrders)
	assert.Equal(t, 1, history.Stats.TotalInvoices)
	assert.True(t, history.Stats.TotalSpent.Equal(dec("57000")), history.Stats.TotalSpent.String())
	assert.True(t, history.Stats.AverageOrderValue.Equal(dec("28500")))
	require.NotNil(t, history.Stats.LastPurchase)

	require.Len(t, history.TopProducts, 2)
	assert.Equal(t, a.ID, history.TopProducts[0].ProductID)
	assert.True(t, history.TopProducts[1].Revenue.Equal(dec("37000")))

	_, err = f.customers.PurchaseHistory(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatsProjectorAppliesEachEventOnce(t *testing.T) {
	f := newFixture(t, false)
	projector := NewStatsProjector(f.repo)
	c, err := f.customers.CreateCustomer(f.ctx, &CustomerRequest{Name: "Jane", Phone: "0700000001"})
	require.NoError(t, err)
	ctx := context.Background()

	created := &models.OrderCreatedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderCreated),
		OrderID:       1,
		CustomerPhone: c.Phone,
		Currency:      models.CurrencyUSD,
		ExchangeRate:  testRate,
		TotalAmount:   dec("10"),
	}
	require.NoError(t, projector.HandleOrderCreated(ctx, created))
	require.NoError(t, projector.HandleOrderCreated(ctx, created))

	stored, err := f.customers.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.TotalPurchases)
	assert.True(t, stored.TotalSpent.Equal(dec("37000")))

	returned := &models.ReturnApprovedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeReturnApproved),
		OrderID:       1,
		CustomerPhone: c.Phone,
		Currency:      models.CurrencyUGX,
		TotalRefund:   dec("7000"),
	}
	require.NoError(t, projector.HandleReturnApproved(ctx, returned))

	deleted := &models.OrderDeletedEvent{
		BaseEvent:     models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderDeleted),
		OrderID:       1,
		CustomerPhone: c.Phone,
		Currency:      models.CurrencyUGX,
		TotalAmount:   dec("50000"),
	}
	require.NoError(t, projector.HandleOrderDeleted(ctx, deleted))

	stored, err = f.customers.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.TotalPurchases)
	assert.True(t, stored.TotalSpent.IsZero())

	assert.NoError(t, projector.HandleStockLow(ctx, &models.StockLowEvent{ProductID: 1, AlertLevel: AlertCritical}))
}

func TestStatsProjectorSkipsAnonymousOrders(t *testing.T) {
	f := newFixture(t, false)
	projector := NewStatsProjector(f.repo)
	event := &models.OrderCreatedEvent{
		BaseEvent:   models.NewBaseEvent(uuid.New().String(), models.EventTypeOrderCreated),
		TotalAmount: dec("100"),
	}
	require.NoError(t, projector.HandleOrderCreated(context.Background(), event))

	processed, err := f.repo.IsEventProcessed(context.Background(), event.EventID)
	require.NoError(t, err)
	assert.True(t, processed)
}
