package service

import (
	"context"
	"sync"
	"testing"

	"retail-core/internal/models"
	"retail-core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrderDecrementsStockAndSnapshotsPrices(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "A-1", 10000, 6000, 10)

	order := f.order(t, "", line(p.ID, 3))

	assert.Equal(t, models.CurrencyUGX, order.Currency)
	assert.Equal(t, models.OrderStatusCompleted, order.Status)
	assert.True(t, order.TotalAmount.Equal(dec("30000")))
	assert.True(t, order.TotalProfit.Equal(dec("12000")))
	assert.True(t, order.ExchangeRate.Equal(testRate))
	assert.Equal(t, testAdmin.UserID, order.ServedBy)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Product A-1", order.Items[0].ProductName)
	assert.False(t, order.Items[0].CustomPriceUsed)

	assert.Equal(t, 7, f.stock(t, p.ID))

	history, err := f.products.StockHistory(f.ctx, p.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, history)
	assert.Equal(t, models.StockTxSale, history[0].TransactionType)
	assert.Equal(t, -3, history[0].Quantity)
	assert.Equal(t, 10, history[0].QuantityBefore)
	assert.Equal(t, 7, history[0].QuantityAfter)

	assert.Equal(t, 1, f.events.count(models.EventTypeOrderCreated))
}

func TestCreateOrderConvertsToUSD(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "USD-1", 37000, 18500, 10)

	order := f.order(t, models.CurrencyUSD, line(p.ID, 2))

	require.Len(t, order.Items, 1)
	assert.True(t, order.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, order.Items[0].CostPrice.Equal(dec("5")))
	assert.True(t, order.TotalAmount.Equal(dec("20")))
	assert.True(t, order.TotalProfit.Equal(dec("10")))
}

func TestCreateOrderUsesCustomPrice(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "C-1", 10000, 6000, 10)

	req := line(p.ID, 2)
	req.CustomPrice = dec("8000")
	order := f.order(t, "", req)

	assert.True(t, order.Items[0].CustomPriceUsed)
	assert.True(t, order.Items[0].UnitPrice.Equal(dec("8000")))
	assert.True(t, order.TotalAmount.Equal(dec("16000")))
	assert.True(t, order.TotalProfit.Equal(dec("4000")))
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "V-1", 10000, 6000, 5)

	tests := []struct {
		name string
		req  *CreateOrderRequest
		kind error
	}{
		{"empty items", &CreateOrderRequest{}, ErrValidation},
		{"invalid currency", &CreateOrderRequest{Currency: "EUR", Items: []LineRequest{line(p.ID, 1)}}, ErrValidation},
		{"zero quantity", &CreateOrderRequest{Items: []LineRequest{line(p.ID, 0)}}, ErrValidation},
		{"unknown product", &CreateOrderRequest{Items: []LineRequest{line(999, 1)}}, ErrNotFound},
		{"insufficient stock", &CreateOrderRequest{Items: []LineRequest{line(p.ID, 6)}}, ErrConflict},
		{"split lines exceed stock", &CreateOrderRequest{Items: []LineRequest{line(p.ID, 3), line(p.ID, 3)}}, ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := f.orders.CreateOrder(f.ctx, tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.kind)
			assert.Equal(t, 5, f.stock(t, p.ID))
		})
	}

	orders, total, err := f.orders.ListOrders(f.ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Zero(t, total)
}

func TestCreateOrderInvalidCurrencyMessage(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "M-1", 100, 50, 5)

	_, _, err := f.orders.CreateOrder(f.ctx, &CreateOrderRequest{Currency: "KES", Items: []LineRequest{line(p.ID, 1)}})
	require.Error(t, err)
	assert.Equal(t, "Please select a valid currency (UGX or USD).", err.Error())
}

func TestCreateOrderRequiresActor(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "U-1", 100, 50, 5)

	_, _, err := f.orders.CreateOrder(context.Background(), &CreateOrderRequest{Items: []LineRequest{line(p.ID, 1)}})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 5, f.stock(t, p.ID))
}

func TestCreateOrderIdempotencyKey(t *testing.T) {
	for _, withCache := range []bool{false, true} {
		f := newFixture(t, false)
		if withCache {
			f.orders.idempotency = newFakeIdempotency()
		}
		p := f.product(t, "I-1", 1000, 500, 10)
		req := &CreateOrderRequest{Items: []LineRequest{line(p.ID, 2)}, IdempotencyKey: "key-1"}

		first, created, err := f.orders.CreateOrder(f.ctx, req)
		require.NoError(t, err)
		assert.True(t, created)

		second, created, err := f.orders.CreateOrder(f.ctx, req)
		require.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, first.ID, second.ID)

		assert.Equal(t, 8, f.stock(t, p.ID))
		assert.Equal(t, 1, f.events.count(models.EventTypeOrderCreated))
	}
}

func TestCreateOrderIdempotencyKeyInFlight(t *testing.T) {
	f := newFixture(t, false)
	idem := newFakeIdempotency()
	f.orders.idempotency = idem
	p := f.product(t, "I-2", 1000, 500, 10)

	locked, err := idem.AcquireLock(context.Background(), "order:busy", idempotencyLockTTL)
	require.NoError(t, err)
	require.True(t, locked)

	_, _, err = f.orders.CreateOrder(f.ctx, &CreateOrderRequest{Items: []LineRequest{line(p.ID, 1)}, IdempotencyKey: "busy"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 10, f.stock(t, p.ID))
}

func TestCreateOrderShortCacheCounterReleasesReservations(t *testing.T) {
	f := newFixture(t, true)
	a := f.product(t, "R-A", 1000, 500, 10)
	b := f.product(t, "R-B", 1000, 500, 10)

	// the counter for b lags behind the store
	_, err := f.cache.SetStock(context.Background(), b.ID, 0, b.StockVersion)
	require.NoError(t, err)

	_, _, err = f.orders.CreateOrder(f.ctx, &CreateOrderRequest{Items: []LineRequest{line(a.ID, 2), line(b.ID, 1)}})
	assert.ErrorIs(t, err, ErrConflict)

	cached, ok := f.cache.get(a.ID)
	require.True(t, ok)
	assert.Equal(t, 10, cached)
	assert.Equal(t, 10, f.stock(t, a.ID))
	assert.Equal(t, 10, f.stock(t, b.ID))
}

func TestCreateOrderResyncsCacheFromStore(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "S-1", 1000, 500, 10)

	f.order(t, "", line(p.ID, 4))

	cached, ok := f.cache.get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 6, cached)
}

func TestLateCacheRefreshKeepsNewerStock(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "LATE", 1000, 500, 10)

	order := f.order(t, "", line(p.ID, 4))
	stale, err := f.repo.GetProduct(f.ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, 6, stale.QuantityInStock)

	ret := f.requestReturn(t, order.ID, returnLine(p.ID, 2))
	_, _, err = f.returns.ApproveReturn(f.ctx, ret.ID)
	require.NoError(t, err)

	// a refresh that read the store before the return lands last
	f.inventory.cacheProduct(f.ctx, *stale)

	cached, ok := f.cache.get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 8, cached)

	f.order(t, "", line(p.ID, 8))
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestConcurrentOrdersNeverOversell(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "RACE", 1000, 500, 5)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.orders.CreateOrder(f.ctx, &CreateOrderRequest{Items: []LineRequest{line(p.ID, 1)}})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, ErrConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, conflicts)
	assert.Equal(t, 0, f.stock(t, p.ID))
}

func TestUpdateOrderAdjustsStockByDelta(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "E-A", 10000, 6000, 10)
	b := f.product(t, "E-B", 5000, 2000, 10)
	order := f.order(t, "", line(a.ID, 3))
	require.Equal(t, 7, f.stock(t, a.ID))

	updated, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Items: []LineRequest{line(a.ID, 5)}})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t, a.ID))
	assert.True(t, updated.TotalAmount.Equal(dec("50000")))
	assert.True(t, updated.TotalAmount.Equal(itemSum(updated)))

	updated, err = f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Items: []LineRequest{line(a.ID, 1), line(b.ID, 2)}})
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, a.ID))
	assert.Equal(t, 8, f.stock(t, b.ID))
	assert.True(t, updated.TotalAmount.Equal(dec("20000")))
	assert.True(t, updated.TotalProfit.Equal(dec("10000")))

	history, err := f.products.StockHistory(f.ctx, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockTxOrderEdit, history[0].TransactionType)
	assert.Equal(t, -2, history[0].Quantity)

	fields := map[string]int{}
	for _, e := range updated.EditHistory {
		fields[e.Field]++
		assert.Equal(t, testAdmin.Username, e.EditedByUsername)
	}
	assert.Equal(t, 2, fields["items"])
	assert.Equal(t, 2, fields["total_amount"])
	assert.Equal(t, 2, f.events.count(models.EventTypeOrderUpdated))
}

func TestUpdateOrderBeyondStockChangesNothing(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "X-1", 1000, 500, 5)
	order := f.order(t, "", line(p.ID, 2))

	_, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Items: []LineRequest{line(p.ID, 9)}})
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, 3, f.stock(t, p.ID))
	stored, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Items[0].Quantity)
	assert.Empty(t, stored.EditHistory)
}

func TestUpdateOrderRepricesAtSnapshotRate(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "FX-1", 37000, 18500, 10)
	order := f.order(t, models.CurrencyUSD, line(p.ID, 1))

	f.orders.exchangeRate = dec("4000")
	updated, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Items: []LineRequest{line(p.ID, 3)}})
	require.NoError(t, err)

	assert.True(t, updated.ExchangeRate.Equal(testRate))
	assert.True(t, updated.Items[0].UnitPrice.Equal(dec("10")))
	assert.True(t, updated.TotalAmount.Equal(dec("30")))
}

func TestUpdateOrderFieldsAndHistoryCap(t *testing.T) {
	f := newFixture(t, false)
	f.orders.maxHistory = 3
	p := f.product(t, "H-1", 1000, 500, 10)
	order := f.order(t, "", line(p.ID, 1))

	var last *models.SalesOrder
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		name := name
		updated, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{CustomerName: &name})
		require.NoError(t, err)
		last = updated
	}

	require.Len(t, last.EditHistory, 3)
	assert.Equal(t, "E", last.CustomerName)
	assert.Equal(t, "B", last.EditHistory[0].OldValue)
	assert.Equal(t, "E", last.EditHistory[2].NewValue)
	assert.Equal(t, 10-1, f.stock(t, p.ID))
}

func TestUpdateOrderWithoutChangesPublishesNothing(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "N-1", 1000, 500, 10)
	order := f.order(t, "", line(p.ID, 1))

	same := order.CustomerName
	updated, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{CustomerName: &same})
	require.NoError(t, err)
	assert.Empty(t, updated.EditHistory)
	assert.Zero(t, f.events.count(models.EventTypeOrderUpdated))
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "ST-1", 1000, 500, 10)
	order := f.order(t, "", line(p.ID, 1))

	pending := models.OrderStatusPending
	updated, err := f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Status: &pending})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, updated.Status)

	bogus := "shipped"
	_, err = f.orders.UpdateOrder(f.ctx, order.ID, &UpdateOrderRequest{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.orders.UpdateOrder(f.ctx, 999, &UpdateOrderRequest{Status: &pending})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOrderKeepsStock(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "D-1", 1000, 500, 10)
	order := f.order(t, "", line(p.ID, 4))

	require.NoError(t, f.orders.DeleteOrder(f.ctx, order.ID))

	assert.Equal(t, 6, f.stock(t, p.ID))
	_, err := f.orders.GetOrder(f.ctx, order.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, f.events.count(models.EventTypeOrderDeleted))

	assert.ErrorIs(t, f.orders.DeleteOrder(f.ctx, order.ID), ErrNotFound)
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	f := newFixture(t, false)
	_, _, err := f.orders.ListOrders(f.ctx, store.OrderFilter{Status: "cancelled"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLowStockEventAfterSale(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "L-1", 1000, 500, 3)

	f.order(t, "", line(p.ID, 2))

	assert.Equal(t, 1, f.events.count(models.EventTypeStockLow))
}
