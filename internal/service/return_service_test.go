package service

import (
	"testing"

	"retail-core/internal/models"
	"retail-core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) requestReturn(t *testing.T, orderID int64, lines ...ReturnLineRequest) *models.Return {
	t.Helper()
	ret, err := f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: orderID, Items: lines, Reason: "damaged"})
	require.NoError(t, err)
	return ret
}

func returnLine(productID int64, qty int) ReturnLineRequest {
	return ReturnLineRequest{ProductID: productID, Quantity: qty}
}

func TestLineQuantitySpansSplitLines(t *testing.T) {
	order := &models.SalesOrder{Items: models.OrderItems{
		{ProductID: 4, Quantity: 1},
		{ProductID: 7, Quantity: 2},
		{ProductID: 4, Quantity: 5},
	}}

	total, first := lineQuantity(order, 4)
	assert.Equal(t, 6, total)
	require.NotNil(t, first)
	assert.Same(t, &order.Items[0], first)

	total, first = lineQuantity(order, 9)
	assert.Zero(t, total)
	assert.Nil(t, first)
}

func TestSaleThenApprovedReturn(t *testing.T) {
	f := newFixture(t, true)
	p := f.product(t, "RET-1", 10000, 6000, 50)

	order := f.order(t, "", line(p.ID, 5))
	assert.Equal(t, 45, f.stock(t, p.ID))
	assert.True(t, order.TotalAmount.Equal(dec("50000")))
	assert.True(t, order.TotalProfit.Equal(dec("20000")))

	ret := f.requestReturn(t, order.ID, returnLine(p.ID, 2))
	assert.Equal(t, models.ReturnStatusPending, ret.Status)
	assert.True(t, ret.TotalRefund.Equal(dec("20000")))
	assert.Equal(t, "cash", ret.RefundMethod)
	assert.Equal(t, 45, f.stock(t, p.ID))

	approved, revised, err := f.returns.ApproveReturn(f.ctx, ret.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ReturnStatusApproved, approved.Status)
	assert.Equal(t, testAdmin.UserID, approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)

	assert.Equal(t, 47, f.stock(t, p.ID))
	cached, ok := f.cache.get(p.ID)
	require.True(t, ok)
	assert.Equal(t, 47, cached)

	require.Len(t, revised.Items, 1)
	assert.Equal(t, 3, revised.Items[0].Quantity)
	assert.Equal(t, 2, revised.Items[0].ReturnedQuantity)
	assert.True(t, revised.TotalAmount.Equal(dec("30000")))
	assert.True(t, revised.TotalProfit.Equal(dec("12000")))
	assert.True(t, revised.HasReturns)
	assert.True(t, revised.TotalRefunded.Equal(dec("20000")))

	history, err := f.products.StockHistory(f.ctx, p.ID, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.StockTxReturn, history[0].TransactionType)
	assert.Equal(t, 2, history[0].Quantity)

	assert.Equal(t, 1, f.events.count(models.EventTypeReturnApproved))
}

func TestApprovedReturnDropsEmptiedLine(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "RA", 1000, 400, 10)
	b := f.product(t, "RB", 2000, 500, 10)
	order := f.order(t, "", line(a.ID, 2), line(b.ID, 1))

	ret := f.requestReturn(t, order.ID, returnLine(a.ID, 2))
	_, revised, err := f.returns.ApproveReturn(f.ctx, ret.ID)
	require.NoError(t, err)

	require.Len(t, revised.Items, 1)
	assert.Equal(t, b.ID, revised.Items[0].ProductID)
	assert.True(t, revised.TotalAmount.Equal(dec("2000")))
	assert.True(t, revised.TotalProfit.Equal(dec("1500")))
	assert.Equal(t, 10, f.stock(t, a.ID))
}

func TestCreateReturnBounds(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "BA", 1000, 400, 10)
	b := f.product(t, "BB", 1000, 400, 10)
	order := f.order(t, "", line(a.ID, 2))

	_, err := f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: order.ID, Items: []ReturnLineRequest{returnLine(a.ID, 3)}})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: order.ID, Items: []ReturnLineRequest{returnLine(a.ID, 1), returnLine(a.ID, 2)}})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: order.ID, Items: []ReturnLineRequest{returnLine(b.ID, 1)}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: 999, Items: []ReturnLineRequest{returnLine(a.ID, 1)}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.returns.CreateReturn(f.ctx, &CreateReturnRequest{OrderID: order.ID})
	assert.ErrorIs(t, err, ErrValidation)

	returns, total, err := f.returns.ListReturns(f.ctx, store.ReturnFilter{})
	require.NoError(t, err)
	assert.Empty(t, returns)
	assert.Zero(t, total)
}

func TestApproveReturnRechecksRemainingQuantity(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "CUM", 1000, 400, 10)
	order := f.order(t, "", line(p.ID, 3))

	first := f.requestReturn(t, order.ID, returnLine(p.ID, 2))
	second := f.requestReturn(t, order.ID, returnLine(p.ID, 2))

	_, _, err := f.returns.ApproveReturn(f.ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, p.ID))

	_, _, err = f.returns.ApproveReturn(f.ctx, second.ID)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 9, f.stock(t, p.ID))

	stored, err := f.returns.GetReturn(f.ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusPending, stored.Status)

	current, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current.Items[0].Quantity)
}

func TestReturnStateTransitions(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "ST", 1000, 400, 10)
	order := f.order(t, "", line(p.ID, 4))

	approved := f.requestReturn(t, order.ID, returnLine(p.ID, 1))
	_, _, err := f.returns.ApproveReturn(f.ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, f.stock(t, p.ID))

	_, _, err = f.returns.ApproveReturn(f.ctx, approved.ID)
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.returns.RejectReturn(f.ctx, approved.ID, &RejectReturnRequest{Reason: "late"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 7, f.stock(t, p.ID))

	assert.ErrorIs(t, f.returns.DeleteReturn(f.ctx, approved.ID), ErrConflict)

	_, _, err = f.returns.ApproveReturn(f.ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRejectReturnHasNoSideEffects(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "RJ", 1000, 400, 10)
	order := f.order(t, "", line(p.ID, 4))
	ret := f.requestReturn(t, order.ID, returnLine(p.ID, 2))

	rejected, err := f.returns.RejectReturn(f.ctx, ret.ID, &RejectReturnRequest{Reason: "used"})
	require.NoError(t, err)
	assert.Equal(t, models.ReturnStatusRejected, rejected.Status)
	assert.Equal(t, "used", rejected.RejectionReason)
	assert.Equal(t, testAdmin.UserID, rejected.RejectedBy)

	assert.Equal(t, 6, f.stock(t, p.ID))
	current, err := f.orders.GetOrder(f.ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, current.Items[0].Quantity)
	assert.False(t, current.HasReturns)

	_, _, err = f.returns.ApproveReturn(f.ctx, ret.ID)
	assert.ErrorIs(t, err, ErrConflict)

	require.NoError(t, f.returns.DeleteReturn(f.ctx, ret.ID))
	assert.Equal(t, 1, f.events.count(models.EventTypeReturnRejected))
}

func TestDeletePendingReturn(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "DP", 1000, 400, 10)
	order := f.order(t, "", line(p.ID, 2))
	ret := f.requestReturn(t, order.ID, returnLine(p.ID, 1))

	require.NoError(t, f.returns.DeleteReturn(f.ctx, ret.ID))
	_, err := f.returns.GetReturn(f.ctx, ret.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 8, f.stock(t, p.ID))
}

func TestApproveReturnSkipsDeletedProduct(t *testing.T) {
	f := newFixture(t, false)
	a := f.product(t, "GONE", 1000, 400, 10)
	b := f.product(t, "KEPT", 1000, 400, 10)
	order := f.order(t, "", line(a.ID, 2), line(b.ID, 2))
	ret := f.requestReturn(t, order.ID, returnLine(a.ID, 1), returnLine(b.ID, 1))

	require.NoError(t, f.products.DeleteProduct(f.ctx, a.ID))

	_, revised, err := f.returns.ApproveReturn(f.ctx, ret.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, f.stock(t, b.ID))
	assert.True(t, revised.TotalAmount.Equal(dec("2000")))
}

func TestListReturnsFilters(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "LF", 1000, 400, 10)
	first := f.order(t, "", line(p.ID, 2))
	second := f.order(t, "", line(p.ID, 2))
	f.requestReturn(t, first.ID, returnLine(p.ID, 1))
	r := f.requestReturn(t, second.ID, returnLine(p.ID, 1))
	_, err := f.returns.RejectReturn(f.ctx, r.ID, &RejectReturnRequest{})
	require.NoError(t, err)

	rows, total, err := f.returns.ListReturns(f.ctx, store.ReturnFilter{Status: models.ReturnStatusPending})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, first.ID, rows[0].OrderID)

	rows, _, err = f.returns.ListReturns(f.ctx, store.ReturnFilter{OrderID: second.ID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.ReturnStatusRejected, rows[0].Status)

	_, _, err = f.returns.ListReturns(f.ctx, store.ReturnFilter{Status: "lost"})
	assert.ErrorIs(t, err, ErrValidation)
}
