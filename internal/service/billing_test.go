package service

import (
	"testing"

	"retail-core/internal/models"
	"retail-core/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceNumberPattern = `^INV-\d{6}-\d+$`

func TestGenerateInvoiceFromOrder(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "IV-1", 37000, 18500, 10)
	order := f.order(t, models.CurrencyUSD, line(p.ID, 2))
	orderID := order.ID

	invoice, err := f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{OrderID: &orderID, Notes: "thanks"})
	require.NoError(t, err)

	assert.Regexp(t, invoiceNumberPattern, invoice.InvoiceNumber)
	assert.Equal(t, models.InvoiceStatusGenerated, invoice.Status)
	require.NotNil(t, invoice.OrderID)
	assert.Equal(t, order.ID, *invoice.OrderID)
	assert.Equal(t, models.CurrencyUSD, invoice.Currency)
	assert.True(t, invoice.ExchangeRate.Equal(testRate))
	assert.True(t, invoice.TotalAmount.Equal(dec("20")))
	assert.Equal(t, "thanks", invoice.Notes)
	assert.Equal(t, 8, f.stock(t, p.ID))
	assert.Equal(t, 1, f.events.count(models.EventTypeInvoiceGenerated))

	second, err := f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{OrderID: &orderID})
	require.NoError(t, err)
	assert.NotEqual(t, invoice.InvoiceNumber, second.InvoiceNumber)

	missing := int64(999)
	_, err = f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{OrderID: &missing})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.invoices.UpdateInvoice(f.ctx, invoice.ID, &UpdateInvoiceRequest{Items: []LineRequest{line(p.ID, 1)}})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestGenerateDirectInvoice(t *testing.T) {
	f := newFixture(t, false)
	p := f.product(t, "IV-2", 7400, 3700, 1)

	_, err := f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{CustomerName: "Jane", Items: []LineRequest{line(p.ID, 1)}})
	assert.ErrorIs(t, err, ErrValidation)

	orderID := int64(1)
	_, err = f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{OrderID: &orderID, Items: []LineRequest{line(p.ID, 1)}})
	assert.ErrorIs(t, err, ErrValidation)

	invoice, err := f.invoices.GenerateInvoice(f.ctx, &GenerateInvoiceRequest{
		CustomerName:  "Jane",
		CustomerPhone: "0700000001",
		Currency:      models.CurrencyUSD,
		Items:         []LineRequest{line(p.ID, 5)},
	})
	require.NoError(t, err)
	assert.Nil(t, invoice.OrderID)
	assert.True(t, invoice.TotalAmount.Equal(dec("10")))
	assert.True(t, invoice.TotalProfit.Equal(dec("5")))
	// invoices never check or move stock
	assert.Equal(t, 1, f.stock(t, p.ID))

	f.invoices.exchangeRate = dec("3000")
	paid := models.InvoiceStatusPaid
	updated, err := f.invoices.UpdateInvoice(f.ctx, invoice.ID, &UpdateInvoiceRequest{Status: &paid, Items: []LineRequest{line(p.ID, 2)}})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceStatusPaid, updated.Status)
	assert.True(t, updated.TotalAmount.Equal(dec("4")))

	bogus := "void"
	_, err = f.invoices.UpdateInvoice(f.ctx, invoice.ID, &UpdateInvoiceRequest{Status: &bogus})
	assert.ErrorIs(t, err, ErrValidation)

	rows, total, err := f.invoices.ListInvoices(f.ctx, store.InvoiceFilter{Search: invoice.InvoiceNumber})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, invoice.ID, rows[0].ID)

	require.NoError(t, f.invoices.DeleteInvoice(f.ctx, invoice.ID))
	_, err = f.invoices.GetInvoice(f.ctx, invoice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpenses(t *testing.T) {
	f := newFixture(t, false)

	rent, err := f.expenses.CreateExpense(f.ctx, &ExpenseRequest{Amount: dec("500000"), Description: "Rent", Category: "Premises", Date: "2026-03-01"})
	require.NoError(t, err)
	assert.Equal(t, testAdmin.Username, rent.Username)
	assert.Equal(t, "2026-03-01", rent.Date.Format("2006-01-02"))

	_, err = f.expenses.CreateExpense(f.ctx, &ExpenseRequest{Amount: dec("20000"), Description: "Water", Category: "Premises", Date: "2026-03-05"})
	require.NoError(t, err)
	_, err = f.expenses.CreateExpense(f.ctx, &ExpenseRequest{Amount: dec("150000"), Description: "Airtime", Date: "2026-03-07"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  *ExpenseRequest
	}{
		{"zero amount", &ExpenseRequest{Amount: dec("0"), Description: "Nothing"}},
		{"missing description", &ExpenseRequest{Amount: dec("10")}},
		{"blank description", &ExpenseRequest{Amount: dec("10"), Description: "   "}},
		{"bad date", &ExpenseRequest{Amount: dec("10"), Description: "Pens", Date: "03/01/2026"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.expenses.CreateExpense(f.ctx, tt.req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	rows, total, err := f.expenses.ListExpenses(f.ctx, store.ExpenseFilter{Category: "Premises"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "Water", rows[0].Description)

	summary, err := f.expenses.Summary(f.ctx, store.ExpenseFilter{})
	require.NoError(t, err)
	assert.True(t, summary.TotalExpenses.Equal(dec("670000")))
	assert.Equal(t, 3, summary.TotalCount)
	require.Len(t, summary.ByCategory, 2)
	assert.Equal(t, "Premises", summary.ByCategory[0].Category)
	assert.Equal(t, 2, summary.ByCategory[0].Count)
	assert.Equal(t, "Uncategorized", summary.ByCategory[1].Category)

	from, err := ParseDate("2026-03-04")
	require.NoError(t, err)
	windowed, err := f.expenses.Summary(f.ctx, store.ExpenseFilter{From: &from})
	require.NoError(t, err)
	assert.Equal(t, 2, windowed.TotalCount)

	updated, err := f.expenses.UpdateExpense(f.ctx, rent.ID, &ExpenseRequest{Amount: dec("450000"), Description: "Rent (March)", Category: "Premises"})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(dec("450000")))
	assert.Equal(t, "2026-03-01", updated.Date.Format("2006-01-02"))

	_, err = f.expenses.UpdateExpense(f.ctx, rent.ID, &ExpenseRequest{Amount: dec("450000"), Description: "\t "})
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, f.expenses.DeleteExpense(f.ctx, rent.ID))
	_, err = f.expenses.GetExpense(f.ctx, rent.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.expenses.DeleteExpense(f.ctx, rent.ID), ErrNotFound)
}
