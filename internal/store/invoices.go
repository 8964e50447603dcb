package store

import (
	"context"
	"fmt"

	"retail-core/internal/models"
)

// CountInvoices returns the number of stored invoices
func (s *Store) CountInvoices(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM invoices")
	return n, err
}

// CreateInvoice inserts an invoice; a taken number yields ErrDuplicate
func (s *Store) CreateInvoice(ctx context.Context, inv *models.Invoice) error {
	query := `
		INSERT INTO invoices
			(invoice_number, order_id, customer_name, customer_phone, items, total_amount, total_profit,
			 currency, exchange_rate, status, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, inv, query,
		inv.InvoiceNumber, inv.OrderID, inv.CustomerName, inv.CustomerPhone, inv.Items, inv.TotalAmount,
		inv.TotalProfit, inv.Currency, inv.ExchangeRate, inv.Status, inv.Notes, inv.CreatedBy)
	if isUniqueViolation(err) {
		return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, ErrDuplicate)
	}
	return err
}

// GetInvoice retrieves an invoice by ID
func (s *Store) GetInvoice(ctx context.Context, id int64) (*models.Invoice, error) {
	var inv models.Invoice
	if err := s.db.GetContext(ctx, &inv, "SELECT * FROM invoices WHERE id = $1", id); err != nil {
		return nil, notFound(err, "invoice", id)
	}
	return &inv, nil
}

// ListInvoices searches number and customer fields
func (s *Store) ListInvoices(ctx context.Context, f InvoiceFilter) ([]models.Invoice, int, error) {
	where := `WHERE ($1 = '' OR invoice_number ILIKE '%' || $1 || '%' OR customer_name ILIKE '%' || $1 || '%'
			OR customer_phone ILIKE '%' || $1 || '%')
		AND ($2 = '' OR customer_phone = $2)
		AND ($3 = '' OR customer_name = $3)`

	var total int
	err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM invoices "+where,
		f.Search, f.CustomerPhone, f.CustomerName)
	if err != nil {
		return nil, 0, err
	}

	var invoices []models.Invoice
	err = s.db.SelectContext(ctx, &invoices,
		"SELECT * FROM invoices "+where+" ORDER BY created_at DESC, id DESC LIMIT $4 OFFSET $5",
		f.Search, f.CustomerPhone, f.CustomerName, limitArg(f.Limit), f.Offset())
	return invoices, total, err
}

// UpdateInvoice saves an edited invoice
func (s *Store) UpdateInvoice(ctx context.Context, inv *models.Invoice) error {
	err := s.db.GetContext(ctx, &inv.UpdatedAt, `
		UPDATE invoices SET customer_name = $1, customer_phone = $2, items = $3, total_amount = $4,
			total_profit = $5, status = $6, notes = $7, updated_at = NOW()
		WHERE id = $8
		RETURNING updated_at`,
		inv.CustomerName, inv.CustomerPhone, inv.Items, inv.TotalAmount, inv.TotalProfit,
		inv.Status, inv.Notes, inv.ID)
	return notFound(err, "invoice", inv.ID)
}

// DeleteInvoice removes an invoice
func (s *Store) DeleteInvoice(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM invoices WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res, "invoice", id)
}
