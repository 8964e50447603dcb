package store

import (
	"context"
	"fmt"

	"retail-core/internal/models"

	"github.com/shopspring/decimal"
)

// CreateCustomer inserts a customer; a taken phone yields ErrDuplicate
func (s *Store) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (name, phone, email, address, total_purchases, total_spent)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, c, query,
		c.Name, c.Phone, c.Email, c.Address, c.TotalPurchases, c.TotalSpent)
	if isUniqueViolation(err) {
		return fmt.Errorf("phone %s: %w", c.Phone, ErrDuplicate)
	}
	return err
}

// GetCustomer retrieves a customer by ID
func (s *Store) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	var c models.Customer
	if err := s.db.GetContext(ctx, &c, "SELECT * FROM customers WHERE id = $1", id); err != nil {
		return nil, notFound(err, "customer", id)
	}
	return &c, nil
}

// ListCustomers searches name, phone and email
func (s *Store) ListCustomers(ctx context.Context, f CustomerFilter) ([]models.Customer, int, error) {
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%'
		OR email ILIKE '%' || $1 || '%')`

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM customers "+where, f.Search); err != nil {
		return nil, 0, err
	}

	var customers []models.Customer
	err := s.db.SelectContext(ctx, &customers,
		"SELECT * FROM customers "+where+" ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		f.Search, limitArg(f.Limit), f.Offset())
	return customers, total, err
}

// UpdateCustomer saves contact fields
func (s *Store) UpdateCustomer(ctx context.Context, c *models.Customer) error {
	err := s.db.GetContext(ctx, &c.UpdatedAt, `
		UPDATE customers SET name = $1, phone = $2, email = $3, address = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		c.Name, c.Phone, c.Email, c.Address, c.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("phone %s: %w", c.Phone, ErrDuplicate)
	}
	return notFound(err, "customer", c.ID)
}

// DeleteCustomer removes a customer
func (s *Store) DeleteCustomer(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM customers WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res, "customer", id)
}

// AdjustCustomerTotals shifts the cached purchase totals of the customer
// with the given phone. Unknown phones are ignored.
func (s *Store) AdjustCustomerTotals(ctx context.Context, phone string, purchases int, spent decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE customers
		SET total_purchases = GREATEST(total_purchases + $1, 0),
			total_spent = GREATEST(total_spent + $2, 0),
			updated_at = NOW()
		WHERE phone = $3`,
		purchases, spent, phone)
	return err
}
