package store

import (
	"context"
	"fmt"

	"retail-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateProduct inserts a product; a taken SKU yields ErrDuplicate
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products
			(name, sku, description, category, unit_price, cost_price, profit, profit_margin,
			 quantity_in_stock, low_stock_threshold, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, p, query,
		p.Name, p.SKU, p.Description, p.Category, p.UnitPrice, p.CostPrice, p.Profit, p.ProfitMargin,
		p.QuantityInStock, p.LowStockThreshold, p.CreatedBy)
	if isUniqueViolation(err) {
		return fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
	}
	return err
}

// GetProduct retrieves a product by ID
func (s *Store) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProductsByIDs retrieves the products that still exist among ids
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	result := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In("SELECT * FROM products WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var products []models.Product
	if err := s.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

// ListProducts searches name, SKU and description
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, int, error) {
	where := `WHERE ($1 = '' OR name ILIKE '%' || $1 || '%' OR sku ILIKE '%' || $1 || '%'
		OR description ILIKE '%' || $1 || '%')`

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM products "+where, f.Search); err != nil {
		return nil, 0, err
	}

	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products "+where+" ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		f.Search, limitArg(f.Limit), f.Offset())
	return products, total, err
}

// UpdateProduct saves catalog fields and bumps the stock version. A changed
// stock quantity is logged as an adjustment in the same transaction.
func (s *Store) UpdateProduct(ctx context.Context, p *models.Product, actorID int64) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var before int
		err := tx.GetContext(ctx, &before,
			"SELECT quantity_in_stock FROM products WHERE id = $1 FOR UPDATE", p.ID)
		if err != nil {
			return notFound(err, "product", p.ID)
		}

		err = tx.QueryRowxContext(ctx, `
			UPDATE products SET name = $1, sku = $2, description = $3, category = $4, unit_price = $5,
				cost_price = $6, profit = $7, profit_margin = $8, quantity_in_stock = $9,
				low_stock_threshold = $10, stock_version = stock_version + 1, updated_at = NOW()
			WHERE id = $11
			RETURNING updated_at, stock_version`,
			p.Name, p.SKU, p.Description, p.Category, p.UnitPrice, p.CostPrice, p.Profit, p.ProfitMargin,
			p.QuantityInStock, p.LowStockThreshold, p.ID).Scan(&p.UpdatedAt, &p.StockVersion)
		if isUniqueViolation(err) {
			return fmt.Errorf("sku %s: %w", p.SKU, ErrDuplicate)
		}
		if err != nil {
			return err
		}

		if delta := p.QuantityInStock - before; delta != 0 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stock_transactions
					(product_id, transaction_type, quantity, quantity_before, quantity_after, reference_type, reference_id, notes, user_id)
				VALUES ($1, $2, $3, $4, $5, 'product', $1, 'Manual stock update', $6)`,
				p.ID, models.StockTxAdjustment, delta, before, p.QuantityInStock, actorID)
			if err != nil {
				return fmt.Errorf("failed to log stock transaction: %w", err)
			}
		}
		return nil
	})
}

// DeleteProduct hard-deletes a product; history keeps its snapshots
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res, "product", id)
}
