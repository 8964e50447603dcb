package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-core/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateOrder persists the order and decrements stock for every line in a
// single transaction. Any line short on stock aborts the whole order.
func (s *Store) CreateOrder(ctx context.Context, order *models.SalesOrder) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sales_orders
				(customer_name, customer_phone, order_date, currency, exchange_rate, status, items,
				 total_amount, total_profit, has_returns, total_refunded, edit_history,
				 served_by, served_by_name, idempotency_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, created_at, updated_at`

		err := tx.GetContext(ctx, order, query,
			order.CustomerName, order.CustomerPhone, order.OrderDate, order.Currency, order.ExchangeRate,
			order.Status, order.Items, order.TotalAmount, order.TotalProfit, order.HasReturns,
			order.TotalRefunded, order.EditHistory, order.ServedBy, order.ServedByName, order.IdempotencyKey)
		if isUniqueViolation(err) {
			return fmt.Errorf("idempotency key %s: %w", order.IdempotencyKey, ErrDuplicate)
		}
		if err != nil {
			return err
		}

		return applyStockChanges(ctx, tx, SaleChanges(order), "order", order.ID, false)
	})
}

// SaleChanges returns the stock decrements implied by an order's items
func SaleChanges(order *models.SalesOrder) []StockChange {
	changes := make([]StockChange, 0, len(order.Items))
	for _, it := range order.Items {
		changes = append(changes, StockChange{
			ProductID: it.ProductID,
			Delta:     -it.Quantity,
			Type:      models.StockTxSale,
			Notes:     fmt.Sprintf("Sale to %s", order.CustomerName),
			UserID:    order.ServedBy,
		})
	}
	return AggregateChanges(changes)
}

// GetOrder retrieves an order by ID
func (s *Store) GetOrder(ctx context.Context, id int64) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM sales_orders WHERE id = $1", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves an order by idempotency key
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := s.db.GetContext(ctx, &order, "SELECT * FROM sales_orders WHERE idempotency_key = $1", key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders filters by free-text search, status, customer and date window
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.SalesOrder, int, error) {
	where := `WHERE ($1 = '' OR customer_name ILIKE '%' || $1 || '%' OR customer_phone ILIKE '%' || $1 || '%'
			OR status ILIKE '%' || $1 || '%')
		AND ($2 = '' OR status = $2)
		AND ($3 = '' OR customer_phone = $3)
		AND ($4 = '' OR customer_name = $4)
		AND ($5::timestamptz IS NULL OR order_date >= $5)
		AND ($6::timestamptz IS NULL OR order_date <= $6)`
	args := []interface{}{f.Search, f.Status, f.CustomerPhone, f.CustomerName, f.From, f.To}

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM sales_orders "+where, args...); err != nil {
		return nil, 0, err
	}

	var orders []models.SalesOrder
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM sales_orders "+where+" ORDER BY order_date DESC, id DESC LIMIT $7 OFFSET $8",
		append(args, limitArg(f.Limit), f.Offset())...)
	return orders, total, err
}

// UpdateOrder locks the order, lets mutate edit it and applies the returned
// stock changes before saving, all in one transaction.
func (s *Store) UpdateOrder(ctx context.Context, id int64, mutate OrderMutator) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &order, "SELECT * FROM sales_orders WHERE id = $1 FOR UPDATE", id); err != nil {
			return notFound(err, "order", id)
		}

		changes, err := mutate(&order)
		if err != nil {
			return err
		}

		if err := applyStockChanges(ctx, tx, AggregateChanges(changes), "order", order.ID, true); err != nil {
			return err
		}

		return saveOrder(ctx, tx, &order)
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// DeleteOrder hard-deletes an order without touching stock
func (s *Store) DeleteOrder(ctx context.Context, id int64) (*models.SalesOrder, error) {
	var order models.SalesOrder
	err := s.db.GetContext(ctx, &order, "DELETE FROM sales_orders WHERE id = $1 RETURNING *", id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

func saveOrder(ctx context.Context, tx *sqlx.Tx, order *models.SalesOrder) error {
	return tx.GetContext(ctx, &order.UpdatedAt, `
		UPDATE sales_orders SET customer_name = $1, customer_phone = $2, status = $3, items = $4,
			total_amount = $5, total_profit = $6, has_returns = $7, total_refunded = $8,
			edit_history = $9, updated_at = NOW()
		WHERE id = $10
		RETURNING updated_at`,
		order.CustomerName, order.CustomerPhone, order.Status, order.Items, order.TotalAmount,
		order.TotalProfit, order.HasReturns, order.TotalRefunded, order.EditHistory, order.ID)
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
