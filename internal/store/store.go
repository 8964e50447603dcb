package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"retail-core/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

var _ Repository = (*Store)(nil)

// Store is the Postgres-backed Repository
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing only when fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// applyStockChanges moves stock for each change and logs a stock transaction.
// Decrements only succeed when enough stock is on hand. With skipMissing,
// changes for deleted products are ignored instead of failing.
func applyStockChanges(ctx context.Context, tx *sqlx.Tx, changes []StockChange, refType string, refID int64, skipMissing bool) error {
	for _, ch := range changes {
		if ch.Delta == 0 {
			continue
		}

		var after int
		err := tx.GetContext(ctx, &after, `
			UPDATE products SET quantity_in_stock = quantity_in_stock + $1, stock_version = stock_version + 1,
				updated_at = NOW()
			WHERE id = $2 AND quantity_in_stock + $1 >= 0
			RETURNING quantity_in_stock`, ch.Delta, ch.ProductID)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.GetContext(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", ch.ProductID); err != nil {
				return err
			}
			if !exists {
				if skipMissing {
					continue
				}
				return fmt.Errorf("product %d: %w", ch.ProductID, ErrNotFound)
			}
			return fmt.Errorf("product %d: %w", ch.ProductID, ErrInsufficientStock)
		}
		if err != nil {
			return fmt.Errorf("failed to move stock: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_transactions
				(product_id, transaction_type, quantity, quantity_before, quantity_after, reference_type, reference_id, notes, user_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ch.ProductID, ch.Type, ch.Delta, after-ch.Delta, after, refType, refID, ch.Notes, ch.UserID)
		if err != nil {
			return fmt.Errorf("failed to log stock transaction: %w", err)
		}
	}
	return nil
}

// ListStockTransactions returns the newest movements for a product
func (s *Store) ListStockTransactions(ctx context.Context, productID int64, limit int) ([]models.StockTransaction, error) {
	var txs []models.StockTransaction
	err := s.db.SelectContext(ctx, &txs, `
		SELECT * FROM stock_transactions WHERE product_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2`, productID, limitArg(limit))
	return txs, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func limitArg(limit int) interface{} {
	if limit <= 0 {
		return nil
	}
	return limit
}

func notFound(err error, what string, id interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, id, ErrNotFound)
	}
	return err
}

func checkAffected(res sql.Result, what string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return nil
}
