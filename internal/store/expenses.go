package store

import (
	"context"

	"retail-core/internal/models"
)

// CreateExpense appends an expense
func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
	query := `
		INSERT INTO expenses (amount, description, category, expense_date, user_id, username)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, e, query,
		e.Amount, e.Description, e.Category, e.Date, e.UserID, e.Username)
}

// GetExpense retrieves an expense by ID
func (s *Store) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	var e models.Expense
	if err := s.db.GetContext(ctx, &e, "SELECT * FROM expenses WHERE id = $1", id); err != nil {
		return nil, notFound(err, "expense", id)
	}
	return &e, nil
}

// ListExpenses filters by category and date window, newest first
func (s *Store) ListExpenses(ctx context.Context, f ExpenseFilter) ([]models.Expense, int, error) {
	where := `WHERE ($1 = '' OR category = $1)
		AND ($2::timestamptz IS NULL OR expense_date >= $2)
		AND ($3::timestamptz IS NULL OR expense_date <= $3)`

	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM expenses "+where, f.Category, f.From, f.To); err != nil {
		return nil, 0, err
	}

	var expenses []models.Expense
	err := s.db.SelectContext(ctx, &expenses,
		"SELECT * FROM expenses "+where+" ORDER BY expense_date DESC, id DESC LIMIT $4 OFFSET $5",
		f.Category, f.From, f.To, limitArg(f.Limit), f.Offset())
	return expenses, total, err
}

// UpdateExpense saves an edited expense
func (s *Store) UpdateExpense(ctx context.Context, e *models.Expense) error {
	err := s.db.GetContext(ctx, &e.UpdatedAt, `
		UPDATE expenses SET amount = $1, description = $2, category = $3, expense_date = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at`,
		e.Amount, e.Description, e.Category, e.Date, e.ID)
	return notFound(err, "expense", e.ID)
}

// DeleteExpense removes an expense
func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM expenses WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res, "expense", id)
}
