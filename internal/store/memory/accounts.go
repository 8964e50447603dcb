package memory

import (
	"context"
	"fmt"
	"time"

	"retail-core/internal/models"
	"retail-core/internal/store"
)

// Expenses

func (s *Store) CreateExpense(ctx context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e.ID = s.id("expense")
	e.CreatedAt, e.UpdatedAt = now, now
	s.expenses[e.ID] = *e
	return nil
}

func (s *Store) GetExpense(ctx context.Context, id int64) (*models.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.expenses[id]
	if !ok {
		return nil, fmt.Errorf("expense %d: %w", id, store.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListExpenses(ctx context.Context, f store.ExpenseFilter) ([]models.Expense, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.Expense
	for _, e := range s.expenses {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if !inWindow(e.Date, f.From, f.To) {
			continue
		}
		rows = append(rows, e)
	}
	newestFirst(rows, func(e models.Expense) time.Time { return e.Date }, func(e models.Expense) int64 { return e.ID })
	return paginate(rows, f.Page), len(rows), nil
}

func (s *Store) UpdateExpense(ctx context.Context, e *models.Expense) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.expenses[e.ID]
	if !ok {
		return fmt.Errorf("expense %d: %w", e.ID, store.ErrNotFound)
	}
	current.Amount, current.Description, current.Category, current.Date = e.Amount, e.Description, e.Category, e.Date
	current.UpdatedAt = s.now()
	s.expenses[e.ID] = current
	*e = current
	return nil
}

func (s *Store) DeleteExpense(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.expenses[id]; !ok {
		return fmt.Errorf("expense %d: %w", id, store.ErrNotFound)
	}
	delete(s.expenses, id)
	return nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("user %s: %w", u.Username, store.ErrDuplicate)
		}
	}
	now := s.now()
	u.ID = s.id("user")
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.Username == username {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s: %w", username, store.ErrNotFound)
}

func (s *Store) GetUserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if token != "" && u.RefreshToken == token {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("refresh token: %w", store.ErrNotFound)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		rows = append(rows, u)
	}
	newestFirst(rows, func(u models.User) time.Time { return u.CreatedAt }, func(u models.User) int64 { return u.ID })
	return rows, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[u.ID]
	if !ok {
		return fmt.Errorf("user %d: %w", u.ID, store.ErrNotFound)
	}
	for _, existing := range s.users {
		if existing.ID != u.ID && existing.Email == u.Email {
			return fmt.Errorf("email %s: %w", u.Email, store.ErrDuplicate)
		}
	}
	updated := *u
	updated.Username = current.Username
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = s.now()
	s.users[u.ID] = updated
	u.UpdatedAt = updated.UpdatedAt
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return fmt.Errorf("user %d: %w", id, store.ErrNotFound)
	}
	delete(s.users, id)
	return nil
}

func (s *Store) CountUsers(ctx context.Context, role string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, u := range s.users {
		if role == "" || u.Role == role {
			n++
		}
	}
	return n, nil
}
