package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"retail-core/internal/models"
)

// CreateUser inserts a user; a taken username or email yields ErrDuplicate
func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (username, email, password_hash, role, shop_name, phone)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := s.db.GetContext(ctx, u, query,
		u.Username, u.Email, u.PasswordHash, u.Role, u.ShopName, u.Phone)
	if isUniqueViolation(err) {
		return fmt.Errorf("user %s: %w", u.Username, ErrDuplicate)
	}
	return err
}

// GetUser retrieves a user by ID
func (s *Store) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE id = $1", id); err != nil {
		return nil, notFound(err, "user", id)
	}
	return &u, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := s.db.GetContext(ctx, &u, "SELECT * FROM users WHERE username = $1", username); err != nil {
		return nil, notFound(err, "user", username)
	}
	return &u, nil
}

// GetUserByRefreshToken retrieves the user holding a refresh token
func (s *Store) GetUserByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	var u models.User
	err := s.db.GetContext(ctx, &u,
		"SELECT * FROM users WHERE refresh_token = $1 AND refresh_token <> ''", token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns every user
func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users, "SELECT * FROM users ORDER BY created_at DESC, id DESC")
	return users, err
}

// UpdateUser saves profile, role, password and refresh token fields
func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	err := s.db.GetContext(ctx, &u.UpdatedAt, `
		UPDATE users SET email = $1, password_hash = $2, role = $3, shop_name = $4, phone = $5,
			profile_picture = $6, refresh_token = $7, refresh_token_expiry = $8, updated_at = NOW()
		WHERE id = $9
		RETURNING updated_at`,
		u.Email, u.PasswordHash, u.Role, u.ShopName, u.Phone, u.ProfilePicture,
		u.RefreshToken, u.RefreshTokenExpiry, u.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("email %s: %w", u.Email, ErrDuplicate)
	}
	return notFound(err, "user", u.ID)
}

// DeleteUser removes a user
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return err
	}
	return checkAffected(res, "user", id)
}

// CountUsers counts users with the role, or all users when role is empty
func (s *Store) CountUsers(ctx context.Context, role string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users WHERE $1 = '' OR role = $1", role)
	return n, err
}
