package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patternlock/patternlock/internal/domain"
)

// UserRepo handles persistence for verifier accounts.
type UserRepo struct{}

// Create inserts a new user. A taken username or email yields
// domain.ErrUserExists.
func (r *UserRepo) Create(ctx context.Context, db *sql.DB, u domain.User) error {
	const q = `INSERT INTO users (user_id, name, email, username, pattern_hash, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		u.ID,
		u.Name,
		u.Email,
		u.Username,
		u.PatternHash,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, db *sql.DB, username string) (*domain.User, error) {
	const q = `SELECT user_id, name, email, username, pattern_hash, created_at, updated_at
FROM users WHERE username = ?`
	return scanUser(db.QueryRowContext(ctx, q, username))
}

// GetByEmail retrieves a user by email address.
func (r *UserRepo) GetByEmail(ctx context.Context, db *sql.DB, email string) (*domain.User, error) {
	const q = `SELECT user_id, name, email, username, pattern_hash, created_at, updated_at
FROM users WHERE email = ?`
	return scanUser(db.QueryRowContext(ctx, q, email))
}

// UpdatePatternHash replaces a user's stored pattern hash.
func (r *UserRepo) UpdatePatternHash(ctx context.Context, db *sql.DB, userID, hash string, updatedAt int64) error {
	const q = `UPDATE users SET pattern_hash = ?, updated_at = ? WHERE user_id = ?`

	res, err := db.ExecContext(ctx, q, hash, updatedAt, userID)
	if err != nil {
		return fmt.Errorf("update pattern hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// Count returns the number of stored users.
func (r *UserRepo) Count(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Username, &u.PatternHash, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
