package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/patternlock/patternlock/internal/domain"
)

// SessionRepo persists opaque client session values by key.
type SessionRepo struct{}

// Put stores value under key, replacing any previous value.
func (r *SessionRepo) Put(ctx context.Context, db *sql.DB, key string, value []byte, updatedAt int64) error {
	const q = `INSERT INTO sessions (session_key, value_json, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session_key) DO UPDATE SET value_json = excluded.value_json, updated_at = excluded.updated_at`
	if _, err := db.ExecContext(ctx, q, key, string(value), updatedAt); err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

// Get returns the value stored under key, or domain.ErrSessionNotFound.
func (r *SessionRepo) Get(ctx context.Context, db *sql.DB, key string) ([]byte, error) {
	const q = `SELECT value_json FROM sessions WHERE session_key = ?`

	var v string
	err := db.QueryRowContext(ctx, q, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return []byte(v), nil
}

// Delete removes key. Deleting a missing key is not an error.
func (r *SessionRepo) Delete(ctx context.Context, db *sql.DB, key string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions WHERE session_key = ?`, key); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
