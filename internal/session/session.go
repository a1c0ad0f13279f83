// Package session keeps the signed-in user's payload between screens and
// runs of the client.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/store"
)

// Key is the key the user payload is stored under.
const Key = "user"

// Store holds the session payload. Load returns domain.ErrSessionNotFound
// when nothing is stored.
type Store interface {
	Load(ctx context.Context) (json.RawMessage, error)
	Save(ctx context.Context, payload json.RawMessage) error
	Clear(ctx context.Context) error
}

// Memory is an in-process Store.
type Memory struct {
	mu      sync.Mutex
	payload json.RawMessage
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Load implements Store.
func (m *Memory) Load(ctx context.Context) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.payload == nil {
		return nil, domain.ErrSessionNotFound
	}
	return append(json.RawMessage(nil), m.payload...), nil
}

// Save implements Store.
func (m *Memory) Save(ctx context.Context, payload json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = append(json.RawMessage(nil), payload...)
	return nil
}

// Clear implements Store.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payload = nil
	return nil
}

// SQLite persists the payload in the sessions table.
type SQLite struct {
	db   *sql.DB
	repo *store.SessionRepo
}

// NewSQLite creates a Store over db.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, repo: &store.SessionRepo{}}
}

// Load implements Store.
func (s *SQLite) Load(ctx context.Context) (json.RawMessage, error) {
	v, err := s.repo.Get(ctx, s.db, Key)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(v), nil
}

// Save implements Store.
func (s *SQLite) Save(ctx context.Context, payload json.RawMessage) error {
	return s.repo.Put(ctx, s.db, Key, payload, time.Now().Unix())
}

// Clear implements Store.
func (s *SQLite) Clear(ctx context.Context) error {
	return s.repo.Delete(ctx, s.db, Key)
}

// Profile decodes the stored payload into the fields the welcome screen shows.
func Profile(payload json.RawMessage) (domain.UserProfile, error) {
	var p domain.UserProfile
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.UserProfile{}, domain.WrapAuthError(domain.ErrSessionNotFound.Code, "decode session", err)
	}
	return p, nil
}
