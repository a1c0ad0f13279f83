package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/patternlock/patternlock/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries.
type AuditRepo struct{}

// Record inserts an audit record.
func (r *AuditRepo) Record(ctx context.Context, db *sql.DB, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, username, action, outcome, detail, remote_addr, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		rec.ID,
		rec.Username,
		rec.Action,
		rec.Outcome,
		rec.Detail,
		rec.RemoteAddr,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByUsername returns the most recent audit records for a username, oldest
// first. A limit of zero or less returns every record.
func (r *AuditRepo) ListByUsername(ctx context.Context, db *sql.DB, username string, limit int) ([]domain.AuditRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `SELECT id, username, action, outcome, detail, remote_addr, created_at FROM (
	SELECT id, username, action, outcome, detail, remote_addr, created_at, rowid AS rid
	FROM audit_records
	WHERE username = ?
	ORDER BY created_at DESC, rid DESC
	LIMIT ?
) ORDER BY created_at ASC, rid ASC`

	rows, err := db.QueryContext(ctx, q, username, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.Username, &a.Action, &a.Outcome, &a.Detail,
			&a.RemoteAddr, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
