package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const defaultTable = "audit_logs"

// Repository writes audit entries to postgres.
type Repository struct {
	db    *sql.DB
	table string
}

// NewRepository constructs an audit repository; a nil db yields nil.
func NewRepository(db *sql.DB, table string) *Repository {
	if db == nil {
		return nil
	}
	if table == "" {
		table = defaultTable
	}
	return &Repository{db: db, table: table}
}

// EnsureSchema creates the audit table when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	workspace TEXT NOT NULL DEFAULT '',
	actor TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL,
	session_id TEXT NOT NULL DEFAULT '',
	dataset_id TEXT NOT NULL DEFAULT '',
	entity_id TEXT NOT NULL DEFAULT '',
	metadata JSONB,
	payload_digest TEXT NOT NULL DEFAULT '',
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
)`, r.table))
	return err
}

// Log writes an audit entry.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	entry.fill()
	var metadata any
	if len(entry.Metadata) > 0 {
		metadata = []byte(entry.Metadata)
	}

	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	id, workspace, actor, role, action, session_id, dataset_id, entity_id,
	metadata, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, r.table), entry.ID, entry.Workspace, entry.Actor, entry.Role, entry.Action, entry.SessionID, entry.DatasetID, entry.EntityID,
		metadata, entry.PayloadDigest, entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}
