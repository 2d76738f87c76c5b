// Package activity records an append-only audit trail per workspace.
package activity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vizspace/internal/database"
	"vizspace/internal/isolation"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Entry is one recorded action.
type Entry struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	UserID       uuid.NullUUID
	Action       string
	ResourceType string
	ResourceID   uuid.NullUUID
	Details      json.RawMessage
	IPAddress    string
	CreatedAt    time.Time
}

func (e *Entry) TenantID() uuid.UUID { return e.WorkspaceID }

// Store writes and pages activity entries.
type Store struct {
	db    database.DBTX
	guard *isolation.Guard
	now   func() time.Time
}

func NewStore(db database.DBTX, guard *isolation.Guard) *Store {
	return &Store{db: db, guard: guard, now: time.Now}
}

// Record appends e, filling in its id, timestamp and empty details.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if len(e.Details) == 0 {
		e.Details = json.RawMessage(`{}`)
	}
	e.CreatedAt = s.now()
	if err := s.guard.BeforeCreate(e); err != nil {
		return err
	}

	query := `
		INSERT INTO activity_logs (id, workspace_id, user_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.WorkspaceID, e.UserID, e.Action, e.ResourceType, e.ResourceID, []byte(e.Details), e.IPAddress, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// List returns a page of the workspace's entries, newest first.
func (s *Store) List(ctx context.Context, workspaceID uuid.UUID, limit, offset int) ([]*Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT id, workspace_id, user_id, action, resource_type, resource_id, details, ip_address, created_at
		FROM activity_logs
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		var details []byte
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&details, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		e.Details = details
		out = append(out, e)
	}
	return out, rows.Err()
}
