package dashboard

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Dashboard is a workspace-scoped layout of charts. PublicToken, when set,
// grants unauthenticated read access until PublicExpiresAt.
type Dashboard struct {
	ID                uuid.UUID
	WorkspaceID       uuid.UUID
	Name              string
	Description       string
	Layout            json.RawMessage
	IsPublic          bool
	PublicToken       sql.NullString
	PublicExpiresAt   sql.NullTime
	PublicAccessCount int
	CreatedBy         uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (d *Dashboard) TenantID() uuid.UUID { return d.WorkspaceID }
