package datasource

import (
	"time"

	"github.com/google/uuid"
)

// SourceType is what a data source identifier names on its connection.
type SourceType string

const (
	SourceDatabase SourceType = "database"
	SourceFolder   SourceType = "folder"
)

func (t SourceType) Valid() bool {
	return t == SourceDatabase || t == SourceFolder
}

// DataSource is a database or folder on a connection.
type DataSource struct {
	ID               uuid.UUID
	WorkspaceID      uuid.UUID
	ConnectionID     uuid.UUID
	Name             string
	SourceType       SourceType
	SourceIdentifier string
	IsActive         bool
	CreatedBy        uuid.UUID
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (d *DataSource) TenantID() uuid.UUID { return d.WorkspaceID }
