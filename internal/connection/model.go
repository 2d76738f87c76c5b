package connection

import (
	"time"

	"vizspace/internal/permission"
	"vizspace/internal/role"
	"vizspace/internal/vault"

	"github.com/google/uuid"
)

// Type is the kind of external system a connection points at.
type Type string

const (
	TypeMySQL      Type = "mysql"
	TypePostgreSQL Type = "postgresql"
	TypeS3         Type = "s3"
	TypeAzureBlob  Type = "azure_blob"
	TypeGCS        Type = "gcs"
)

// Valid reports whether t is a supported connection type.
func (t Type) Valid() bool {
	switch t {
	case TypeMySQL, TypePostgreSQL, TypeS3, TypeAzureBlob, TypeGCS:
		return true
	}
	return false
}

// Connection is a stored external connection. Its configuration is only ever
// persisted sealed.
type Connection struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string
	Type        Type
	Sealed      vault.Sealed
	IsActive    bool
	CreatedBy   uuid.UUID
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (c *Connection) TenantID() uuid.UUID { return c.WorkspaceID }

// Resource describes c to the permission evaluator.
func (c *Connection) Resource() permission.Resource {
	return permission.Resource{ID: c.ID, WorkspaceID: c.WorkspaceID, CreatedBy: c.CreatedBy}
}

// associatedData binds a sealed config to its connection and workspace so a
// ciphertext copied to another row does not open.
func (c *Connection) associatedData() []byte {
	return []byte(c.WorkspaceID.String() + "/" + c.ID.String())
}

// Grant is an explicit per-user permission on a connection.
type Grant struct {
	ID           uuid.UUID
	ConnectionID uuid.UUID
	UserID       uuid.UUID
	Level        role.ConnectionLevel
	GrantedBy    uuid.NullUUID
	GrantedAt    time.Time
}

// GrantDetail is a grant joined with the grantee's account.
type GrantDetail struct {
	Grant
	Username string
	Email    string
}
