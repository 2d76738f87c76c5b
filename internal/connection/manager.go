// Package connection stores external connections with sealed credentials
// and their per-user grants.
package connection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vizspace/internal/apperr"
	"vizspace/internal/database"
	"vizspace/internal/isolation"
	"vizspace/internal/permission"
	"vizspace/internal/role"
	"vizspace/internal/tenant"
	"vizspace/internal/vault"

	"github.com/google/uuid"
)

const maxNameLength = 100

var (
	ErrNotFound         = apperr.NotFound("connection not found")
	ErrNameTaken        = apperr.Conflict("a connection with this name already exists in the workspace")
	ErrInvalidName      = apperr.Validation("connection name must be between 1 and 100 characters")
	ErrInvalidType      = apperr.Validation("invalid connection type: must be one of mysql, postgresql, s3, azure_blob, gcs")
	ErrInvalidConfig    = apperr.Validation("connection config is required")
	ErrGranteeNotMember = apperr.Validation("user is not a member of this workspace")
	ErrGrantNotFound    = apperr.NotFound("permission not found")
)

// Authorizer decides connection-level access for a caller whose workspace
// role is known.
type Authorizer interface {
	ConnectionAccessWithRole(ctx context.Context, userID uuid.UUID, held role.Role, conn permission.Resource, required role.ConnectionLevel) (bool, error)
	CanManageConnectionPermissionsWithRole(ctx context.Context, userID uuid.UUID, held role.Role, conn permission.Resource) (bool, error)
}

// MemberChecker reports workspace membership.
type MemberChecker interface {
	RoleOf(ctx context.Context, workspaceID, userID uuid.UUID) (role.Role, bool, error)
}

// GrantStore exposes grant lookups to the permission evaluator.
type GrantStore struct {
	ds *Datastore
}

func NewGrantStore(ds *Datastore) *GrantStore {
	return &GrantStore{ds: ds}
}

// GrantLevel returns the user's explicit grant; ok is false without one.
func (g *GrantStore) GrantLevel(ctx context.Context, connectionID, userID uuid.UUID) (role.ConnectionLevel, bool, error) {
	level, err := g.ds.GrantLevel(ctx, connectionID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return level, true, nil
}

// Manager handles connection business logic. Every method takes the caller's
// verified workspace scope; connections outside it do not exist.
type Manager struct {
	ds      *Datastore
	cipher  vault.Cipher
	guard   *isolation.Guard
	authz   Authorizer
	members MemberChecker
}

func NewManager(ds *Datastore, cipher vault.Cipher, guard *isolation.Guard, authz Authorizer, members MemberChecker) *Manager {
	return &Manager{ds: ds, cipher: cipher, guard: guard, authz: authz, members: members}
}

// CreateInput holds the input for creating a connection.
type CreateInput struct {
	Name   string
	Type   Type
	Config map[string]any
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Name     *string
	Config   map[string]any
	IsActive *bool
}

// Create seals the config and stores a new connection owned by the caller.
func (m *Manager) Create(ctx context.Context, scope tenant.Scope, in CreateInput) (*Connection, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.Type.Valid() {
		return nil, ErrInvalidType
	}
	if len(in.Config) == 0 {
		return nil, ErrInvalidConfig
	}

	c := &Connection{
		ID:          uuid.New(),
		WorkspaceID: scope.WorkspaceID,
		Name:        name,
		Type:        in.Type,
		IsActive:    true,
		CreatedBy:   scope.UserID,
	}
	if err := m.guard.BeforeCreate(c); err != nil {
		return nil, err
	}
	if err := m.seal(c, in.Config); err != nil {
		return nil, err
	}

	if err := m.ds.Create(ctx, c); err != nil {
		if database.IsUniqueViolation(err, constraintName) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}
	return c, nil
}

// Get returns the connection when the caller holds at least viewer access.
func (m *Manager) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Connection, error) {
	return m.getWithAccess(ctx, scope, id, role.ConnectionViewer)
}

// GetInWorkspace returns the connection without per-connection access checks.
// Data sources use it to confirm a connection belongs to the workspace.
func (m *Manager) GetInWorkspace(ctx context.Context, workspaceID, id uuid.UUID) (*Connection, error) {
	c, err := m.ds.Get(ctx, workspaceID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return c, nil
}

// List returns every connection for admins and, for everyone else, the
// connections they created or hold a grant on.
func (m *Manager) List(ctx context.Context, scope tenant.Scope) ([]*Connection, error) {
	var (
		out []*Connection
		err error
	)
	if scope.Role == role.Admin {
		out, err = m.ds.ListAll(ctx, scope.WorkspaceID)
	} else {
		out, err = m.ds.ListVisible(ctx, scope.WorkspaceID, scope.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return out, nil
}

// Update requires editor access. A new config is sealed again.
func (m *Manager) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, in UpdateInput) (*Connection, error) {
	c, err := m.getWithAccess(ctx, scope, id, role.ConnectionEditor)
	if err != nil {
		return nil, err
	}
	committed := c.WorkspaceID

	if in.Name != nil {
		name, err := validName(*in.Name)
		if err != nil {
			return nil, err
		}
		c.Name = name
	}
	if in.Config != nil {
		if len(in.Config) == 0 {
			return nil, ErrInvalidConfig
		}
		if err := m.seal(c, in.Config); err != nil {
			return nil, err
		}
	}
	if in.IsActive != nil {
		c.IsActive = *in.IsActive
	}

	if err := m.guard.BeforeUpdate(committed, c); err != nil {
		return nil, err
	}
	rows, err := m.ds.Update(ctx, c)
	if err != nil {
		if database.IsUniqueViolation(err, constraintName) {
			return nil, ErrNameTaken
		}
		return nil, fmt.Errorf("failed to update connection: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	return c, nil
}

// Delete requires owner access.
func (m *Manager) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if _, err := m.getWithAccess(ctx, scope, id, role.ConnectionOwner); err != nil {
		return err
	}
	rows, err := m.ds.Delete(ctx, scope.WorkspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Config opens the sealed configuration of c.
func (m *Manager) Config(c *Connection) (map[string]any, error) {
	var cfg map[string]any
	if err := vault.OpenJSON(m.cipher, &c.Sealed, c.associatedData(), &cfg); err != nil {
		return nil, fmt.Errorf("failed to open connection config: %w", err)
	}
	return cfg, nil
}

// ListGrants lists the explicit grants on a connection.
func (m *Manager) ListGrants(ctx context.Context, scope tenant.Scope, id uuid.UUID) ([]*GrantDetail, error) {
	c, err := m.getManageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	grants, err := m.ds.ListGrants(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connection permissions: %w", err)
	}
	return grants, nil
}

// SetGrant creates or replaces userID's grant. The grantee must be a member
// of the connection's workspace.
func (m *Manager) SetGrant(ctx context.Context, scope tenant.Scope, id, userID uuid.UUID, level role.ConnectionLevel) (*Grant, error) {
	if !level.Valid() {
		return nil, role.ErrInvalidConnectionLevel
	}
	c, err := m.getManageable(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	_, member, err := m.members.RoleOf(ctx, c.WorkspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to check grantee membership: %w", err)
	}
	if !member {
		return nil, ErrGranteeNotMember
	}

	g := &Grant{
		ConnectionID: c.ID,
		UserID:       userID,
		Level:        level,
		GrantedBy:    uuid.NullUUID{UUID: scope.UserID, Valid: true},
	}
	if err := m.ds.UpsertGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to grant connection permission: %w", err)
	}
	return g, nil
}

// RevokeGrant removes userID's grant.
func (m *Manager) RevokeGrant(ctx context.Context, scope tenant.Scope, id, userID uuid.UUID) error {
	c, err := m.getManageable(ctx, scope, id)
	if err != nil {
		return err
	}
	rows, err := m.ds.DeleteGrant(ctx, c.ID, userID)
	if err != nil {
		return fmt.Errorf("failed to revoke connection permission: %w", err)
	}
	if rows == 0 {
		return ErrGrantNotFound
	}
	return nil
}

func (m *Manager) getWithAccess(ctx context.Context, scope tenant.Scope, id uuid.UUID, required role.ConnectionLevel) (*Connection, error) {
	c, err := m.GetInWorkspace(ctx, scope.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	ok, err := m.authz.ConnectionAccessWithRole(ctx, scope.UserID, scope.Role, c.Resource(), required)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) getManageable(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Connection, error) {
	c, err := m.GetInWorkspace(ctx, scope.WorkspaceID, id)
	if err != nil {
		return nil, err
	}
	ok, err := m.authz.CanManageConnectionPermissionsWithRole(ctx, scope.UserID, scope.Role, c.Resource())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *Manager) seal(c *Connection, cfg map[string]any) error {
	sealed, err := vault.SealJSON(m.cipher, cfg, c.associatedData())
	if err != nil {
		return fmt.Errorf("failed to seal connection config: %w", err)
	}
	c.Sealed = *sealed
	return nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
