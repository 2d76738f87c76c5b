// Package datasource manages named databases or folders reachable through a
// workspace connection.
package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"vizspace/internal/apperr"
	"vizspace/internal/connection"
	"vizspace/internal/database"
	"vizspace/internal/isolation"
	"vizspace/internal/permission"
	"vizspace/internal/tenant"

	"github.com/google/uuid"
)

const (
	maxNameLength       = 100
	maxIdentifierLength = 500
)

var (
	ErrNotFound           = apperr.NotFound("data source not found")
	ErrConnectionNotFound = apperr.NotFound("connection not found")
	ErrIdentifierTaken    = apperr.Conflict("a data source with this identifier already exists for this connection")
	ErrInvalidName        = apperr.Validation("data source name must be between 1 and 100 characters")
	ErrInvalidType        = apperr.Validation("invalid source type: must be database or folder")
	ErrInvalidIdentifier  = apperr.Validation("source identifier must be between 1 and 500 characters")
)

// ConnectionLookup finds a connection inside a workspace.
type ConnectionLookup interface {
	GetInWorkspace(ctx context.Context, workspaceID, id uuid.UUID) (*connection.Connection, error)
}

// Manager handles data source business logic within a caller's workspace scope.
type Manager struct {
	ds          *Datastore
	guard       *isolation.Guard
	connections ConnectionLookup
}

func NewManager(ds *Datastore, guard *isolation.Guard, connections ConnectionLookup) *Manager {
	return &Manager{ds: ds, guard: guard, connections: connections}
}

// CreateInput holds the input for creating a data source.
type CreateInput struct {
	ConnectionID     uuid.UUID
	Name             string
	SourceType       SourceType
	SourceIdentifier string
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Name             *string
	SourceIdentifier *string
	IsActive         *bool
}

// List returns the workspace's data sources, optionally for one connection.
func (m *Manager) List(ctx context.Context, scope tenant.Scope, connectionID uuid.NullUUID) ([]*DataSource, error) {
	sources, err := m.ds.List(ctx, scope.WorkspaceID, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list data sources: %w", err)
	}
	return sources, nil
}

func (m *Manager) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*DataSource, error) {
	d, err := m.ds.Get(ctx, scope.WorkspaceID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get data source: %w", err)
	}
	return d, nil
}

// ExistsInWorkspace lets charts validate their data source reference.
func (m *Manager) ExistsInWorkspace(ctx context.Context, workspaceID, id uuid.UUID) (bool, error) {
	return m.ds.Exists(ctx, workspaceID, id)
}

// Create requires the connection to belong to the caller's workspace.
func (m *Manager) Create(ctx context.Context, scope tenant.Scope, in CreateInput) (*DataSource, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	if !in.SourceType.Valid() {
		return nil, ErrInvalidType
	}
	identifier, err := validIdentifier(in.SourceIdentifier)
	if err != nil {
		return nil, err
	}

	if _, err := m.connections.GetInWorkspace(ctx, scope.WorkspaceID, in.ConnectionID); err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return nil, ErrConnectionNotFound
		}
		return nil, err
	}

	d := &DataSource{
		ID:               uuid.New(),
		WorkspaceID:      scope.WorkspaceID,
		ConnectionID:     in.ConnectionID,
		Name:             name,
		SourceType:       in.SourceType,
		SourceIdentifier: identifier,
		IsActive:         true,
		CreatedBy:        scope.UserID,
	}
	if err := m.guard.BeforeCreate(d); err != nil {
		return nil, err
	}

	if err := m.ds.Create(ctx, d); err != nil {
		if database.IsUniqueViolation(err, constraintIdentifier) {
			return nil, ErrIdentifierTaken
		}
		return nil, fmt.Errorf("failed to create data source: %w", err)
	}
	return d, nil
}

// Update is limited to the creator and workspace admins.
func (m *Manager) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, in UpdateInput) (*DataSource, error) {
	d, err := m.getOwned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	committed := d.WorkspaceID

	if in.Name != nil {
		if d.Name, err = validName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.SourceIdentifier != nil {
		if d.SourceIdentifier, err = validIdentifier(*in.SourceIdentifier); err != nil {
			return nil, err
		}
	}
	if in.IsActive != nil {
		d.IsActive = *in.IsActive
	}
	if err := m.guard.BeforeUpdate(committed, d); err != nil {
		return nil, err
	}

	n, err := m.ds.Update(ctx, d)
	if err != nil {
		if database.IsUniqueViolation(err, constraintIdentifier) {
			return nil, ErrIdentifierTaken
		}
		return nil, fmt.Errorf("failed to update data source: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return d, nil
}

// Delete is limited to the creator and workspace admins.
func (m *Manager) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if _, err := m.getOwned(ctx, scope, id); err != nil {
		return err
	}
	n, err := m.ds.Delete(ctx, scope.WorkspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete data source: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) getOwned(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*DataSource, error) {
	d, err := m.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !permission.CanModifyOwned(scope.Role, scope.UserID, d.CreatedBy) {
		return nil, ErrNotFound
	}
	return d, nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func validIdentifier(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIdentifierLength {
		return "", ErrInvalidIdentifier
	}
	return id, nil
}
