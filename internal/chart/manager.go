// Package chart manages chart definitions inside a workspace.
package chart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"vizspace/internal/apperr"
	"vizspace/internal/isolation"
	"vizspace/internal/permission"
	"vizspace/internal/tenant"

	"github.com/google/uuid"
)

const maxNameLength = 100

var (
	ErrNotFound           = apperr.NotFound("chart not found")
	ErrDataSourceNotFound = apperr.NotFound("data source not found")
	ErrInvalidName        = apperr.Validation("chart name must be between 1 and 100 characters")
	ErrInvalidType        = apperr.Validation("invalid chart type: must be one of bar, line, pie, scatter, area")
	ErrInvalidConfig      = apperr.Validation("chart config must be a JSON object")
)

// DataSourceChecker confirms a data source belongs to a workspace.
type DataSourceChecker interface {
	ExistsInWorkspace(ctx context.Context, workspaceID, id uuid.UUID) (bool, error)
}

// Manager handles chart business logic within a caller's workspace scope.
type Manager struct {
	ds      *Datastore
	guard   *isolation.Guard
	sources DataSourceChecker
}

func NewManager(ds *Datastore, guard *isolation.Guard, sources DataSourceChecker) *Manager {
	return &Manager{ds: ds, guard: guard, sources: sources}
}

// CreateInput holds the input for creating a chart.
type CreateInput struct {
	Name         string
	Description  string
	ChartType    Type
	Config       json.RawMessage
	Query        string
	DataSourceID uuid.NullUUID
}

// UpdateInput changes only the non-nil fields. A DataSourceID with Valid
// false detaches the chart from its data source.
type UpdateInput struct {
	Name         *string
	Description  *string
	ChartType    *Type
	Config       json.RawMessage
	Query        *string
	DataSourceID *uuid.NullUUID
}

func (m *Manager) List(ctx context.Context, scope tenant.Scope) ([]*Chart, error) {
	charts, err := m.ds.List(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list charts: %w", err)
	}
	return charts, nil
}

func (m *Manager) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Chart, error) {
	c, err := m.ds.Get(ctx, scope.WorkspaceID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chart: %w", err)
	}
	return c, nil
}

func (m *Manager) Create(ctx context.Context, scope tenant.Scope, in CreateInput) (*Chart, error) {
	c := &Chart{
		ID:           uuid.New(),
		WorkspaceID:  scope.WorkspaceID,
		DataSourceID: in.DataSourceID,
		Name:         in.Name,
		Description:  strings.TrimSpace(in.Description),
		ChartType:    in.ChartType,
		Config:       in.Config,
		Query:        in.Query,
		CreatedBy:    scope.UserID,
	}
	if err := m.validate(ctx, c); err != nil {
		return nil, err
	}
	if err := m.guard.BeforeCreate(c); err != nil {
		return nil, err
	}

	if err := m.ds.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to create chart: %w", err)
	}
	return c, nil
}

// Update is limited to the creator and workspace admins.
func (m *Manager) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, in UpdateInput) (*Chart, error) {
	c, err := m.getOwned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	committed := c.WorkspaceID

	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.Description != nil {
		c.Description = strings.TrimSpace(*in.Description)
	}
	if in.ChartType != nil {
		c.ChartType = *in.ChartType
	}
	if in.Config != nil {
		c.Config = in.Config
	}
	if in.Query != nil {
		c.Query = *in.Query
	}
	if in.DataSourceID != nil {
		c.DataSourceID = *in.DataSourceID
	}
	if err := m.validate(ctx, c); err != nil {
		return nil, err
	}
	if err := m.guard.BeforeUpdate(committed, c); err != nil {
		return nil, err
	}

	n, err := m.ds.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to update chart: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return c, nil
}

// Delete is limited to the creator and workspace admins.
func (m *Manager) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if _, err := m.getOwned(ctx, scope, id); err != nil {
		return err
	}
	n, err := m.ds.Delete(ctx, scope.WorkspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete chart: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Manager) getOwned(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Chart, error) {
	c, err := m.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !permission.CanModifyOwned(scope.Role, scope.UserID, c.CreatedBy) {
		return nil, ErrNotFound
	}
	return c, nil
}

// validate normalizes c in place and checks the data source reference.
func (m *Manager) validate(ctx context.Context, c *Chart) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" || len(c.Name) > maxNameLength {
		return ErrInvalidName
	}
	if !c.ChartType.Valid() {
		return ErrInvalidType
	}
	if len(c.Config) == 0 {
		c.Config = json.RawMessage(`{}`)
	}
	var obj map[string]any
	if err := json.Unmarshal(c.Config, &obj); err != nil || obj == nil {
		return ErrInvalidConfig
	}

	if !c.DataSourceID.Valid {
		return nil
	}
	ok, err := m.sources.ExistsInWorkspace(ctx, c.WorkspaceID, c.DataSourceID.UUID)
	if err != nil {
		return fmt.Errorf("failed to check data source: %w", err)
	}
	if !ok {
		return ErrDataSourceNotFound
	}
	return nil
}
