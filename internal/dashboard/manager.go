// Package dashboard manages dashboards and their public share links.
package dashboard

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"vizspace/internal/apperr"
	"vizspace/internal/isolation"
	"vizspace/internal/permission"
	"vizspace/internal/tenant"
	"vizspace/internal/workspace"

	"github.com/google/uuid"
)

const (
	maxNameLength = 100
	tokenBytes    = 32

	DefaultShareDays = 30
	MaxShareDays     = 365
)

var (
	ErrNotFound      = apperr.NotFound("dashboard not found")
	ErrInvalidName   = apperr.Validation("dashboard name must be between 1 and 100 characters")
	ErrInvalidLayout = apperr.Validation("layout must be valid JSON")
	ErrInvalidExpiry = apperr.Validation("expires_in_days must be between 1 and 365")
	ErrLimitReached  = apperr.Validation("workspace has reached its dashboard limit")
	ErrShareNotFound = apperr.NotFound("dashboard not found or not publicly accessible")
	ErrShareExpired  = apperr.New(apperr.KindGone, "this sharing link has expired")
)

// SettingsReader provides the workspace limits.
type SettingsReader interface {
	Settings(ctx context.Context, workspaceID uuid.UUID) (*workspace.Settings, error)
}

// Manager handles dashboard business logic within a caller's workspace scope.
type Manager struct {
	ds       *Datastore
	guard    *isolation.Guard
	settings SettingsReader
	now      func() time.Time
}

func NewManager(ds *Datastore, guard *isolation.Guard, settings SettingsReader) *Manager {
	return &Manager{ds: ds, guard: guard, settings: settings, now: time.Now}
}

// CreateInput holds the input for creating a dashboard.
type CreateInput struct {
	Name        string
	Description string
	Layout      json.RawMessage
	IsPublic    bool
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Name        *string
	Description *string
	Layout      json.RawMessage
	IsPublic    *bool
}

func (m *Manager) List(ctx context.Context, scope tenant.Scope) ([]*Dashboard, error) {
	out, err := m.ds.List(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	return out, nil
}

func (m *Manager) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Dashboard, error) {
	d, err := m.ds.Get(ctx, scope.WorkspaceID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return d, nil
}

// Create stores a dashboard owned by the caller, subject to max_dashboards.
func (m *Manager) Create(ctx context.Context, scope tenant.Scope, in CreateInput) (*Dashboard, error) {
	name, err := validName(in.Name)
	if err != nil {
		return nil, err
	}
	layout, err := validLayout(in.Layout)
	if err != nil {
		return nil, err
	}

	settings, err := m.settings.Settings(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, err
	}
	n, err := m.ds.Count(ctx, scope.WorkspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboards: %w", err)
	}
	if n >= settings.MaxDashboards {
		return nil, ErrLimitReached
	}

	d := &Dashboard{
		WorkspaceID: scope.WorkspaceID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Layout:      layout,
		IsPublic:    in.IsPublic,
		CreatedBy:   scope.UserID,
	}
	if err := m.guard.BeforeCreate(d); err != nil {
		return nil, err
	}
	if err := m.ds.Create(ctx, d); err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}
	return d, nil
}

// Update is limited to the creator and workspace admins.
func (m *Manager) Update(ctx context.Context, scope tenant.Scope, id uuid.UUID, in UpdateInput) (*Dashboard, error) {
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
	if in.Description != nil {
		d.Description = strings.TrimSpace(*in.Description)
	}
	if in.Layout != nil {
		if d.Layout, err = validLayout(in.Layout); err != nil {
			return nil, err
		}
	}
	if in.IsPublic != nil {
		d.IsPublic = *in.IsPublic
	}

	return d, m.save(ctx, committed, d)
}

// Delete is limited to the creator and workspace admins.
func (m *Manager) Delete(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	if _, err := m.getOwned(ctx, scope, id); err != nil {
		return err
	}
	rows, err := m.ds.Delete(ctx, scope.WorkspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Share issues a fresh public token valid for days, replacing any previous one.
func (m *Manager) Share(ctx context.Context, scope tenant.Scope, id uuid.UUID, days int) (*Dashboard, error) {
	if days < 1 || days > MaxShareDays {
		return nil, ErrInvalidExpiry
	}
	d, err := m.getOwned(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	token, err := newShareToken()
	if err != nil {
		return nil, err
	}
	d.IsPublic = true
	d.PublicToken = sql.NullString{String: token, Valid: true}
	d.PublicExpiresAt = sql.NullTime{Time: m.now().Add(time.Duration(days) * 24 * time.Hour), Valid: true}

	return d, m.save(ctx, d.WorkspaceID, d)
}

// Unshare revokes the public token.
func (m *Manager) Unshare(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Dashboard, error) {
	d, err := m.getOwned(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	d.IsPublic = false
	d.PublicToken = sql.NullString{}
	d.PublicExpiresAt = sql.NullTime{}

	return d, m.save(ctx, d.WorkspaceID, d)
}

// GetPublic resolves a share token without authentication and counts the view.
func (m *Manager) GetPublic(ctx context.Context, token string) (*Dashboard, error) {
	if token == "" {
		return nil, ErrShareNotFound
	}
	d, err := m.ds.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShareNotFound
		}
		return nil, fmt.Errorf("failed to get shared dashboard: %w", err)
	}
	if d.PublicExpiresAt.Valid && !m.now().Before(d.PublicExpiresAt.Time) {
		return nil, ErrShareExpired
	}

	n, err := m.ds.IncrementAccess(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record dashboard access: %w", err)
	}
	d.PublicAccessCount = n
	return d, nil
}

func (m *Manager) getOwned(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*Dashboard, error) {
	d, err := m.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if !permission.CanModifyOwned(scope.Role, scope.UserID, d.CreatedBy) {
		return nil, ErrNotFound
	}
	return d, nil
}

func (m *Manager) save(ctx context.Context, committed uuid.UUID, d *Dashboard) error {
	if err := m.guard.BeforeUpdate(committed, d); err != nil {
		return err
	}
	rows, err := m.ds.Update(ctx, d)
	if err != nil {
		return fmt.Errorf("failed to update dashboard: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// newShareToken returns 32 random bytes, URL-safe base64 without padding.
func newShareToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func validLayout(layout json.RawMessage) (json.RawMessage, error) {
	if len(layout) == 0 {
		return json.RawMessage(`[]`), nil
	}
	if !json.Valid(layout) {
		return nil, ErrInvalidLayout
	}
	return layout, nil
}
