package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
)

var ErrMemberLimit = apperr.Validation("workspace has reached its member limit")

// MemberCounter counts a workspace's members.
type MemberCounter interface {
	Count(ctx context.Context, workspaceID uuid.UUID) (int, error)
}

// Manager handles reads and updates of existing workspaces.
type Manager struct {
	ds      *Datastore
	members MemberCounter
	cache   *SettingsCache
}

// NewManager creates a workspace manager. cache may be nil.
func NewManager(ds *Datastore, members MemberCounter, cache *SettingsCache) *Manager {
	return &Manager{ds: ds, members: members, cache: cache}
}

// GetByID retrieves a workspace.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	w, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return w, nil
}

// Rename changes the display name. The slug is immutable.
func (m *Manager) Rename(ctx context.Context, id uuid.UUID, name string) (*Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	rows, err := m.ds.UpdateName(ctx, id, name)
	if err != nil {
		return nil, fmt.Errorf("failed to rename workspace: %w", err)
	}
	if rows == 0 {
		return nil, ErrNotFound
	}
	return m.GetByID(ctx, id)
}

// Delete removes the workspace and everything scoped to it. Only the
// creator may delete; anyone else gets ErrNotFound.
func (m *Manager) Delete(ctx context.Context, id, actorID uuid.UUID) error {
	w, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if w.CreatedBy != actorID {
		return ErrNotFound
	}

	rows, err := m.ds.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	m.cache.Remove(id)
	return nil
}

// Settings returns the workspace settings, or the defaults when no row exists.
func (m *Manager) Settings(ctx context.Context, workspaceID uuid.UUID) (*Settings, error) {
	if s, ok := m.cache.Get(workspaceID); ok {
		return s, nil
	}

	s, err := m.ds.GetSettings(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultSettings(workspaceID), nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	m.cache.Add(s)
	return s, nil
}

// UpdateSettings applies overrides to the current settings.
func (m *Manager) UpdateSettings(ctx context.Context, workspaceID uuid.UUID, overrides *SettingsOverrides) (*Settings, error) {
	current, err := m.Settings(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	updated := *current
	if err := overrides.Apply(&updated); err != nil {
		return nil, err
	}

	if err := m.ds.UpsertSettings(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}

	m.cache.Remove(workspaceID)
	return &updated, nil
}

// EnsureMemberCapacity fails with ErrMemberLimit when the workspace is full.
func (m *Manager) EnsureMemberCapacity(ctx context.Context, workspaceID uuid.UUID) error {
	settings, err := m.Settings(ctx, workspaceID)
	if err != nil {
		return err
	}
	n, err := m.members.Count(ctx, workspaceID)
	if err != nil {
		return err
	}
	if n >= settings.MaxMembers {
		return ErrMemberLimit
	}
	return nil
}
