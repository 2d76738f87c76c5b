package workspace

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"vizspace/internal/database"
)

// Datastore handles persistence for workspaces and their settings.
// It returns raw errors; the Factory and Manager translate them.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a workspace datastore. db may be a transaction.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// SlugExists reports whether a workspace already uses slug.
func (ds *Datastore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := ds.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM workspaces WHERE slug = $1)`, slug).Scan(&exists)
	return exists, err
}

// UserExists reports whether the user row exists.
func (ds *Datastore) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := ds.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// InsertIfSlugFree inserts w unless another row holds its slug.
// It returns false, nil when the slug was taken first.
func (ds *Datastore) InsertIfSlugFree(ctx context.Context, w *Workspace) (bool, error) {
	now := time.Now()

	query := `
		INSERT INTO workspaces (id, name, slug, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO NOTHING
		RETURNING created_at, updated_at`

	err := ds.db.QueryRowContext(ctx, query,
		w.ID, w.Name, w.Slug, w.CreatedBy, now, now,
	).Scan(&w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByID retrieves a workspace. Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*Workspace, error) {
	query := `
		SELECT id, name, slug, created_by, created_at, updated_at
		FROM workspaces WHERE id = $1`

	w := &Workspace{}
	err := ds.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.Name, &w.Slug, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// UpdateName renames a workspace. The slug is left alone.
func (ds *Datastore) UpdateName(ctx context.Context, id uuid.UUID, name string) (int64, error) {
	query := `UPDATE workspaces SET name = $2, updated_at = NOW() WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, name)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Delete removes a workspace; scoped rows go with it through ON DELETE CASCADE.
func (ds *Datastore) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// InsertSettings writes the settings row of a new workspace.
func (ds *Datastore) InsertSettings(ctx context.Context, s *Settings) error {
	now := time.Now()

	query := `
		INSERT INTO workspace_settings
			(workspace_id, redis_enabled, redis_host, redis_port, max_dashboards, max_members, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		s.WorkspaceID, s.RedisEnabled, s.RedisHost, s.RedisPort, s.MaxDashboards, s.MaxMembers, now, now,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}

// GetSettings retrieves a workspace's settings. Returns sql.ErrNoRows if absent.
func (ds *Datastore) GetSettings(ctx context.Context, workspaceID uuid.UUID) (*Settings, error) {
	query := `
		SELECT workspace_id, redis_enabled, redis_host, redis_port, max_dashboards, max_members, created_at, updated_at
		FROM workspace_settings WHERE workspace_id = $1`

	s := &Settings{}
	err := ds.db.QueryRowContext(ctx, query, workspaceID).Scan(
		&s.WorkspaceID, &s.RedisEnabled, &s.RedisHost, &s.RedisPort,
		&s.MaxDashboards, &s.MaxMembers, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSettings creates or replaces a workspace's settings.
func (ds *Datastore) UpsertSettings(ctx context.Context, s *Settings) error {
	now := time.Now()

	query := `
		INSERT INTO workspace_settings
			(workspace_id, redis_enabled, redis_host, redis_port, max_dashboards, max_members, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (workspace_id) DO UPDATE SET
			redis_enabled = EXCLUDED.redis_enabled,
			redis_host = EXCLUDED.redis_host,
			redis_port = EXCLUDED.redis_port,
			max_dashboards = EXCLUDED.max_dashboards,
			max_members = EXCLUDED.max_members,
			updated_at = EXCLUDED.updated_at
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		s.WorkspaceID, s.RedisEnabled, s.RedisHost, s.RedisPort, s.MaxDashboards, s.MaxMembers, now,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}
