package dashboard

import (
	"context"
	"time"

	"vizspace/internal/database"

	"github.com/google/uuid"
)

const dashboardColumns = `id, workspace_id, name, description, layout, is_public,
	public_token, public_expires_at, public_access_count, created_by, created_at, updated_at`

// Datastore handles database operations for dashboards.
type Datastore struct {
	db database.DBTX
}

func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

func (ds *Datastore) Create(ctx context.Context, d *Dashboard) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	query := `
		INSERT INTO dashboards (id, workspace_id, name, description, layout, is_public, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		d.ID, d.WorkspaceID, d.Name, d.Description, []byte(d.Layout), d.IsPublic, d.CreatedBy, now, now,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// Get returns sql.ErrNoRows when the dashboard is absent from the workspace.
func (ds *Datastore) Get(ctx context.Context, workspaceID, id uuid.UUID) (*Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE id = $1 AND workspace_id = $2`
	return scanDashboard(ds.db.QueryRowContext(ctx, query, id, workspaceID))
}

// GetByToken looks up a public dashboard in any workspace.
func (ds *Datastore) GetByToken(ctx context.Context, token string) (*Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards WHERE public_token = $1 AND is_public = TRUE`
	return scanDashboard(ds.db.QueryRowContext(ctx, query, token))
}

func (ds *Datastore) List(ctx context.Context, workspaceID uuid.UUID) ([]*Dashboard, error) {
	query := `SELECT ` + dashboardColumns + ` FROM dashboards
		WHERE workspace_id = $1
		ORDER BY updated_at DESC`

	rows, err := ds.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Dashboard
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (ds *Datastore) Count(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := ds.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dashboards WHERE workspace_id = $1`, workspaceID).Scan(&n)
	return n, err
}

// Update writes the editable columns and the share state.
func (ds *Datastore) Update(ctx context.Context, d *Dashboard) (int64, error) {
	query := `
		UPDATE dashboards
		SET name = $3, description = $4, layout = $5, is_public = $6,
		    public_token = $7, public_expires_at = $8, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`
	result, err := ds.db.ExecContext(ctx, query,
		d.ID, d.WorkspaceID, d.Name, d.Description, []byte(d.Layout), d.IsPublic,
		d.PublicToken, d.PublicExpiresAt,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (ds *Datastore) Delete(ctx context.Context, workspaceID, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM dashboards WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// IncrementAccess bumps the public access counter and returns the new value.
func (ds *Datastore) IncrementAccess(ctx context.Context, id uuid.UUID) (int, error) {
	var n int
	err := ds.db.QueryRowContext(ctx,
		`UPDATE dashboards SET public_access_count = public_access_count + 1 WHERE id = $1 RETURNING public_access_count`,
		id,
	).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDashboard(row scanner) (*Dashboard, error) {
	d := &Dashboard{}
	var layout []byte
	err := row.Scan(
		&d.ID, &d.WorkspaceID, &d.Name, &d.Description, &layout, &d.IsPublic,
		&d.PublicToken, &d.PublicExpiresAt, &d.PublicAccessCount, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Layout = layout
	return d, nil
}
