package datasource

import (
	"context"
	"time"

	"vizspace/internal/database"

	"github.com/google/uuid"
)

const (
	dataSourceColumns = `id, workspace_id, connection_id, name, source_type, source_identifier,
	is_active, created_by, created_at, updated_at`

	constraintIdentifier = "data_sources_connection_id_source_identifier_key"
)

// Datastore handles database operations for data sources.
type Datastore struct {
	db database.DBTX
}

func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// List returns the workspace's data sources; an invalid connectionID matches all.
func (ds *Datastore) List(ctx context.Context, workspaceID uuid.UUID, connectionID uuid.NullUUID) ([]*DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources
		WHERE workspace_id = $1 AND ($2::uuid IS NULL OR connection_id = $2)
		ORDER BY name`
	rows, err := ds.db.QueryContext(ctx, query, workspaceID, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*DataSource
	for rows.Next() {
		d, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Get returns sql.ErrNoRows when the data source is absent from the workspace.
func (ds *Datastore) Get(ctx context.Context, workspaceID, id uuid.UUID) (*DataSource, error) {
	query := `SELECT ` + dataSourceColumns + ` FROM data_sources WHERE id = $1 AND workspace_id = $2`
	return scanDataSource(ds.db.QueryRowContext(ctx, query, id, workspaceID))
}

func (ds *Datastore) Exists(ctx context.Context, workspaceID, id uuid.UUID) (bool, error) {
	var exists bool
	err := ds.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM data_sources WHERE id = $1 AND workspace_id = $2)`,
		id, workspaceID,
	).Scan(&exists)
	return exists, err
}

func (ds *Datastore) Create(ctx context.Context, d *DataSource) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	now := time.Now()
	query := `
		INSERT INTO data_sources (` + dataSourceColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`
	return ds.db.QueryRowContext(ctx, query,
		d.ID, d.WorkspaceID, d.ConnectionID, d.Name, d.SourceType, d.SourceIdentifier,
		d.IsActive, d.CreatedBy, now, now,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
}

// Update writes the mutable fields and reports how many rows matched.
func (ds *Datastore) Update(ctx context.Context, d *DataSource) (int64, error) {
	query := `
		UPDATE data_sources
		SET name = $3, source_identifier = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`
	result, err := ds.db.ExecContext(ctx, query, d.ID, d.WorkspaceID, d.Name, d.SourceIdentifier, d.IsActive)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (ds *Datastore) Delete(ctx context.Context, workspaceID, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM data_sources WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataSource(row scanner) (*DataSource, error) {
	d := &DataSource{}
	err := row.Scan(
		&d.ID, &d.WorkspaceID, &d.ConnectionID, &d.Name, &d.SourceType, &d.SourceIdentifier,
		&d.IsActive, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
