package chart

import (
	"context"
	"time"

	"vizspace/internal/database"

	"github.com/google/uuid"
)

const chartColumns = `id, workspace_id, data_source_id, name, description, chart_type, config, query,
	created_by, created_at, updated_at`

// Datastore handles database operations for charts.
type Datastore struct {
	db database.DBTX
}

func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

func (ds *Datastore) List(ctx context.Context, workspaceID uuid.UUID) ([]*Chart, error) {
	query := `SELECT ` + chartColumns + ` FROM charts WHERE workspace_id = $1 ORDER BY updated_at DESC`
	rows, err := ds.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Chart
	for rows.Next() {
		c, err := scanChart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get returns sql.ErrNoRows when the chart is absent from the workspace.
func (ds *Datastore) Get(ctx context.Context, workspaceID, id uuid.UUID) (*Chart, error) {
	query := `SELECT ` + chartColumns + ` FROM charts WHERE id = $1 AND workspace_id = $2`
	return scanChart(ds.db.QueryRowContext(ctx, query, id, workspaceID))
}

func (ds *Datastore) Create(ctx context.Context, c *Chart) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now()
	query := `
		INSERT INTO charts (id, workspace_id, data_source_id, name, description, chart_type, config, query,
		                    created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`
	return ds.db.QueryRowContext(ctx, query,
		c.ID, c.WorkspaceID, c.DataSourceID, c.Name, c.Description, c.ChartType, []byte(c.Config), c.Query,
		c.CreatedBy, now, now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// Update writes the mutable fields and reports how many rows matched.
func (ds *Datastore) Update(ctx context.Context, c *Chart) (int64, error) {
	query := `
		UPDATE charts
		SET data_source_id = $3, name = $4, description = $5, chart_type = $6, config = $7, query = $8,
		    updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`
	result, err := ds.db.ExecContext(ctx, query,
		c.ID, c.WorkspaceID, c.DataSourceID, c.Name, c.Description, c.ChartType, []byte(c.Config), c.Query,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (ds *Datastore) Delete(ctx context.Context, workspaceID, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM charts WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanChart(row scanner) (*Chart, error) {
	c := &Chart{}
	var cfg []byte
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.DataSourceID, &c.Name, &c.Description, &c.ChartType, &cfg, &c.Query,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Config = cfg
	return c, nil
}
