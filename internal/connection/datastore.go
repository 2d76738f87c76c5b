package connection

import (
	"context"
	"time"

	"vizspace/internal/database"
	"vizspace/internal/role"

	"github.com/google/uuid"
)

const connectionColumns = `id, workspace_id, name, connection_type,
	config_ciphertext, config_nonce, config_wrapped_key, config_key_nonce,
	is_active, created_by, created_at, updated_at`

const constraintName = "connections_workspace_id_name_key"

// Datastore handles database operations for connections and their grants.
// Every connection query is filtered by workspace.
type Datastore struct {
	db database.DBTX
}

func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// Create inserts c. The caller assigns c.ID so the config can be sealed first.
func (ds *Datastore) Create(ctx context.Context, c *Connection) error {
	now := time.Now()
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		c.ID, c.WorkspaceID, c.Name, c.Type,
		c.Sealed.Ciphertext, c.Sealed.Nonce, c.Sealed.WrappedKey, c.Sealed.KeyNonce,
		c.IsActive, c.CreatedBy, now, now,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// Get returns sql.ErrNoRows when the connection is absent from the workspace.
func (ds *Datastore) Get(ctx context.Context, workspaceID, id uuid.UUID) (*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1 AND workspace_id = $2`
	return scanConnection(ds.db.QueryRowContext(ctx, query, id, workspaceID))
}

// ListAll returns every connection in the workspace.
func (ds *Datastore) ListAll(ctx context.Context, workspaceID uuid.UUID) ([]*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections
		WHERE workspace_id = $1
		ORDER BY updated_at DESC`
	return ds.list(ctx, query, workspaceID)
}

// ListVisible returns connections the user created or holds a grant on.
func (ds *Datastore) ListVisible(ctx context.Context, workspaceID, userID uuid.UUID) ([]*Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections c
		WHERE c.workspace_id = $1
		  AND (c.created_by = $2 OR EXISTS (
			SELECT 1 FROM connection_permissions p
			WHERE p.connection_id = c.id AND p.user_id = $2))
		ORDER BY c.updated_at DESC`
	return ds.list(ctx, query, workspaceID, userID)
}

func (ds *Datastore) list(ctx context.Context, query string, args ...any) ([]*Connection, error) {
	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Update writes the mutable columns of c within its workspace.
func (ds *Datastore) Update(ctx context.Context, c *Connection) (int64, error) {
	query := `
		UPDATE connections
		SET name = $3, config_ciphertext = $4, config_nonce = $5,
		    config_wrapped_key = $6, config_key_nonce = $7, is_active = $8, updated_at = NOW()
		WHERE id = $1 AND workspace_id = $2`
	result, err := ds.db.ExecContext(ctx, query,
		c.ID, c.WorkspaceID, c.Name,
		c.Sealed.Ciphertext, c.Sealed.Nonce, c.Sealed.WrappedKey, c.Sealed.KeyNonce,
		c.IsActive,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (ds *Datastore) Delete(ctx context.Context, workspaceID, id uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GrantLevel returns sql.ErrNoRows when the user has no grant.
func (ds *Datastore) GrantLevel(ctx context.Context, connectionID, userID uuid.UUID) (role.ConnectionLevel, error) {
	var level role.ConnectionLevel
	err := ds.db.QueryRowContext(ctx,
		`SELECT level FROM connection_permissions WHERE connection_id = $1 AND user_id = $2`,
		connectionID, userID,
	).Scan(&level)
	return level, err
}

func (ds *Datastore) ListGrants(ctx context.Context, connectionID uuid.UUID) ([]*GrantDetail, error) {
	query := `
		SELECT p.id, p.connection_id, p.user_id, p.level, p.granted_by, p.granted_at, u.username, u.email
		FROM connection_permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.connection_id = $1
		ORDER BY p.granted_at`

	rows, err := ds.db.QueryContext(ctx, query, connectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GrantDetail
	for rows.Next() {
		g := &GrantDetail{}
		if err := rows.Scan(
			&g.ID, &g.ConnectionID, &g.UserID, &g.Level, &g.GrantedBy, &g.GrantedAt,
			&g.Username, &g.Email,
		); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// UpsertGrant creates the grant or replaces its level and grantor.
func (ds *Datastore) UpsertGrant(ctx context.Context, g *Grant) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	query := `
		INSERT INTO connection_permissions (id, connection_id, user_id, level, granted_by, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (connection_id, user_id)
		DO UPDATE SET level = EXCLUDED.level, granted_by = EXCLUDED.granted_by, granted_at = EXCLUDED.granted_at
		RETURNING id, granted_at`

	return ds.db.QueryRowContext(ctx, query,
		g.ID, g.ConnectionID, g.UserID, g.Level, g.GrantedBy, time.Now(),
	).Scan(&g.ID, &g.GrantedAt)
}

func (ds *Datastore) DeleteGrant(ctx context.Context, connectionID, userID uuid.UUID) (int64, error) {
	result, err := ds.db.ExecContext(ctx,
		`DELETE FROM connection_permissions WHERE connection_id = $1 AND user_id = $2`,
		connectionID, userID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*Connection, error) {
	c := &Connection{}
	err := row.Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &c.Type,
		&c.Sealed.Ciphertext, &c.Sealed.Nonce, &c.Sealed.WrappedKey, &c.Sealed.KeyNonce,
		&c.IsActive, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
