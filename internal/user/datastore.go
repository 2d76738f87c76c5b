package user

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"vizspace/internal/database"
)

const userColumns = `id, username, email, password_hash, is_active, current_workspace_id, last_login, created_at, updated_at`

// Unique constraints on the users table.
const (
	constraintUsername = "users_username_key"
	constraintEmail    = "users_email_key"
)

// Datastore handles database operations for users.
type Datastore struct {
	db database.DBTX
}

// NewDatastore creates a new user datastore. db may be a transaction.
func NewDatastore(db database.DBTX) *Datastore {
	return &Datastore{db: db}
}

// Create inserts a new user.
func (ds *Datastore) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now()

	query := `
		INSERT INTO users (id, username, email, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`

	return ds.db.QueryRowContext(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, now, now,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
}

// GetByID retrieves a user by ID. Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(ds.db.QueryRowContext(ctx, query, id))
}

// GetByUsername retrieves a user by username. Returns sql.ErrNoRows if not found.
func (ds *Datastore) GetByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	return scanUser(ds.db.QueryRowContext(ctx, query, username))
}

// GetByEmail retrieves a user by email, ignoring case.
func (ds *Datastore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = LOWER($1)`
	return scanUser(ds.db.QueryRowContext(ctx, query, email))
}

// Exists reports whether a user with the given ID exists.
func (ds *Datastore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := ds.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// SetCurrentWorkspace changes the user's default workspace.
func (ds *Datastore) SetCurrentWorkspace(ctx context.Context, id uuid.UUID, workspaceID uuid.NullUUID) (int64, error) {
	query := `UPDATE users SET current_workspace_id = $2, updated_at = NOW() WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetCurrentWorkspaceIfUnset sets the default workspace only when none is set.
func (ds *Datastore) SetCurrentWorkspaceIfUnset(ctx context.Context, id, workspaceID uuid.UUID) (int64, error) {
	query := `
		UPDATE users SET current_workspace_id = $2, updated_at = NOW()
		WHERE id = $1 AND current_workspace_id IS NULL`
	result, err := ds.db.ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// TouchLastLogin records a successful login.
func (ds *Datastore) TouchLastLogin(ctx context.Context, id uuid.UUID) error {
	_, err := ds.db.ExecContext(ctx, `UPDATE users SET last_login = NOW() WHERE id = $1`, id)
	return err
}

// UpdatePassword replaces the stored password digest.
func (ds *Datastore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) (int64, error) {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, passwordHash)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SetActive activates or deactivates a user.
func (ds *Datastore) SetActive(ctx context.Context, id uuid.UUID, active bool) (int64, error) {
	query := `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// UpdateEmail replaces the user's email address.
func (ds *Datastore) UpdateEmail(ctx context.Context, id uuid.UUID, email string) (int64, error) {
	query := `UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1`
	result, err := ds.db.ExecContext(ctx, query, id, email)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListFilter narrows a user listing. An empty Pattern matches everyone.
type ListFilter struct {
	Pattern  string // ILIKE pattern on username or email
	IsActive sql.NullBool
	Limit    int
	Offset   int
}

const listWhere = `
	WHERE ($1 = '' OR username ILIKE $1 OR email ILIKE $1)
	  AND ($2::boolean IS NULL OR is_active = $2)`

// Count returns the number of users matching f, ignoring paging.
func (ds *Datastore) Count(ctx context.Context, f ListFilter) (int, error) {
	var n int
	err := ds.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+listWhere, f.Pattern, f.IsActive).Scan(&n)
	return n, err
}

// List returns one page of users matching f, newest first, with the number
// of workspaces each belongs to.
func (ds *Datastore) List(ctx context.Context, f ListFilter) ([]*ListItem, error) {
	query := `SELECT ` + userColumns + `,
		(SELECT COUNT(*) FROM workspace_members m WHERE m.user_id = users.id) AS workspace_count
		FROM users` + listWhere + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := ds.db.QueryContext(ctx, query, f.Pattern, f.IsActive, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ListItem
	for rows.Next() {
		item := &ListItem{}
		u := &item.User
		err := rows.Scan(
			&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive,
			&u.CurrentWorkspaceID, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
			&item.WorkspaceCount,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanUser(row *sql.Row) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive,
		&u.CurrentWorkspaceID, &u.LastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
