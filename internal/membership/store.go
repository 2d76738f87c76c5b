// Package membership stores who belongs to which workspace and with what role.
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
	"vizspace/internal/database"
	"vizspace/internal/isolation"
	"vizspace/internal/role"
)

const (
	constraintPair   = "workspace_members_workspace_id_user_id_key"
	constraintUserFK = "workspace_members_user_id_fkey"
)

var (
	ErrAlreadyMember = apperr.Conflict("user is already a member of this workspace")
	ErrNotMember     = apperr.NotFound("user is not a member of this workspace")
	ErrUnknownUser   = apperr.NotFound("user not found")
)

// Member is one (workspace, user, role) row.
type Member struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Role        role.Role
	InvitedBy   uuid.NullUUID
	JoinedAt    time.Time
}

func (m *Member) TenantID() uuid.UUID { return m.WorkspaceID }

// MemberDetail is a member joined with the user's public fields.
type MemberDetail struct {
	Member
	Username string
	Email    string
}

// UserWorkspace is a workspace seen from one member.
type UserWorkspace struct {
	WorkspaceID uuid.UUID
	Name        string
	Slug        string
	CreatedBy   uuid.UUID
	Role        role.Role
	JoinedAt    time.Time
}

// Store reads and writes memberships. db may be a transaction.
type Store struct {
	db    database.DBTX
	guard *isolation.Guard
}

func NewStore(db database.DBTX, guard *isolation.Guard) *Store {
	return &Store{db: db, guard: guard}
}

// RoleOf returns the user's role in the workspace; ok is false for non-members.
func (s *Store) RoleOf(ctx context.Context, workspaceID, userID uuid.UUID) (role.Role, bool, error) {
	query := `SELECT role FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`

	var r role.Role
	err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(&r)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get member role: %w", err)
	}
	return r, true, nil
}

// Add inserts a membership. An existing pair is reported by the unique
// constraint as ErrAlreadyMember, a missing user by its foreign key as
// ErrUnknownUser.
func (s *Store) Add(ctx context.Context, m *Member) error {
	if !m.Role.Valid() {
		return role.ErrInvalidRole
	}
	if err := s.guard.BeforeCreate(m); err != nil {
		return err
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}

	query := `
		INSERT INTO workspace_members (id, workspace_id, user_id, role, invited_by, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING joined_at`

	err := s.db.QueryRowContext(ctx, query,
		m.ID, m.WorkspaceID, m.UserID, m.Role, m.InvitedBy, time.Now(),
	).Scan(&m.JoinedAt)
	if err != nil {
		if database.IsUniqueViolation(err, constraintPair) {
			return ErrAlreadyMember
		}
		if database.IsForeignKeyViolation(err, constraintUserFK) {
			return ErrUnknownUser
		}
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// SetRole changes a member's role.
func (s *Store) SetRole(ctx context.Context, workspaceID, userID uuid.UUID, r role.Role) error {
	if !r.Valid() {
		return role.ErrInvalidRole
	}

	query := `UPDATE workspace_members SET role = $3 WHERE workspace_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, workspaceID, userID, r)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}
	return requireRow(result)
}

// Remove deletes a membership together with the user's grants on the
// workspace's connections, in one statement.
func (s *Store) Remove(ctx context.Context, workspaceID, userID uuid.UUID) error {
	query := `
		WITH removed AS (
			DELETE FROM workspace_members
			WHERE workspace_id = $1 AND user_id = $2
			RETURNING user_id
		), revoked AS (
			DELETE FROM connection_permissions p
			USING connections c, removed r
			WHERE p.connection_id = c.id AND c.workspace_id = $1 AND p.user_id = r.user_id
		)
		SELECT COUNT(*) FROM removed`

	var n int
	if err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(&n); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if n == 0 {
		return ErrNotMember
	}
	return nil
}

// ListMembers returns the workspace's members in join order.
func (s *Store) ListMembers(ctx context.Context, workspaceID uuid.UUID) ([]*MemberDetail, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.invited_by, m.joined_at, u.username, u.email
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at`

	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*MemberDetail
	for rows.Next() {
		m := &MemberDetail{}
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role, &m.InvitedBy, &m.JoinedAt, &m.Username, &m.Email); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListWorkspacesOf returns every workspace the user belongs to.
func (s *Store) ListWorkspacesOf(ctx context.Context, userID uuid.UUID) ([]*UserWorkspace, error) {
	query := `
		SELECT w.id, w.name, w.slug, w.created_by, m.role, m.joined_at
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
		ORDER BY m.joined_at`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*UserWorkspace
	for rows.Next() {
		w := &UserWorkspace{}
		if err := rows.Scan(&w.WorkspaceID, &w.Name, &w.Slug, &w.CreatedBy, &w.Role, &w.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Count returns the number of members in the workspace.
func (s *Store) Count(ctx context.Context, workspaceID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workspace_members WHERE workspace_id = $1`, workspaceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return n, nil
}

// HasMemberWithEmail reports whether a user with the email already belongs to the workspace.
func (s *Store) HasMemberWithEmail(ctx context.Context, workspaceID uuid.UUID, email string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM workspace_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.workspace_id = $1 AND LOWER(u.email) = LOWER($2)
		)`

	var exists bool
	if err := s.db.QueryRowContext(ctx, query, workspaceID, email).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

func requireRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotMember
	}
	return nil
}
