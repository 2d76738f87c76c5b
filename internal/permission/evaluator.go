// Package permission answers access questions. Every answer is a boolean;
// callers turn a denial into not-found.
package permission

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vizspace/internal/role"
)

// MembershipReader looks up a user's workspace role.
type MembershipReader interface {
	RoleOf(ctx context.Context, workspaceID, userID uuid.UUID) (role.Role, bool, error)
}

// GrantReader looks up explicit connection grants.
type GrantReader interface {
	GrantLevel(ctx context.Context, connectionID, userID uuid.UUID) (role.ConnectionLevel, bool, error)
}

// Resource is a workspace-scoped row with a creator.
type Resource struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	CreatedBy   uuid.UUID
}

// Evaluator combines workspace roles, resource ownership and connection grants.
type Evaluator struct {
	members MembershipReader
	grants  GrantReader
}

func NewEvaluator(members MembershipReader, grants GrantReader) *Evaluator {
	return &Evaluator{members: members, grants: grants}
}

// RoleOf returns the user's role; ok is false for non-members.
func (e *Evaluator) RoleOf(ctx context.Context, userID, workspaceID uuid.UUID) (role.Role, bool, error) {
	return e.members.RoleOf(ctx, workspaceID, userID)
}

// HasWorkspaceAccess reports whether the user holds at least the required role.
func (e *Evaluator) HasWorkspaceAccess(ctx context.Context, userID, workspaceID uuid.UUID, required role.Role) (bool, error) {
	held, ok, err := e.members.RoleOf(ctx, workspaceID, userID)
	if err != nil || !ok {
		return false, err
	}
	return role.Satisfies(held, required), nil
}

func (e *Evaluator) IsAdmin(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	return e.HasWorkspaceAccess(ctx, userID, workspaceID, role.Admin)
}

func (e *Evaluator) IsEditorOrAbove(ctx context.Context, userID, workspaceID uuid.UUID) (bool, error) {
	return e.HasWorkspaceAccess(ctx, userID, workspaceID, role.Editor)
}

// HasConnectionAccess checks, in order: creator, workspace admin, explicit
// grant at or above the required level.
func (e *Evaluator) HasConnectionAccess(ctx context.Context, userID uuid.UUID, conn Resource, required role.ConnectionLevel) (bool, error) {
	if conn.CreatedBy == userID {
		return true, nil
	}
	held, _, err := e.members.RoleOf(ctx, conn.WorkspaceID, userID)
	if err != nil {
		return false, err
	}
	return e.ConnectionAccessWithRole(ctx, userID, held, conn, required)
}

// ConnectionAccessWithRole is HasConnectionAccess for a caller whose workspace
// role is already known. An empty role means not a member.
func (e *Evaluator) ConnectionAccessWithRole(ctx context.Context, userID uuid.UUID, held role.Role, conn Resource, required role.ConnectionLevel) (bool, error) {
	if conn.CreatedBy == userID {
		return true, nil
	}
	if held == role.Admin {
		return true, nil
	}
	level, ok, err := e.grants.GrantLevel(ctx, conn.ID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get connection grant: %w", err)
	}
	if !ok {
		return false, nil
	}
	return role.GrantSatisfies(level, required), nil
}

// CanManageConnectionPermissions is true for the creator, workspace admins
// and owner grants. Editor-level access never qualifies.
func (e *Evaluator) CanManageConnectionPermissions(ctx context.Context, userID uuid.UUID, conn Resource) (bool, error) {
	if conn.CreatedBy == userID {
		return true, nil
	}
	held, _, err := e.members.RoleOf(ctx, conn.WorkspaceID, userID)
	if err != nil {
		return false, err
	}
	return e.CanManageConnectionPermissionsWithRole(ctx, userID, held, conn)
}

// CanManageConnectionPermissionsWithRole is CanManageConnectionPermissions
// for a caller whose workspace role is already known.
func (e *Evaluator) CanManageConnectionPermissionsWithRole(ctx context.Context, userID uuid.UUID, held role.Role, conn Resource) (bool, error) {
	if conn.CreatedBy == userID || held == role.Admin {
		return true, nil
	}
	level, ok, err := e.grants.GrantLevel(ctx, conn.ID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get connection grant: %w", err)
	}
	return ok && level == role.ConnectionOwner, nil
}

// CanModifyMemberRole applies the role change rules: never your own role,
// only admins, never above your own level.
func (e *Evaluator) CanModifyMemberRole(ctx context.Context, actorID, targetID, workspaceID uuid.UUID, newRole role.Role) (bool, error) {
	if actorID == targetID {
		return false, nil
	}
	held, ok, err := e.members.RoleOf(ctx, workspaceID, actorID)
	if err != nil || !ok {
		return false, err
	}
	return CanAssignRole(held, newRole), nil
}

// CanModifyResource is the dashboard, chart and data source rule: at least
// editor, then admin or creator.
func (e *Evaluator) CanModifyResource(ctx context.Context, userID uuid.UUID, res Resource) (bool, error) {
	held, ok, err := e.members.RoleOf(ctx, res.WorkspaceID, userID)
	if err != nil || !ok {
		return false, err
	}
	return CanModifyOwned(held, userID, res.CreatedBy), nil
}

// CanModifyOwned is CanModifyResource for a known role.
func CanModifyOwned(held role.Role, userID, createdBy uuid.UUID) bool {
	if !role.Satisfies(held, role.Editor) {
		return false
	}
	return held == role.Admin || createdBy == userID
}

// CanAssignRole reports whether an actor holding held may hand out newRole.
func CanAssignRole(held, newRole role.Role) bool {
	if held != role.Admin || !newRole.Valid() {
		return false
	}
	return newRole.Level() <= held.Level()
}
