package middleware

import (
	"context"
	"net/http"

	"vizspace/internal/apperr"
	"vizspace/internal/auth"
	"vizspace/internal/permission"
	"vizspace/internal/role"
	"vizspace/internal/tenant"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RoleResolver looks up a user's role in a workspace.
type RoleResolver interface {
	RoleOf(ctx context.Context, userID, workspaceID uuid.UUID) (role.Role, bool, error)
}

// WorkspaceGuard scopes requests to a workspace and enforces the minimum role
// for an action before the handler runs.
type WorkspaceGuard struct {
	roles   RoleResolver
	metrics *Metrics
	logger  *logrus.Logger
}

// NewWorkspaceGuard creates a guard. metrics may be nil.
func NewWorkspaceGuard(roles RoleResolver, metrics *Metrics, logger *logrus.Logger) *WorkspaceGuard {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WorkspaceGuard{roles: roles, metrics: metrics, logger: logger}
}

// Require wraps next so it only runs for members holding at least the role
// required by action. It must sit behind RequireAuth. Non-members and members
// with too low a role get the same 404.
func (g *WorkspaceGuard) Require(action permission.Action, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok {
			auth.WriteUnauthorized(w)
			return
		}

		workspaceID, err := tenant.ResolveRequest(r, p.CurrentWorkspaceID)
		if err != nil {
			auth.WriteJSONError(w, http.StatusBadRequest, apperr.Message(err), "invalid_request_error")
			return
		}

		held, member, err := g.roles.RoleOf(r.Context(), p.UserID, workspaceID)
		if err != nil {
			g.logger.WithError(err).WithField("workspace_id", workspaceID).Error("failed to resolve workspace role")
			auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", "server_error")
			return
		}
		if !member || !permission.Allows(held, action) {
			g.metrics.denied(action)
			g.logger.WithFields(logrus.Fields{
				"user_id":      p.UserID,
				"workspace_id": workspaceID,
				"action":       action,
			}).Debug("workspace access denied")
			WriteNotFound(w)
			return
		}

		scope := tenant.Scope{WorkspaceID: workspaceID, UserID: p.UserID, Role: held}
		next.ServeHTTP(w, r.WithContext(tenant.WithScope(r.Context(), scope)))
	})
}

// WriteNotFound writes the uniform response for missing or inaccessible resources.
func WriteNotFound(w http.ResponseWriter) {
	auth.WriteJSONError(w, http.StatusNotFound, "resource not found", "not_found_error")
}
