package handler

import (
	"net/http"
	"time"

	"vizspace/internal/apperr"
	"vizspace/internal/auth"
	"vizspace/internal/invitation"
	"vizspace/internal/membership"
	"vizspace/internal/permission"
	"vizspace/internal/role"
	"vizspace/internal/tenant"
	"vizspace/internal/user"
	"vizspace/internal/workspace"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	errRemoveSelf    = apperr.Validation("cannot remove yourself from the workspace")
	errRemoveCreator = apperr.Validation("cannot remove the workspace creator")
)

// MemberHandler handles membership listing, invitations and role changes.
type MemberHandler struct {
	workspaces  *workspace.Manager
	members     *membership.Store
	users       *user.Manager
	invitations *invitation.Service
	mailer      invitation.Mailer
	frontendURL string
	audit       auditor
	logger      *logrus.Logger
}

func NewMemberHandler(
	workspaces *workspace.Manager,
	members *membership.Store,
	users *user.Manager,
	invitations *invitation.Service,
	mailer invitation.Mailer,
	frontendURL string,
	recorder ActivityRecorder,
	logger *logrus.Logger,
) *MemberHandler {
	return &MemberHandler{
		workspaces:  workspaces,
		members:     members,
		users:       users,
		invitations: invitations,
		mailer:      mailer,
		frontendURL: frontendURL,
		audit:       auditor{store: recorder, logger: logger},
		logger:      logger,
	}
}

type memberResponse struct {
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      role.Role `json:"role"`
	InvitedBy *string   `json:"invited_by"`
	JoinedAt  time.Time `json:"joined_at"`
}

// List handles GET /api/workspaces/{workspace_id}/members
func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	members, err := h.members.ListMembers(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]memberResponse, len(members))
	for i, m := range members {
		out[i] = memberResponse{
			UserID:    m.UserID.String(),
			Username:  m.Username,
			Email:     m.Email,
			Role:      m.Role,
			InvitedBy: nullableID(m.InvitedBy),
			JoinedAt:  m.JoinedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": out, "count": len(out)})
}

type inviteRequest struct {
	Email string    `json:"email" validate:"required,email"`
	Role  role.Role `json:"role" validate:"required,oneof=admin editor viewer"`
}

type inviteResponse struct {
	Token     string    `json:"token"`
	Link      string    `json:"link"`
	Email     string    `json:"email"`
	Role      role.Role `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Invite handles POST /api/workspaces/{workspace_id}/invite
func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	exists, err := h.members.HasMemberWithEmail(r.Context(), scope.WorkspaceID, req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if exists {
		writeError(w, h.logger, membership.ErrAlreadyMember)
		return
	}

	ws, err := h.workspaces.GetByID(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	inv, err := h.invitations.Issue(scope.WorkspaceID, req.Email, req.Role, scope.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	link := invitation.Link(h.frontendURL, inv.Token)
	if err := h.mailer.SendInvitation(r.Context(), inv.Claims.Email, ws.Name, link); err != nil {
		h.logger.WithError(err).Warn("failed to deliver invitation")
	}

	h.audit.record(r, scope, "member.invite", "invitation", uuid.Nil, map[string]any{
		"email": inv.Claims.Email,
		"role":  inv.Claims.Role,
	})
	writeJSON(w, http.StatusCreated, inviteResponse{
		Token:     inv.Token,
		Link:      link,
		Email:     inv.Claims.Email,
		Role:      inv.Claims.Role,
		ExpiresAt: inv.ExpiresAt,
	})
}

type acceptInvitationRequest struct {
	Token string `json:"token" validate:"required"`
}

// AcceptInvitation handles POST /api/workspaces/accept-invitation
func (h *MemberHandler) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	var req acceptInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.invitations.Redeem(r.Context(), req.Token, p.UserID, p.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.SetDefaultWorkspaceIfUnset(r.Context(), p.UserID, res.WorkspaceID); err != nil {
		h.logger.WithError(err).Warn("failed to set default workspace")
	}

	scope := tenant.Scope{WorkspaceID: res.WorkspaceID, UserID: p.UserID, Role: res.Role}
	h.audit.record(r, scope, "member.join", "user", p.UserID, map[string]any{"role": res.Role})
	writeJSON(w, http.StatusOK, res)
}

// Remove handles DELETE /api/workspaces/{workspace_id}/members/{user_id}
func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if target == scope.UserID {
		writeError(w, h.logger, errRemoveSelf)
		return
	}

	ws, err := h.workspaces.GetByID(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if ws.CreatedBy == target {
		writeError(w, h.logger, errRemoveCreator)
		return
	}

	if err := h.members.Remove(r.Context(), scope.WorkspaceID, target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "member.remove", "user", target, nil)
	w.WriteHeader(http.StatusNoContent)
}

type changeRoleRequest struct {
	Role role.Role `json:"role" validate:"required,oneof=admin editor viewer"`
}

// ChangeRole handles PATCH /api/workspaces/{workspace_id}/members/{user_id}/role
func (h *MemberHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req changeRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if target == scope.UserID || !permission.CanAssignRole(scope.Role, req.Role) {
		writeCannotModifyRole(w)
		return
	}

	current, member, err := h.members.RoleOf(r.Context(), scope.WorkspaceID, target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !member {
		writeError(w, h.logger, membership.ErrNotMember)
		return
	}

	ws, err := h.workspaces.GetByID(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if ws.CreatedBy == target && req.Role.Level() < role.Admin.Level() {
		writeCannotModifyRole(w)
		return
	}

	if err := h.members.SetRole(r.Context(), scope.WorkspaceID, target, req.Role); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "member.change_role", "user", target, map[string]any{
		"from": current,
		"to":   req.Role,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": target.String(),
		"role":    req.Role,
	})
}

// writeCannotModifyRole rejects a role change the caller may not make.
func writeCannotModifyRole(w http.ResponseWriter) {
	auth.WriteJSONError(w, http.StatusForbidden, "cannot modify this member's role", "permission_error")
}
