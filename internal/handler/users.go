package handler

import (
	"net/http"
	"strconv"
	"time"

	"vizspace/internal/apperr"
	"vizspace/internal/auth"
	"vizspace/internal/membership"
	"vizspace/internal/role"
	"vizspace/internal/user"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	errInvalidActiveFilter = apperr.Validation("is_active must be true or false")
	errDeactivateSelf      = apperr.Validation("cannot deactivate yourself")
	errModifyOwnStatus     = apperr.Validation("cannot modify your own active status")
)

// UserHandler serves user administration. System administrators see and
// manage every account; other users only their own.
type UserHandler struct {
	users   *user.Manager
	members *membership.Store
	admins  user.Admins
	logger  *logrus.Logger
}

func NewUserHandler(users *user.Manager, members *membership.Store, admins user.Admins, logger *logrus.Logger) *UserHandler {
	return &UserHandler{users: users, members: members, admins: admins, logger: logger}
}

type userListItem struct {
	userResponse
	WorkspaceCount int `json:"workspace_count"`
}

type userMembershipResponse struct {
	WorkspaceID   string    `json:"workspace_id"`
	WorkspaceName string    `json:"workspace_name"`
	Role          role.Role `json:"role"`
	JoinedAt      time.Time `json:"joined_at"`
}

type userDetailResponse struct {
	userResponse
	Workspaces []userMembershipResponse `json:"workspaces"`
}

// List handles GET /api/users
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}

	in := user.ListInput{
		Page:     queryInt(r, "page", 1),
		PageSize: queryInt(r, "page_size", user.DefaultPageSize),
		Search:   r.URL.Query().Get("search"),
	}
	if v := r.URL.Query().Get("is_active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, h.logger, errInvalidActiveFilter)
			return
		}
		in.IsActive = &active
	}

	page, err := h.users.List(r.Context(), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]userListItem, len(page.Users))
	for i, item := range page.Users {
		out[i] = userListItem{userResponse: toUserResponse(&item.User), WorkspaceCount: item.WorkspaceCount}
	}
	h.logger.WithFields(logrus.Fields{"admin_id": p.UserID, "total": page.Total}).Debug("users listed")
	writeJSON(w, http.StatusOK, map[string]any{
		"users":       out,
		"total":       page.Total,
		"page":        page.Page,
		"page_size":   page.PageSize,
		"total_pages": page.TotalPages,
	})
}

// Get handles GET /api/users/{user_id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	target, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetByID(r.Context(), target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	workspaces, err := h.memberships(r, target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userDetailResponse{userResponse: toUserResponse(u), Workspaces: workspaces})
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	IsActive *bool   `json:"is_active"`
}

// Update handles PATCH /api/users/{user_id}. Only administrators change
// is_active, and never their own.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	target, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if req.IsActive != nil {
		if !h.admins.Contains(p.Email) {
			writeInsufficientPermissions(w)
			return
		}
		if target == p.UserID {
			writeError(w, h.logger, errModifyOwnStatus)
			return
		}
	}

	u, err := h.users.Update(r.Context(), target, user.UpdateInput{Email: req.Email, IsActive: req.IsActive})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

// Deactivate handles DELETE /api/users/{user_id}. Accounts are never
// removed, only disabled.
func (h *UserHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if target == p.UserID {
		writeError(w, h.logger, errDeactivateSelf)
		return
	}

	if err := h.users.Deactivate(r.Context(), target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"admin_id": p.UserID, "user_id": target}).Info("user deactivated")
	w.WriteHeader(http.StatusNoContent)
}

// Workspaces handles GET /api/users/{user_id}/workspaces
func (h *UserHandler) Workspaces(w http.ResponseWriter, r *http.Request) {
	target, ok := h.selfOrAdmin(w, r)
	if !ok {
		return
	}
	workspaces, err := h.memberships(r, target)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, workspaces)
}

type resetPasswordRequest struct {
	NewPassword string `json:"new_password" validate:"required,min=6,max=72"`
}

// ResetPassword handles POST /api/users/{user_id}/reset-password
func (h *UserHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	p, ok := h.requireAdmin(w, r)
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.ResetPassword(r.Context(), target, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{"admin_id": p.UserID, "user_id": target}).Info("password reset by admin")
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) memberships(r *http.Request, userID uuid.UUID) ([]userMembershipResponse, error) {
	mine, err := h.members.ListWorkspacesOf(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	out := make([]userMembershipResponse, len(mine))
	for i, uw := range mine {
		out[i] = userMembershipResponse{
			WorkspaceID:   uw.WorkspaceID.String(),
			WorkspaceName: uw.Name,
			Role:          uw.Role,
			JoinedAt:      uw.JoinedAt,
		}
	}
	return out, nil
}

func (h *UserHandler) requireAdmin(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := principalOf(w, r)
	if !ok {
		return nil, false
	}
	if !h.admins.Contains(p.Email) {
		writeInsufficientPermissions(w)
		return nil, false
	}
	return p, true
}

// selfOrAdmin returns the {user_id} path value when the caller is that user
// or a system administrator.
func (h *UserHandler) selfOrAdmin(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := principalOf(w, r)
	if !ok {
		return uuid.Nil, false
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return uuid.Nil, false
	}
	if target != p.UserID && !h.admins.Contains(p.Email) {
		writeInsufficientPermissions(w)
		return uuid.Nil, false
	}
	return target, true
}

func writeInsufficientPermissions(w http.ResponseWriter) {
	auth.WriteJSONError(w, http.StatusForbidden, "insufficient permissions", "permission_error")
}
