package handler

import (
	"net/http"
	"time"

	"vizspace/internal/activity"
	"vizspace/internal/membership"
	"vizspace/internal/role"
	"vizspace/internal/user"
	"vizspace/internal/workspace"

	"github.com/sirupsen/logrus"
)

// WorkspaceHandler handles workspace lifecycle, switching, settings and the
// activity log.
type WorkspaceHandler struct {
	factory    *workspace.Factory
	workspaces *workspace.Manager
	members    *membership.Store
	users      *user.Manager
	activity   *activity.Store
	logger     *logrus.Logger
}

func NewWorkspaceHandler(
	factory *workspace.Factory,
	workspaces *workspace.Manager,
	members *membership.Store,
	users *user.Manager,
	activityStore *activity.Store,
	logger *logrus.Logger,
) *WorkspaceHandler {
	return &WorkspaceHandler{
		factory:    factory,
		workspaces: workspaces,
		members:    members,
		users:      users,
		activity:   activityStore,
		logger:     logger,
	}
}

type workspaceResponse struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Slug      string     `json:"slug"`
	CreatedBy string     `json:"created_by"`
	Role      role.Role  `json:"role,omitempty"`
	JoinedAt  *time.Time `json:"joined_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toWorkspaceResponse(ws *workspace.Workspace) workspaceResponse {
	return workspaceResponse{
		ID:        ws.ID.String(),
		Name:      ws.Name,
		Slug:      ws.Slug,
		CreatedBy: ws.CreatedBy.String(),
		CreatedAt: ws.CreatedAt,
		UpdatedAt: ws.UpdatedAt,
	}
}

type createWorkspaceRequest struct {
	Name     string                       `json:"name" validate:"required,max=100"`
	Slug     string                       `json:"slug" validate:"max=100"`
	Settings *workspace.SettingsOverrides `json:"settings"`
}

// Create handles POST /api/workspaces
func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	var req createWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	created, err := h.factory.Create(r.Context(), workspace.CreateInput{
		Name:      req.Name,
		CreatorID: p.UserID,
		Slug:      req.Slug,
		Settings:  req.Settings,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.users.SetDefaultWorkspaceIfUnset(r.Context(), p.UserID, created.Workspace.ID); err != nil {
		h.logger.WithError(err).Warn("failed to set default workspace")
	}

	resp := toWorkspaceResponse(created.Workspace)
	resp.Role = created.Membership.Role
	resp.JoinedAt = &created.Membership.JoinedAt
	writeJSON(w, http.StatusCreated, resp)
}

// List handles GET /api/workspaces
func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	mine, err := h.members.ListWorkspacesOf(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]workspaceResponse, len(mine))
	for i, uw := range mine {
		joined := uw.JoinedAt
		out[i] = workspaceResponse{
			ID:        uw.WorkspaceID.String(),
			Name:      uw.Name,
			Slug:      uw.Slug,
			CreatedBy: uw.CreatedBy.String(),
			Role:      uw.Role,
			JoinedAt:  &joined,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": out, "count": len(out)})
}

// Get handles GET /api/workspaces/{workspace_id}
func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	ws, err := h.workspaces.GetByID(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := toWorkspaceResponse(ws)
	resp.Role = scope.Role
	writeJSON(w, http.StatusOK, resp)
}

type renameWorkspaceRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// Rename handles PATCH /api/workspaces/{workspace_id}. The slug is kept.
func (h *WorkspaceHandler) Rename(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req renameWorkspaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ws, err := h.workspaces.Rename(r.Context(), scope.WorkspaceID, req.Name)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := toWorkspaceResponse(ws)
	resp.Role = scope.Role
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/workspaces/{workspace_id}. Only the creator
// may delete; other admins get 404.
func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	if err := h.workspaces.Delete(r.Context(), scope.WorkspaceID, scope.UserID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"workspace_id": scope.WorkspaceID,
		"user_id":      scope.UserID,
	}).Info("workspace deleted")
	w.WriteHeader(http.StatusNoContent)
}

// Switch handles POST /api/workspaces/{workspace_id}/switch
func (h *WorkspaceHandler) Switch(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	if err := h.users.SetCurrentWorkspace(r.Context(), scope.UserID, scope.WorkspaceID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"current_workspace_id": scope.WorkspaceID.String(),
		"role":                 scope.Role,
	})
}

// Settings handles GET /api/workspaces/{workspace_id}/settings
func (h *WorkspaceHandler) Settings(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	s, err := h.workspaces.Settings(r.Context(), scope.WorkspaceID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings handles PATCH /api/workspaces/{workspace_id}/settings
func (h *WorkspaceHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req workspace.SettingsOverrides
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	s, err := h.workspaces.UpdateSettings(r.Context(), scope.WorkspaceID, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

type activityResponse struct {
	ID           string    `json:"id"`
	UserID       *string   `json:"user_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *string   `json:"resource_id"`
	Details      any       `json:"details"`
	IPAddress    string    `json:"ip_address"`
	CreatedAt    time.Time `json:"created_at"`
}

// Activity handles GET /api/workspaces/{workspace_id}/activity
func (h *WorkspaceHandler) Activity(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", activity.DefaultLimit)
	offset := queryInt(r, "offset", 0)

	entries, err := h.activity.List(r.Context(), scope.WorkspaceID, limit, offset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	out := make([]activityResponse, len(entries))
	for i, e := range entries {
		out[i] = activityResponse{
			ID:           e.ID.String(),
			UserID:       nullableID(e.UserID),
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   nullableID(e.ResourceID),
			Details:      e.Details,
			IPAddress:    e.IPAddress,
			CreatedAt:    e.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": out, "count": len(out)})
}
