package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"vizspace/internal/dashboard"

	"github.com/sirupsen/logrus"
)

// DashboardHandler handles dashboards and public sharing.
type DashboardHandler struct {
	dashboards *dashboard.Manager
	audit      auditor
	logger     *logrus.Logger
}

func NewDashboardHandler(dashboards *dashboard.Manager, recorder ActivityRecorder, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboards: dashboards,
		audit:      auditor{store: recorder, logger: logger},
		logger:     logger,
	}
}

type dashboardResponse struct {
	ID                string          `json:"id"`
	WorkspaceID       string          `json:"workspace_id,omitempty"`
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	Layout            json.RawMessage `json:"layout"`
	IsPublic          bool            `json:"is_public"`
	PublicToken       *string         `json:"public_token,omitempty"`
	PublicExpiresAt   *time.Time      `json:"public_expires_at,omitempty"`
	PublicAccessCount int             `json:"public_access_count"`
	CreatedBy         string          `json:"created_by,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func toDashboardResponse(d *dashboard.Dashboard) dashboardResponse {
	resp := dashboardResponse{
		ID:                d.ID.String(),
		WorkspaceID:       d.WorkspaceID.String(),
		Name:              d.Name,
		Description:       d.Description,
		Layout:            d.Layout,
		IsPublic:          d.IsPublic,
		PublicAccessCount: d.PublicAccessCount,
		CreatedBy:         d.CreatedBy.String(),
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.PublicToken.Valid {
		token := d.PublicToken.String
		resp.PublicToken = &token
	}
	if d.PublicExpiresAt.Valid {
		t := d.PublicExpiresAt.Time
		resp.PublicExpiresAt = &t
	}
	return resp
}

// List handles GET /api/dashboards
func (h *DashboardHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	items, err := h.dashboards.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]dashboardResponse, len(items))
	for i, d := range items {
		out[i] = toDashboardResponse(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"dashboards": out, "count": len(out)})
}

// Get handles GET /api/dashboards/{id}
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.dashboards.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDashboardResponse(d))
}

type createDashboardRequest struct {
	Name        string          `json:"name" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=1000"`
	Layout      json.RawMessage `json:"layout"`
}

// Create handles POST /api/dashboards
func (h *DashboardHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req createDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.dashboards.Create(r.Context(), scope, dashboard.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Layout:      req.Layout,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "dashboard.create", "dashboard", d.ID, nil)
	writeJSON(w, http.StatusCreated, toDashboardResponse(d))
}

type updateDashboardRequest struct {
	Name        *string         `json:"name" validate:"omitempty,max=100"`
	Description *string         `json:"description" validate:"omitempty,max=1000"`
	Layout      json.RawMessage `json:"layout"`
}

// Update handles PUT /api/dashboards/{id}
func (h *DashboardHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateDashboardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.dashboards.Update(r.Context(), scope, id, dashboard.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Layout:      req.Layout,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "dashboard.update", "dashboard", d.ID, nil)
	writeJSON(w, http.StatusOK, toDashboardResponse(d))
}

// Delete handles DELETE /api/dashboards/{id}
func (h *DashboardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.dashboards.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "dashboard.delete", "dashboard", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Share handles POST /api/dashboards/{id}/share?expires_in_days=30
func (h *DashboardHandler) Share(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	days := dashboard.DefaultShareDays
	if r.URL.Query().Has("expires_in_days") {
		// A non-numeric value becomes 0 and is rejected as out of range.
		days = queryInt(r, "expires_in_days", 0)
	}

	d, err := h.dashboards.Share(r.Context(), scope, id, days)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "dashboard.share", "dashboard", d.ID, map[string]any{"expires_in_days": days})
	writeJSON(w, http.StatusOK, toDashboardResponse(d))
}

// Unshare handles DELETE /api/dashboards/{id}/share
func (h *DashboardHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.dashboards.Unshare(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "dashboard.unshare", "dashboard", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// Public handles GET /api/dashboards/public/{token}. No authentication.
func (h *DashboardHandler) Public(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboards.GetPublic(r.Context(), r.PathValue("token"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	resp := toDashboardResponse(d)
	resp.WorkspaceID = ""
	resp.CreatedBy = ""
	resp.PublicToken = nil
	writeJSON(w, http.StatusOK, resp)
}
