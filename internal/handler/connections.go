package handler

import (
	"net/http"
	"time"

	"vizspace/internal/connection"
	"vizspace/internal/role"

	"github.com/sirupsen/logrus"
)

// ConnectionHandler handles connections and their per-user grants.
type ConnectionHandler struct {
	connections *connection.Manager
	audit       auditor
	logger      *logrus.Logger
}

func NewConnectionHandler(connections *connection.Manager, recorder ActivityRecorder, logger *logrus.Logger) *ConnectionHandler {
	return &ConnectionHandler{
		connections: connections,
		audit:       auditor{store: recorder, logger: logger},
		logger:      logger,
	}
}

// connectionResponse carries the decrypted config only on single reads and writes.
type connectionResponse struct {
	ID          string          `json:"id"`
	WorkspaceID string          `json:"workspace_id"`
	Name        string          `json:"name"`
	Type        connection.Type `json:"type"`
	Config      map[string]any  `json:"config,omitempty"`
	IsActive    bool            `json:"is_active"`
	CreatedBy   string          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toConnectionResponse(c *connection.Connection, cfg map[string]any) connectionResponse {
	return connectionResponse{
		ID:          c.ID.String(),
		WorkspaceID: c.WorkspaceID.String(),
		Name:        c.Name,
		Type:        c.Type,
		Config:      cfg,
		IsActive:    c.IsActive,
		CreatedBy:   c.CreatedBy.String(),
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

func (h *ConnectionHandler) withConfig(w http.ResponseWriter, c *connection.Connection, status int) {
	cfg, err := h.connections.Config(c)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, status, toConnectionResponse(c, cfg))
}

// List handles GET /api/connections
func (h *ConnectionHandler) List(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	conns, err := h.connections.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]connectionResponse, len(conns))
	for i, c := range conns {
		out[i] = toConnectionResponse(c, nil)
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": out, "count": len(out)})
}

// Get handles GET /api/connections/{id}
func (h *ConnectionHandler) Get(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.connections.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.withConfig(w, c, http.StatusOK)
}

type createConnectionRequest struct {
	Name   string          `json:"name" validate:"required,max=100"`
	Type   connection.Type `json:"type" validate:"required"`
	Config map[string]any  `json:"config" validate:"required"`
}

// Create handles POST /api/connections
func (h *ConnectionHandler) Create(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req createConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.connections.Create(r.Context(), scope, connection.CreateInput{
		Name:   req.Name,
		Type:   req.Type,
		Config: req.Config,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "connection.create", "connection", c.ID, map[string]any{"type": c.Type})
	h.withConfig(w, c, http.StatusCreated)
}

type updateConnectionRequest struct {
	Name     *string        `json:"name" validate:"omitempty,max=100"`
	Config   map[string]any `json:"config"`
	IsActive *bool          `json:"is_active"`
}

// Update handles PUT /api/connections/{id}
func (h *ConnectionHandler) Update(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateConnectionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	c, err := h.connections.Update(r.Context(), scope, id, connection.UpdateInput{
		Name:     req.Name,
		Config:   req.Config,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "connection.update", "connection", c.ID, nil)
	h.withConfig(w, c, http.StatusOK)
}

// Delete handles DELETE /api/connections/{id}
func (h *ConnectionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.connections.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "connection.delete", "connection", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type grantResponse struct {
	UserID    string               `json:"user_id"`
	Username  string               `json:"username,omitempty"`
	Email     string               `json:"email,omitempty"`
	Level     role.ConnectionLevel `json:"permission_level"`
	GrantedBy *string              `json:"granted_by"`
	GrantedAt time.Time            `json:"granted_at"`
}

// ListGrants handles GET /api/connections/{id}/permissions
func (h *ConnectionHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	grants, err := h.connections.ListGrants(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]grantResponse, len(grants))
	for i, g := range grants {
		out[i] = grantResponse{
			UserID:    g.UserID.String(),
			Username:  g.Username,
			Email:     g.Email,
			Level:     g.Level,
			GrantedBy: nullableID(g.GrantedBy),
			GrantedAt: g.GrantedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"permissions": out, "count": len(out)})
}

type setGrantRequest struct {
	Level string `json:"permission_level" validate:"required"`
}

// SetGrant handles PUT /api/connections/{id}/permissions/{user_id}
func (h *ConnectionHandler) SetGrant(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req setGrantRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	level, err := role.ParseConnectionLevel(req.Level)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	g, err := h.connections.SetGrant(r.Context(), scope, id, target, level)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "connection.grant", "connection", id, map[string]any{
		"user_id": target,
		"level":   level,
	})
	writeJSON(w, http.StatusOK, grantResponse{
		UserID:    g.UserID.String(),
		Level:     g.Level,
		GrantedBy: nullableID(g.GrantedBy),
		GrantedAt: g.GrantedAt,
	})
}

// RevokeGrant handles DELETE /api/connections/{id}/permissions/{user_id}
func (h *ConnectionHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	target, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if err := h.connections.RevokeGrant(r.Context(), scope, id, target); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "connection.revoke", "connection", id, map[string]any{"user_id": target})
	w.WriteHeader(http.StatusNoContent)
}
