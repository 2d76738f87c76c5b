package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"vizspace/internal/chart"
	"vizspace/internal/datasource"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ChartHandler handles charts and data sources. Both follow the same
// ownership rule and share one audit trail.
type ChartHandler struct {
	charts  *chart.Manager
	sources *datasource.Manager
	audit   auditor
	logger  *logrus.Logger
}

func NewChartHandler(charts *chart.Manager, sources *datasource.Manager, recorder ActivityRecorder, logger *logrus.Logger) *ChartHandler {
	return &ChartHandler{
		charts:  charts,
		sources: sources,
		audit:   auditor{store: recorder, logger: logger},
		logger:  logger,
	}
}

type chartResponse struct {
	ID           string          `json:"id"`
	WorkspaceID  string          `json:"workspace_id"`
	DataSourceID *string         `json:"data_source_id"`
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	ChartType    chart.Type      `json:"chart_type"`
	Config       json.RawMessage `json:"config"`
	Query        string          `json:"query"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toChartResponse(c *chart.Chart) chartResponse {
	return chartResponse{
		ID:           c.ID.String(),
		WorkspaceID:  c.WorkspaceID.String(),
		DataSourceID: nullableID(c.DataSourceID),
		Name:         c.Name,
		Description:  c.Description,
		ChartType:    c.ChartType,
		Config:       c.Config,
		Query:        c.Query,
		CreatedBy:    c.CreatedBy.String(),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// ListCharts handles GET /api/charts
func (h *ChartHandler) ListCharts(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	items, err := h.charts.List(r.Context(), scope)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]chartResponse, len(items))
	for i, c := range items {
		out[i] = toChartResponse(c)
	}
	writeJSON(w, http.StatusOK, map[string]any{"charts": out, "count": len(out)})
}

// GetChart handles GET /api/charts/{id}
func (h *ChartHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	c, err := h.charts.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toChartResponse(c))
}

type createChartRequest struct {
	Name         string          `json:"name" validate:"required,max=100"`
	Description  string          `json:"description" validate:"max=1000"`
	ChartType    chart.Type      `json:"chart_type" validate:"required"`
	Config       json.RawMessage `json:"config"`
	Query        string          `json:"query"`
	DataSourceID *uuid.UUID      `json:"data_source_id"`
}

// CreateChart handles POST /api/charts
func (h *ChartHandler) CreateChart(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req createChartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	in := chart.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		ChartType:   req.ChartType,
		Config:      req.Config,
		Query:       req.Query,
	}
	if req.DataSourceID != nil {
		in.DataSourceID = uuid.NullUUID{UUID: *req.DataSourceID, Valid: true}
	}

	c, err := h.charts.Create(r.Context(), scope, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "chart.create", "chart", c.ID, map[string]any{"chart_type": c.ChartType})
	writeJSON(w, http.StatusCreated, toChartResponse(c))
}

// updateChartRequest distinguishes an absent data_source_id from an explicit
// null, which detaches the chart.
type updateChartRequest struct {
	Name         *string         `json:"name" validate:"omitempty,max=100"`
	Description  *string         `json:"description" validate:"omitempty,max=1000"`
	ChartType    *chart.Type     `json:"chart_type"`
	Config       json.RawMessage `json:"config"`
	Query        *string         `json:"query"`
	DataSourceID json.RawMessage `json:"data_source_id"`
}

// UpdateChart handles PUT /api/charts/{id}
func (h *ChartHandler) UpdateChart(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateChartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	in := chart.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		ChartType:   req.ChartType,
		Config:      req.Config,
		Query:       req.Query,
	}
	if req.DataSourceID != nil {
		var ref uuid.NullUUID
		if string(req.DataSourceID) != "null" {
			if err := json.Unmarshal(req.DataSourceID, &ref.UUID); err != nil {
				writeError(w, h.logger, errInvalidJSON)
				return
			}
			ref.Valid = true
		}
		in.DataSourceID = &ref
	}

	c, err := h.charts.Update(r.Context(), scope, id, in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "chart.update", "chart", c.ID, nil)
	writeJSON(w, http.StatusOK, toChartResponse(c))
}

// DeleteChart handles DELETE /api/charts/{id}
func (h *ChartHandler) DeleteChart(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.charts.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "chart.delete", "chart", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

type dataSourceResponse struct {
	ID               string                `json:"id"`
	WorkspaceID      string                `json:"workspace_id"`
	ConnectionID     string                `json:"connection_id"`
	Name             string                `json:"name"`
	SourceType       datasource.SourceType `json:"source_type"`
	SourceIdentifier string                `json:"source_identifier"`
	IsActive         bool                  `json:"is_active"`
	CreatedBy        string                `json:"created_by"`
	CreatedAt        time.Time             `json:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at"`
}

func toDataSourceResponse(d *datasource.DataSource) dataSourceResponse {
	return dataSourceResponse{
		ID:               d.ID.String(),
		WorkspaceID:      d.WorkspaceID.String(),
		ConnectionID:     d.ConnectionID.String(),
		Name:             d.Name,
		SourceType:       d.SourceType,
		SourceIdentifier: d.SourceIdentifier,
		IsActive:         d.IsActive,
		CreatedBy:        d.CreatedBy.String(),
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

// ListDataSources handles GET /api/data-sources?connection_id=...
func (h *ChartHandler) ListDataSources(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var filter uuid.NullUUID
	if raw := r.URL.Query().Get("connection_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, h.logger, errInvalidConnectionFilter)
			return
		}
		filter = uuid.NullUUID{UUID: id, Valid: true}
	}

	items, err := h.sources.List(r.Context(), scope, filter)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	out := make([]dataSourceResponse, len(items))
	for i, d := range items {
		out[i] = toDataSourceResponse(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"data_sources": out, "count": len(out)})
}

// GetDataSource handles GET /api/data-sources/{id}
func (h *ChartHandler) GetDataSource(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	d, err := h.sources.Get(r.Context(), scope, id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toDataSourceResponse(d))
}

type createDataSourceRequest struct {
	ConnectionID     uuid.UUID             `json:"connection_id" validate:"required"`
	Name             string                `json:"name" validate:"required,max=100"`
	SourceType       datasource.SourceType `json:"source_type" validate:"required,oneof=database folder"`
	SourceIdentifier string                `json:"source_identifier" validate:"required,max=500"`
}

// CreateDataSource handles POST /api/data-sources
func (h *ChartHandler) CreateDataSource(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	var req createDataSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.sources.Create(r.Context(), scope, datasource.CreateInput{
		ConnectionID:     req.ConnectionID,
		Name:             req.Name,
		SourceType:       req.SourceType,
		SourceIdentifier: req.SourceIdentifier,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "data_source.create", "data_source", d.ID, map[string]any{"connection_id": d.ConnectionID})
	writeJSON(w, http.StatusCreated, toDataSourceResponse(d))
}

type updateDataSourceRequest struct {
	Name             *string `json:"name" validate:"omitempty,max=100"`
	SourceIdentifier *string `json:"source_identifier" validate:"omitempty,max=500"`
	IsActive         *bool   `json:"is_active"`
}

// UpdateDataSource handles PUT /api/data-sources/{id}
func (h *ChartHandler) UpdateDataSource(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req updateDataSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	d, err := h.sources.Update(r.Context(), scope, id, datasource.UpdateInput{
		Name:             req.Name,
		SourceIdentifier: req.SourceIdentifier,
		IsActive:         req.IsActive,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "data_source.update", "data_source", d.ID, nil)
	writeJSON(w, http.StatusOK, toDataSourceResponse(d))
}

// DeleteDataSource handles DELETE /api/data-sources/{id}
func (h *ChartHandler) DeleteDataSource(w http.ResponseWriter, r *http.Request) {
	scope, ok := scopeOf(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.sources.Delete(r.Context(), scope, id); err != nil {
		writeError(w, h.logger, err)
		return
	}
	h.audit.record(r, scope, "data_source.delete", "data_source", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
