package chart

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type is the visual form of a chart.
type Type string

const (
	TypeBar     Type = "bar"
	TypeLine    Type = "line"
	TypePie     Type = "pie"
	TypeScatter Type = "scatter"
	TypeArea    Type = "area"
)

func (t Type) Valid() bool {
	switch t {
	case TypeBar, TypeLine, TypePie, TypeScatter, TypeArea:
		return true
	}
	return false
}

// Chart is a saved visualization, optionally bound to a data source of the
// same workspace.
type Chart struct {
	ID           uuid.UUID
	WorkspaceID  uuid.UUID
	DataSourceID uuid.NullUUID
	Name         string
	Description  string
	ChartType    Type
	Config       json.RawMessage
	Query        string
	CreatedBy    uuid.UUID
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c *Chart) TenantID() uuid.UUID { return c.WorkspaceID }
