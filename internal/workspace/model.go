package workspace

import (
	"time"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
)

// Workspace is the tenant boundary. The slug never changes after creation.
type Workspace struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Slug      string    `json:"slug"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings are per-workspace limits and integration switches.
type Settings struct {
	WorkspaceID   uuid.UUID `json:"workspace_id"`
	RedisEnabled  bool      `json:"redis_enabled"`
	RedisHost     string    `json:"redis_host"`
	RedisPort     int       `json:"redis_port"`
	MaxDashboards int       `json:"max_dashboards"`
	MaxMembers    int       `json:"max_members"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func (s *Settings) TenantID() uuid.UUID { return s.WorkspaceID }

// Default settings for new workspaces.
const (
	DefaultRedisHost     = "localhost"
	DefaultRedisPort     = 6379
	DefaultMaxDashboards = 1000
	DefaultMaxMembers    = 100
)

// DefaultSettings returns the settings a new workspace starts with.
func DefaultSettings(workspaceID uuid.UUID) *Settings {
	return &Settings{
		WorkspaceID:   workspaceID,
		RedisEnabled:  false,
		RedisHost:     DefaultRedisHost,
		RedisPort:     DefaultRedisPort,
		MaxDashboards: DefaultMaxDashboards,
		MaxMembers:    DefaultMaxMembers,
	}
}

// SettingsOverrides replaces individual settings; nil fields are kept.
type SettingsOverrides struct {
	RedisEnabled  *bool   `json:"redis_enabled"`
	RedisHost     *string `json:"redis_host"`
	RedisPort     *int    `json:"redis_port"`
	MaxDashboards *int    `json:"max_dashboards"`
	MaxMembers    *int    `json:"max_members"`
}

var ErrInvalidSettings = apperr.Validation("invalid workspace settings")

// Apply copies every non-nil override onto s and validates the result.
func (o *SettingsOverrides) Apply(s *Settings) error {
	if o == nil {
		return s.Validate()
	}
	if o.RedisEnabled != nil {
		s.RedisEnabled = *o.RedisEnabled
	}
	if o.RedisHost != nil {
		s.RedisHost = *o.RedisHost
	}
	if o.RedisPort != nil {
		s.RedisPort = *o.RedisPort
	}
	if o.MaxDashboards != nil {
		s.MaxDashboards = *o.MaxDashboards
	}
	if o.MaxMembers != nil {
		s.MaxMembers = *o.MaxMembers
	}
	return s.Validate()
}

// Validate checks the settings ranges.
func (s *Settings) Validate() error {
	switch {
	case s.RedisPort < 1 || s.RedisPort > 65535:
		return apperr.Validation("redis_port must be between 1 and 65535")
	case s.MaxDashboards < 1 || s.MaxDashboards > 10000:
		return apperr.Validation("max_dashboards must be between 1 and 10000")
	case s.MaxMembers < 1 || s.MaxMembers > 1000:
		return apperr.Validation("max_members must be between 1 and 1000")
	case s.RedisEnabled && s.RedisHost == "":
		return apperr.Validation("redis_host is required when redis is enabled")
	}
	return nil
}
