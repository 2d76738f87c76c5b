// Package isolation rejects writes that would move a workspace-scoped entity
// out of its workspace or create it without one.
package isolation

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vizspace/internal/apperr"
)

// ErrViolation aborts the write. It maps to an internal error at the edge.
var ErrViolation = apperr.New(apperr.KindSecurity, "workspace isolation violation")

// HasTenantID is implemented by every workspace-scoped entity.
type HasTenantID interface {
	TenantID() uuid.UUID
}

// Guard checks entities before they are written.
type Guard struct {
	logger *logrus.Logger
}

// NewGuard creates a guard that reports violations to logger.
func NewGuard(logger *logrus.Logger) *Guard {
	return &Guard{logger: logger}
}

// BeforeCreate rejects entities without a workspace id.
func (g *Guard) BeforeCreate(e HasTenantID) error {
	if e.TenantID() == uuid.Nil {
		g.log(e).Error("refusing to create workspace-scoped entity without workspace id")
		return fmt.Errorf("%T: %w", e, ErrViolation)
	}
	return nil
}

// BeforeUpdate rejects updates that change the committed workspace id.
func (g *Guard) BeforeUpdate(committed uuid.UUID, e HasTenantID) error {
	if e.TenantID() != committed {
		g.log(e).
			WithField("committed_workspace_id", committed).
			WithField("attempted_workspace_id", e.TenantID()).
			Error("refusing to move entity to another workspace")
		return fmt.Errorf("%T: %w", e, ErrViolation)
	}
	return nil
}

func (g *Guard) log(e HasTenantID) *logrus.Entry {
	logger := logrus.StandardLogger()
	if g != nil && g.logger != nil {
		logger = g.logger
	}
	return logger.WithField("entity", fmt.Sprintf("%T", e))
}
