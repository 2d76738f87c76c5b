package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"vizspace/internal/activity"
	"vizspace/internal/tenant"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ActivityRecorder appends audit entries.
type ActivityRecorder interface {
	Record(ctx context.Context, e *activity.Entry) error
}

// auditor records mutations. A failed write is logged and never fails the request.
type auditor struct {
	store  ActivityRecorder
	logger *logrus.Logger
}

func (a auditor) record(r *http.Request, scope tenant.Scope, action, resourceType string, resourceID uuid.UUID, details map[string]any) {
	if a.store == nil {
		return
	}
	e := &activity.Entry{
		WorkspaceID:  scope.WorkspaceID,
		UserID:       uuid.NullUUID{UUID: scope.UserID, Valid: scope.UserID != uuid.Nil},
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   uuid.NullUUID{UUID: resourceID, Valid: resourceID != uuid.Nil},
		IPAddress:    clientIP(r),
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err == nil {
			e.Details = raw
		}
	}
	if err := a.store.Record(r.Context(), e); err != nil {
		a.logger.WithError(err).WithFields(logrus.Fields{
			"workspace_id": scope.WorkspaceID,
			"action":       action,
		}).Warn("failed to record activity")
	}
}
