// Package tenant resolves which workspace a request is scoped to and carries
// the resolved scope through the request context.
package tenant

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
	"vizspace/internal/role"
)

// Request inputs, highest precedence first.
const (
	HeaderName = "X-Workspace-ID"
	ParamName  = "workspace_id"
)

var (
	ErrMissing   = apperr.Validation("workspace id is required: send the X-Workspace-ID header or set a default workspace")
	ErrMalformed = apperr.Validation("invalid workspace id")
)

// Scope is the caller's verified position inside one workspace.
type Scope struct {
	WorkspaceID uuid.UUID
	UserID      uuid.UUID
	Role        role.Role
}

// Resolve picks the workspace id from the header, then the path parameter,
// then the query parameter, then the user's default. The first non-empty
// input wins; a malformed one is an error rather than a fall through.
func Resolve(header, path, query string, fallback uuid.NullUUID) (uuid.UUID, error) {
	for _, raw := range []string{header, path, query} {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return uuid.Nil, ErrMalformed
		}
		return id, nil
	}
	if fallback.Valid && fallback.UUID != uuid.Nil {
		return fallback.UUID, nil
	}
	return uuid.Nil, ErrMissing
}

// ResolveRequest applies Resolve to an HTTP request.
func ResolveRequest(r *http.Request, fallback uuid.NullUUID) (uuid.UUID, error) {
	return Resolve(
		r.Header.Get(HeaderName),
		r.PathValue(ParamName),
		r.URL.Query().Get(ParamName),
		fallback,
	)
}

type contextKey struct{}

// WithScope attaches s to ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the scope attached by WithScope.
func FromContext(ctx context.Context) (Scope, bool) {
	s, ok := ctx.Value(contextKey{}).(Scope)
	return s, ok
}
