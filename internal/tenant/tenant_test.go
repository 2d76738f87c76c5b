package tenant

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"vizspace/internal/role"
)

func TestResolve_Precedence(t *testing.T) {
	header, path, query, def := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	fallback := uuid.NullUUID{UUID: def, Valid: true}

	tests := []struct {
		name    string
		header  string
		path    string
		query   string
		want    uuid.UUID
		wantErr error
	}{
		{"header wins", header.String(), path.String(), query.String(), header, nil},
		{"path over query", "", path.String(), query.String(), path, nil},
		{"query over default", "", "", query.String(), query, nil},
		{"default", "", "", "", def, nil},
		{"malformed header does not fall through", "not-a-uuid", path.String(), "", uuid.Nil, ErrMalformed},
		{"nil uuid is malformed", uuid.Nil.String(), "", "", uuid.Nil, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.header, tt.path, tt.query, fallback)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestResolve_Missing(t *testing.T) {
	if _, err := Resolve("", "", "", uuid.NullUUID{}); !errors.Is(err, ErrMissing) {
		t.Errorf("expected ErrMissing, got %v", err)
	}
}

func TestResolveRequest(t *testing.T) {
	ws := uuid.New()

	req := httptest.NewRequest("GET", "/api/dashboards?workspace_id="+ws.String(), nil)
	got, err := ResolveRequest(req, uuid.NullUUID{})
	if err != nil || got != ws {
		t.Fatalf("ResolveRequest() = %s, %v", got, err)
	}

	other := uuid.New()
	req.SetPathValue(ParamName, other.String())
	if got, _ := ResolveRequest(req, uuid.NullUUID{}); got != other {
		t.Errorf("path parameter should win over query, got %s", got)
	}

	req.Header.Set(HeaderName, ws.String())
	if got, _ := ResolveRequest(req, uuid.NullUUID{}); got != ws {
		t.Errorf("header should win over path, got %s", got)
	}
}

func TestScopeContext(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context should carry no scope")
	}

	s := Scope{WorkspaceID: uuid.New(), UserID: uuid.New(), Role: role.Editor}
	got, ok := FromContext(WithScope(context.Background(), s))
	if !ok || got != s {
		t.Errorf("FromContext() = %+v, %v", got, ok)
	}
}
