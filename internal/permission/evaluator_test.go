package permission

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"vizspace/internal/role"
)

type fakeMembers map[[2]uuid.UUID]role.Role

func (f fakeMembers) RoleOf(_ context.Context, ws, user uuid.UUID) (role.Role, bool, error) {
	r, ok := f[[2]uuid.UUID{ws, user}]
	return r, ok, nil
}

type fakeGrants map[[2]uuid.UUID]role.ConnectionLevel

func (f fakeGrants) GrantLevel(_ context.Context, conn, user uuid.UUID) (role.ConnectionLevel, bool, error) {
	l, ok := f[[2]uuid.UUID{conn, user}]
	return l, ok, nil
}

type failingMembers struct{}

func (failingMembers) RoleOf(context.Context, uuid.UUID, uuid.UUID) (role.Role, bool, error) {
	return "", false, errors.New("db down")
}

type fixture struct {
	ws, conn                                          uuid.UUID
	creator, admin, editor, viewer, grantee, stranger uuid.UUID
	members                                           fakeMembers
	grants                                            fakeGrants
}

func newFixture() *fixture {
	f := &fixture{
		ws: uuid.New(), conn: uuid.New(),
		creator: uuid.New(), admin: uuid.New(), editor: uuid.New(),
		viewer: uuid.New(), grantee: uuid.New(), stranger: uuid.New(),
	}
	f.members = fakeMembers{
		{f.ws, f.creator}: role.Editor,
		{f.ws, f.admin}:   role.Admin,
		{f.ws, f.editor}:  role.Editor,
		{f.ws, f.viewer}:  role.Viewer,
		{f.ws, f.grantee}: role.Viewer,
	}
	f.grants = fakeGrants{}
	return f
}

func (f *fixture) evaluator() *Evaluator {
	return NewEvaluator(f.members, f.grants)
}

func (f *fixture) resource() Resource {
	return Resource{ID: f.conn, WorkspaceID: f.ws, CreatedBy: f.creator}
}

func TestEvaluator_HasWorkspaceAccess(t *testing.T) {
	f := newFixture()
	e := f.evaluator()
	ctx := context.Background()

	tests := []struct {
		name     string
		user     uuid.UUID
		required role.Role
		want     bool
	}{
		{"admin as admin", f.admin, role.Admin, true},
		{"editor as viewer", f.editor, role.Viewer, true},
		{"viewer as editor", f.viewer, role.Editor, false},
		{"stranger as viewer", f.stranger, role.Viewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.HasWorkspaceAccess(ctx, tt.user, f.ws, tt.required)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasWorkspaceAccess() = %v, want %v", got, tt.want)
			}
		})
	}

	if ok, _ := e.HasWorkspaceAccess(ctx, f.admin, uuid.New(), role.Viewer); ok {
		t.Error("admin of one workspace must not reach another")
	}
}

// Editors without a grant get nothing, viewer grants read but do not write,
// the creator keeps full access.
func TestEvaluator_HasConnectionAccess_Layering(t *testing.T) {
	f := newFixture()
	f.grants[[2]uuid.UUID{f.conn, f.grantee}] = role.ConnectionViewer
	e := f.evaluator()
	ctx := context.Background()
	conn := f.resource()

	tests := []struct {
		name     string
		user     uuid.UUID
		required role.ConnectionLevel
		want     bool
	}{
		{"creator reads", f.creator, role.ConnectionViewer, true},
		{"creator owns", f.creator, role.ConnectionOwner, true},
		{"admin owns", f.admin, role.ConnectionOwner, true},
		{"editor without grant cannot read", f.editor, role.ConnectionViewer, false},
		{"viewer grant reads", f.grantee, role.ConnectionViewer, true},
		{"viewer grant cannot edit", f.grantee, role.ConnectionEditor, false},
		{"stranger", f.stranger, role.ConnectionViewer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.HasConnectionAccess(ctx, tt.user, conn, tt.required)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("HasConnectionAccess() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluator_CanManageConnectionPermissions(t *testing.T) {
	f := newFixture()
	owner, editorGrant := uuid.New(), uuid.New()
	f.members[[2]uuid.UUID{f.ws, owner}] = role.Viewer
	f.members[[2]uuid.UUID{f.ws, editorGrant}] = role.Editor
	f.grants[[2]uuid.UUID{f.conn, owner}] = role.ConnectionOwner
	f.grants[[2]uuid.UUID{f.conn, editorGrant}] = role.ConnectionEditor
	e := f.evaluator()
	conn := f.resource()

	tests := []struct {
		name string
		user uuid.UUID
		want bool
	}{
		{"creator", f.creator, true},
		{"admin", f.admin, true},
		{"owner grant", owner, true},
		{"editor grant", editorGrant, false},
		{"editor role", f.editor, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CanManageConnectionPermissions(context.Background(), tt.user, conn)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanManageConnectionPermissions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluator_CanModifyMemberRole(t *testing.T) {
	f := newFixture()
	e := f.evaluator()
	ctx := context.Background()

	tests := []struct {
		name    string
		actor   uuid.UUID
		target  uuid.UUID
		newRole role.Role
		want    bool
	}{
		{"admin promotes viewer to editor", f.admin, f.viewer, role.Editor, true},
		{"admin grants admin", f.admin, f.viewer, role.Admin, true},
		{"admin cannot change self", f.admin, f.admin, role.Viewer, false},
		{"editor cannot change roles", f.editor, f.viewer, role.Viewer, false},
		{"viewer cannot change roles", f.viewer, f.editor, role.Viewer, false},
		{"stranger", f.stranger, f.viewer, role.Editor, false},
		{"invalid role", f.admin, f.viewer, role.Role("owner"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CanModifyMemberRole(ctx, tt.actor, tt.target, f.ws, tt.newRole)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanModifyMemberRole() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluator_CanModifyResource(t *testing.T) {
	f := newFixture()
	e := f.evaluator()
	res := Resource{ID: uuid.New(), WorkspaceID: f.ws, CreatedBy: f.editor}

	tests := []struct {
		name string
		user uuid.UUID
		want bool
	}{
		{"creator editor", f.editor, true},
		{"admin", f.admin, true},
		{"other editor", f.creator, false},
		{"viewer", f.viewer, false},
		{"stranger", f.stranger, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.CanModifyResource(context.Background(), tt.user, res)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanModifyResource() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanModifyOwned_ViewerCreator(t *testing.T) {
	u := uuid.New()
	if CanModifyOwned(role.Viewer, u, u) {
		t.Error("a viewer must not modify even their own resource")
	}
}

func TestEvaluator_PropagatesErrors(t *testing.T) {
	e := NewEvaluator(failingMembers{}, fakeGrants{})
	if _, err := e.HasWorkspaceAccess(context.Background(), uuid.New(), uuid.New(), role.Viewer); err == nil {
		t.Error("expected lookup error to propagate")
	}
}

func TestRequired_EveryActionHasRole(t *testing.T) {
	for _, a := range Actions() {
		r, ok := Required(a)
		if !ok || !r.Valid() {
			t.Errorf("action %s has no valid required role", a)
		}
	}
	if Allows(role.Admin, Action("unknown")) {
		t.Error("unknown actions must be denied")
	}
	if Allows(role.Viewer, DashboardsCreate) {
		t.Error("viewers must not create dashboards")
	}
	if !Allows(role.Editor, DashboardsCreate) {
		t.Error("editors create dashboards")
	}
}
