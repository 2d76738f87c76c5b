package handler

import (
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func (e *testEnv) expectUser(id uuid.UUID, username, email string, active bool) {
	now := time.Now()
	e.mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(
			id.String(), username, email, "$2a$04$digest", active, nil, nil, now, now,
		))
}

func TestUsers_RequireSystemAdmin(t *testing.T) {
	env := newTestEnv(t)
	caller, other := uuid.New(), uuid.New()
	token := env.login(caller)

	tests := []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/users", ""},
		{http.MethodDelete, "/api/users/" + other.String(), ""},
		{http.MethodPost, "/api/users/" + other.String() + "/reset-password", `{"new_password":"secret99"}`},
		{http.MethodGet, "/api/users/" + other.String(), ""},
		{http.MethodGet, "/api/users/" + other.String() + "/workspaces", ""},
		{http.MethodPatch, "/api/users/" + other.String(), `{"email":"x@example.com"}`},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, token, tt.body, nil)
			if rec.Code != http.StatusForbidden {
				t.Errorf("expected 403, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected database access: %v", err)
	}
}

func TestUsers_GetSelfWithWorkspaces(t *testing.T) {
	env := newTestEnv(t)
	id, ws := uuid.New(), uuid.New()
	token := env.login(id)
	now := time.Now()

	env.expectUser(id, "alice", "alice@example.com", true)
	env.mock.ExpectQuery(`FROM workspace_members m\s+JOIN workspaces w ON w.id = m.workspace_id\s+WHERE m.user_id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_by", "role", "joined_at"}).
			AddRow(ws.String(), "Team", "team", id.String(), "editor", now))

	rec := env.do(http.MethodGet, "/api/users/"+id.String(), token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got struct {
		Username   string `json:"username"`
		Workspaces []struct {
			WorkspaceID   string `json:"workspace_id"`
			WorkspaceName string `json:"workspace_name"`
			Role          string `json:"role"`
		} `json:"workspaces"`
	}
	decodeBody(t, rec, &got)
	if got.Username != "alice" || len(got.Workspaces) != 1 {
		t.Fatalf("unexpected body: %+v", got)
	}
	if w := got.Workspaces[0]; w.WorkspaceID != ws.String() || w.WorkspaceName != "Team" || w.Role != "editor" {
		t.Errorf("unexpected membership: %+v", w)
	}
}

func TestUsers_ListAsAdmin(t *testing.T) {
	env := newTestEnv(t)
	admin, other := uuid.New(), uuid.New()
	token := env.loginAs(admin, testAdminEmail)
	now := time.Now()
	active := sql.NullBool{Bool: true, Valid: true}

	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users\s+WHERE`).
		WithArgs("%ali%", active).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	env.mock.ExpectQuery(`AS workspace_count\s+FROM users\s+WHERE .+ LIMIT \$3 OFFSET \$4`).
		WithArgs("%ali%", active, 10, 10).
		WillReturnRows(sqlmock.NewRows(append(userCols, "workspace_count")).AddRow(
			other.String(), "alice", "alice@example.com", "$2a$04$digest", true, nil, nil, now, now, 3,
		))

	rec := env.do(http.MethodGet, "/api/users?search=ali&is_active=true&page=2&page_size=10", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "digest") {
		t.Errorf("password digest leaked: %s", rec.Body.String())
	}

	var got struct {
		Users []struct {
			Username       string `json:"username"`
			WorkspaceCount int    `json:"workspace_count"`
		} `json:"users"`
		Total      int `json:"total"`
		Page       int `json:"page"`
		TotalPages int `json:"total_pages"`
	}
	decodeBody(t, rec, &got)
	if got.Total != 11 || got.Page != 2 || got.TotalPages != 2 {
		t.Errorf("unexpected paging: %+v", got)
	}
	if len(got.Users) != 1 || got.Users[0].WorkspaceCount != 3 {
		t.Errorf("unexpected users: %+v", got.Users)
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUsers_ListRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t)
	token := env.loginAs(uuid.New(), testAdminEmail)

	for _, query := range []string{"?is_active=maybe", "?page_size=500", "?page=-1"} {
		t.Run(query, func(t *testing.T) {
			rec := env.do(http.MethodGet, "/api/users"+query, token, "", nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUsers_Deactivate(t *testing.T) {
	env := newTestEnv(t)
	admin, other := uuid.New(), uuid.New()
	token := env.loginAs(admin, testAdminEmail)

	rec := env.do(http.MethodDelete, "/api/users/"+admin.String(), token, "", nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "cannot deactivate yourself") {
		t.Fatalf("expected 400 for self, got %d: %s", rec.Code, rec.Body.String())
	}

	env.mock.ExpectExec(`UPDATE users SET is_active = \$2, updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs(other, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec = env.do(http.MethodDelete, "/api/users/"+other.String(), token, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUsers_UpdateActiveStatus(t *testing.T) {
	env := newTestEnv(t)
	self := uuid.New()
	admin := uuid.New()
	selfToken := env.login(self)
	adminToken := env.loginAs(admin, testAdminEmail)

	rec := env.do(http.MethodPatch, "/api/users/"+self.String(), selfToken, `{"is_active":false}`, nil)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for non-admin, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPatch, "/api/users/"+admin.String(), adminToken, `{"is_active":false}`, nil)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "cannot modify your own active status") {
		t.Errorf("expected 400 for admin self, got %d: %s", rec.Code, rec.Body.String())
	}

	env.mock.ExpectExec(`UPDATE users SET is_active = \$2`).
		WithArgs(self, true).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.expectUser(self, "alice", "alice@example.com", true)

	rec = env.do(http.MethodPatch, "/api/users/"+self.String(), adminToken, `{"is_active":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUsers_UpdateOwnEmail(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()
	token := env.login(id)

	env.mock.ExpectExec(`UPDATE users SET email = \$2, updated_at = NOW\(\) WHERE id = \$1`).
		WithArgs(id, "new@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.expectUser(id, "alice", "new@example.com", true)

	rec := env.do(http.MethodPatch, "/api/users/"+id.String(), token, `{"email":"New@Example.com"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"email":"new@example.com"`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}

	rec = env.do(http.MethodPatch, "/api/users/"+id.String(), token, `{"email":"not-an-email"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad email, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestUsers_ResetPassword(t *testing.T) {
	env := newTestEnv(t)
	admin, target, missing := uuid.New(), uuid.New(), uuid.New()
	token := env.loginAs(admin, testAdminEmail)

	env.mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs(target, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectExec(`UPDATE users SET password_hash = \$2`).
		WithArgs(missing, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tests := []struct {
		name   string
		target uuid.UUID
		body   string
		want   int
	}{
		{"reset", target, `{"new_password":"secret99"}`, http.StatusNoContent},
		{"unknown user", missing, `{"new_password":"secret99"}`, http.StatusNotFound},
		{"too short", target, `{"new_password":"abc"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(http.MethodPost, "/api/users/"+tt.target.String()+"/reset-password", token, tt.body, nil)
			if rec.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body.String())
			}
		})
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
