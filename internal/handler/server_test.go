package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"vizspace/internal/account"
	"vizspace/internal/activity"
	"vizspace/internal/auth"
	"vizspace/internal/chart"
	"vizspace/internal/connection"
	"vizspace/internal/dashboard"
	"vizspace/internal/datasource"
	"vizspace/internal/invitation"
	"vizspace/internal/isolation"
	"vizspace/internal/jwtauth"
	"vizspace/internal/membership"
	"vizspace/internal/middleware"
	"vizspace/internal/password"
	"vizspace/internal/permission"
	"vizspace/internal/user"
	"vizspace/internal/vault"
	"vizspace/internal/workspace"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/crypto/bcrypt"
)

var testSigningKey = []byte("0123456789abcdef0123456789abcdef-test")

const testAdminEmail = "root@example.com"

// stubAuthn maps bearer tokens to principals.
type stubAuthn map[string]*auth.Principal

func (s stubAuthn) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	if p, ok := s[token]; ok {
		return p, nil
	}
	return nil, auth.ErrInvalidToken
}

type testEnv struct {
	handler http.Handler
	mock    sqlmock.Sqlmock
	vault   *vault.Vault
	metrics *middleware.Metrics
	authn   stubAuthn
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger, _ := test.NewNullLogger()
	guard := isolation.NewGuard(logger)
	hasher := password.Bcrypt{Cost: bcrypt.MinCost}

	v, err := vault.New([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	tokens, err := jwtauth.New(testSigningKey, time.Hour)
	if err != nil {
		t.Fatalf("failed to create token authority: %v", err)
	}

	users := user.NewManager(user.NewDatastore(db), hasher)
	members := membership.NewStore(db, guard)
	connDS := connection.NewDatastore(db)
	evaluator := permission.NewEvaluator(members, connection.NewGrantStore(connDS))
	connections := connection.NewManager(connDS, v, guard, evaluator, members)
	workspaces := workspace.NewManager(workspace.NewDatastore(db), members, workspace.NewSettingsCache(16, time.Minute))
	factory := workspace.NewFactory(db, guard)
	invitations, err := invitation.NewService(testSigningKey, workspaces, members, invitation.WithCapacity(workspaces))
	if err != nil {
		t.Fatalf("failed to create invitation service: %v", err)
	}
	activityStore := activity.NewStore(db, guard)
	sources := datasource.NewManager(datasource.NewDatastore(db), guard, connections)

	registry := prometheus.NewRegistry()
	metrics := middleware.NewMetrics(registry)
	authn := stubAuthn{}

	mux := http.NewServeMux()
	RegisterRoutes(mux, Deps{
		Authenticator: authn,
		Guard:         middleware.NewWorkspaceGuard(evaluator, metrics, logger),
		Gatherer:      registry,
		Logger:        logger,
		Health:        NewHealthHandler(db, nil, logger),
		Accounts:      NewAccountHandler(account.NewService(db, hasher, factory, users, tokens), users, logger),
		Users:         NewUserHandler(users, members, user.NewAdmins([]string{testAdminEmail}), logger),
		Workspaces:    NewWorkspaceHandler(factory, workspaces, members, users, activityStore, logger),
		Members: NewMemberHandler(workspaces, members, users, invitations, invitation.NewLogMailer(logger),
			"http://localhost:5173", activityStore, logger),
		Connections: NewConnectionHandler(connections, activityStore, logger),
		Dashboards:  NewDashboardHandler(dashboard.NewManager(dashboard.NewDatastore(db), guard, workspaces), activityStore, logger),
		Charts:      NewChartHandler(chart.NewManager(chart.NewDatastore(db), guard, sources), sources, activityStore, logger),
	})

	return &testEnv{handler: mux, mock: mock, vault: v, metrics: metrics, authn: authn}
}

// login registers a principal and returns its bearer token.
func (e *testEnv) login(userID uuid.UUID) string {
	token := "token-" + userID.String()
	e.authn[token] = &auth.Principal{UserID: userID, Username: "u" + userID.String()[:8], Email: userID.String()[:8] + "@example.com"}
	return token
}

// loginAs is login with a chosen email, for invitation redemption.
func (e *testEnv) loginAs(userID uuid.UUID, email string) string {
	token := e.login(userID)
	e.authn[token].Email = email
	return token
}

func (e *testEnv) do(method, path, token, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

// expectRole answers the workspace guard's membership lookup.
func (e *testEnv) expectRole(ws, userID uuid.UUID, r string) {
	rows := sqlmock.NewRows([]string{"role"})
	if r != "" {
		rows.AddRow(r)
	}
	e.mock.ExpectQuery(`SELECT role FROM workspace_members WHERE workspace_id = \$1 AND user_id = \$2`).
		WithArgs(ws, userID).
		WillReturnRows(rows)
}

func (e *testEnv) expectWorkspace(ws, creator uuid.UUID, name, slug string) {
	now := time.Now()
	e.mock.ExpectQuery(`SELECT id, name, slug, created_by, created_at, updated_at\s+FROM workspaces WHERE id = \$1`).
		WithArgs(ws).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "created_by", "created_at", "updated_at"}).
			AddRow(ws.String(), name, slug, creator.String(), now, now))
}

func (e *testEnv) expectActivity(action string) {
	e.mock.ExpectExec(`INSERT INTO activity_logs`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), action, sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// TestWorkspaceLifecycle walks a new user's personal workspace from sign-up
// through inviting a viewer who can read but not write.
func TestWorkspaceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	now := time.Now()

	// Register user1.
	env.mock.ExpectBegin()
	env.mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(sqlmock.AnyArg(), "user1", "user1@test.com", sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	env.mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM users WHERE id = \$1\)`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	env.mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM workspaces WHERE slug = \$1\)`).
		WithArgs("user1s-workspace").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	env.mock.ExpectQuery(`INSERT INTO workspaces .+ ON CONFLICT \(slug\) DO NOTHING`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	env.mock.ExpectQuery(`INSERT INTO workspace_members`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "admin", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"joined_at"}).AddRow(now))
	env.mock.ExpectQuery(`INSERT INTO workspace_settings`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	env.mock.ExpectExec(`UPDATE users SET current_workspace_id = \$2`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.mock.ExpectCommit()

	rec := env.do(http.MethodPost, "/api/auth/register", "",
		`{"username":"user1","email":"user1@test.com","password":"secret1"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var reg struct {
		User      struct{ ID string } `json:"user"`
		Workspace struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			Slug      string `json:"slug"`
			CreatedBy string `json:"created_by"`
		} `json:"workspace"`
	}
	decodeBody(t, rec, &reg)
	if reg.Workspace.Name != "user1's Workspace" || reg.Workspace.Slug != "user1s-workspace" {
		t.Fatalf("unexpected personal workspace: %+v", reg.Workspace)
	}
	if reg.Workspace.CreatedBy != reg.User.ID {
		t.Fatalf("workspace should be created by the new user: %+v", reg)
	}
	u1 := uuid.MustParse(reg.User.ID)
	ws := uuid.MustParse(reg.Workspace.ID)
	u1Token := env.login(u1)
	wsPath := "/api/workspaces/" + ws.String()
	wsHeader := map[string]string{"X-Workspace-ID": ws.String()}

	// user1 invites u2@test.com as a viewer.
	env.expectRole(ws, u1, "admin")
	env.mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM workspace_members m`).
		WithArgs(ws, "u2@test.com").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	env.expectWorkspace(ws, u1, reg.Workspace.Name, reg.Workspace.Slug)
	env.expectActivity("member.invite")

	rec = env.do(http.MethodPost, wsPath+"/invite", u1Token, `{"email":"u2@test.com","role":"viewer"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var inv struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &inv)

	// u2 accepts.
	u2 := uuid.New()
	u2Token := env.loginAs(u2, "u2@test.com")
	env.expectWorkspace(ws, u1, reg.Workspace.Name, reg.Workspace.Slug)
	env.mock.ExpectQuery(`SELECT .+ FROM workspace_settings WHERE workspace_id = \$1`).
		WithArgs(ws).
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "redis_enabled", "redis_host", "redis_port", "max_dashboards", "max_members", "created_at", "updated_at"}).
			AddRow(ws.String(), false, "localhost", 6379, 1000, 100, now, now))
	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM workspace_members WHERE workspace_id = \$1`).
		WithArgs(ws).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	env.mock.ExpectQuery(`INSERT INTO workspace_members`).
		WithArgs(sqlmock.AnyArg(), ws, u2, "viewer", uuid.NullUUID{UUID: u1, Valid: true}, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"joined_at"}).AddRow(now))
	env.mock.ExpectExec(`UPDATE users SET current_workspace_id = \$2, updated_at = NOW\(\)\s+WHERE id = \$1 AND current_workspace_id IS NULL`).
		WithArgs(u2, ws).
		WillReturnResult(sqlmock.NewResult(0, 1))
	env.expectActivity("member.join")

	rec = env.do(http.MethodPost, "/api/workspaces/accept-invitation", u2Token, `{"token":"`+inv.Token+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var joined struct {
		WorkspaceID string `json:"workspace_id"`
		Role        string `json:"role"`
	}
	decodeBody(t, rec, &joined)
	if joined.WorkspaceID != ws.String() || joined.Role != "viewer" {
		t.Fatalf("unexpected membership: %+v", joined)
	}

	// The viewer can list dashboards.
	env.expectRole(ws, u2, "viewer")
	env.mock.ExpectQuery(`SELECT .+ FROM dashboards\s+WHERE workspace_id = \$1`).
		WithArgs(ws).
		WillReturnRows(sqlmock.NewRows(dashboardCols))
	if rec = env.do(http.MethodGet, "/api/dashboards", u2Token, "", wsHeader); rec.Code != http.StatusOK {
		t.Fatalf("viewer list: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// ...but cannot create one.
	env.expectRole(ws, u2, "viewer")
	if rec = env.do(http.MethodPost, "/api/dashboards", u2Token, `{"name":"Mine"}`, wsHeader); rec.Code != http.StatusNotFound {
		t.Fatalf("viewer create: expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	// user1 creates a dashboard; the settings row is already cached.
	env.expectRole(ws, u1, "admin")
	env.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM dashboards WHERE workspace_id = \$1`).
		WithArgs(ws).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	env.mock.ExpectQuery(`INSERT INTO dashboards`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	env.expectActivity("dashboard.create")

	rec = env.do(http.MethodPost, "/api/dashboards", u1Token, `{"name":"Revenue"}`, wsHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &created)
	dash := uuid.MustParse(created.ID)

	// The viewer reads it.
	env.expectRole(ws, u2, "viewer")
	env.mock.ExpectQuery(`SELECT .+ FROM dashboards WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(dash, ws).
		WillReturnRows(sqlmock.NewRows(dashboardCols).AddRow(
			dash.String(), ws.String(), "Revenue", "", []byte(`[]`), false,
			nil, nil, 0, u1.String(), now, now,
		))
	if rec = env.do(http.MethodGet, "/api/dashboards/"+dash.String(), u2Token, "", wsHeader); rec.Code != http.StatusOK {
		t.Fatalf("viewer get: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// ...and cannot delete it.
	env.expectRole(ws, u2, "viewer")
	if rec = env.do(http.MethodDelete, "/api/dashboards/"+dash.String(), u2Token, "", wsHeader); rec.Code != http.StatusNotFound {
		t.Fatalf("viewer delete: expected 404, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
