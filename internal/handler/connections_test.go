package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"vizspace/internal/vault"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

var connectionCols = []string{
	"id", "workspace_id", "name", "connection_type",
	"config_ciphertext", "config_nonce", "config_wrapped_key", "config_key_nonce",
	"is_active", "created_by", "created_at", "updated_at",
}

func (e *testEnv) connectionRow(t *testing.T, id, ws, creator uuid.UUID) *sqlmock.Rows {
	t.Helper()
	sealed, err := vault.SealJSON(e.vault, map[string]any{"host": "db.internal", "password": "hunter2"},
		[]byte(ws.String()+"/"+id.String()))
	if err != nil {
		t.Fatalf("failed to seal config: %v", err)
	}
	now := time.Now()
	return sqlmock.NewRows(connectionCols).AddRow(
		id.String(), ws.String(), "warehouse", "postgresql",
		sealed.Ciphertext, sealed.Nonce, sealed.WrappedKey, sealed.KeyNonce,
		true, creator.String(), now, now,
	)
}

func (e *testEnv) expectConnection(t *testing.T, id, ws, creator uuid.UUID) {
	e.mock.ExpectQuery(`SELECT .+ FROM connections WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(id, ws).
		WillReturnRows(e.connectionRow(t, id, ws, creator))
}

func (e *testEnv) expectGrant(id, userID uuid.UUID, level string) {
	rows := sqlmock.NewRows([]string{"level"})
	if level != "" {
		rows.AddRow(level)
	}
	e.mock.ExpectQuery(`SELECT level FROM connection_permissions WHERE connection_id = \$1 AND user_id = \$2`).
		WithArgs(id, userID).
		WillReturnRows(rows)
}

// An editor needs an explicit grant to read someone else's connection, and a
// viewer grant still does not allow writes. The creator needs no grant.
func TestConnections_PermissionLayering(t *testing.T) {
	env := newTestEnv(t)
	ws, creator, editor, id := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	editorToken := env.login(editor)
	creatorToken := env.login(creator)
	header := map[string]string{"X-Workspace-ID": ws.String()}
	path := "/api/connections/" + id.String()

	// no grant: hidden
	env.expectRole(ws, editor, "editor")
	env.expectConnection(t, id, ws, creator)
	env.expectGrant(id, editor, "")
	if rec := env.do(http.MethodGet, path, editorToken, "", header); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without grant, got %d: %s", rec.Code, rec.Body.String())
	}

	// viewer grant: readable with decrypted config
	env.expectRole(ws, editor, "editor")
	env.expectConnection(t, id, ws, creator)
	env.expectGrant(id, editor, "viewer")
	rec := env.do(http.MethodGet, path, editorToken, "", header)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with viewer grant, got %d: %s", rec.Code, rec.Body.String())
	}
	var got connectionResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.Config["host"] != "db.internal" {
		t.Errorf("expected decrypted config, got %v", got.Config)
	}

	// viewer grant: still not writable
	env.expectRole(ws, editor, "editor")
	env.expectConnection(t, id, ws, creator)
	env.expectGrant(id, editor, "viewer")
	if rec := env.do(http.MethodPut, path, editorToken, `{"name":"renamed"}`, header); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on write with viewer grant, got %d: %s", rec.Code, rec.Body.String())
	}

	// creator: full access with zero grants
	env.expectRole(ws, creator, "editor")
	env.expectConnection(t, id, ws, creator)
	if rec := env.do(http.MethodGet, path, creatorToken, "", header); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for creator, got %d: %s", rec.Code, rec.Body.String())
	}

	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestConnections_CreateRecordsActivity(t *testing.T) {
	env := newTestEnv(t)
	ws, editor := uuid.New(), uuid.New()
	token := env.login(editor)

	env.expectRole(ws, editor, "editor")
	now := time.Now()
	env.mock.ExpectQuery(`INSERT INTO connections`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	env.mock.ExpectExec(`INSERT INTO activity_logs`).
		WithArgs(sqlmock.AnyArg(), ws, uuid.NullUUID{UUID: editor, Valid: true}, "connection.create", "connection",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	body := `{"name":"warehouse","type":"postgresql","config":{"host":"db.internal"}}`
	rec := env.do(http.MethodPost, "/api/connections", token, body, map[string]string{"X-Workspace-ID": ws.String()})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestConnections_ManagePermissionsRequiresOwner(t *testing.T) {
	env := newTestEnv(t)
	ws, creator, editor, id := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	token := env.login(editor)

	env.expectRole(ws, editor, "editor")
	env.expectConnection(t, id, ws, creator)
	env.expectGrant(id, editor, "editor")

	rec := env.do(http.MethodPut, "/api/connections/"+id.String()+"/permissions/"+uuid.NewString(), token,
		`{"permission_level":"owner"}`, map[string]string{"X-Workspace-ID": ws.String()})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for editor grant holder, got %d: %s", rec.Code, rec.Body.String())
	}
	if err := env.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
