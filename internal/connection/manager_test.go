package connection

import (
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"vizspace/internal/isolation"
	"vizspace/internal/permission"
	"vizspace/internal/role"
	"vizspace/internal/tenant"
	"vizspace/internal/vault"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus/hooks/test"
)

var connCols = []string{
	"id", "workspace_id", "name", "connection_type",
	"config_ciphertext", "config_nonce", "config_wrapped_key", "config_key_nonce",
	"is_active", "created_by", "created_at", "updated_at",
}

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

// notContains matches a byte argument that does not contain the secret.
type notContains []byte

func (n notContains) Match(v driver.Value) bool {
	b, ok := v.([]byte)
	return ok && len(b) > 0 && !bytes.Contains(b, n)
}

type fixture struct {
	mgr     *Manager
	mock    sqlmock.Sqlmock
	cipher  *vault.Vault
	members fakeMembers
	grants  fakeGrants
	ws      uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cipher, err := vault.New(bytes.Repeat([]byte{7}, vault.KeySize))
	if err != nil {
		t.Fatalf("failed to create vault: %v", err)
	}
	logger, _ := test.NewNullLogger()
	f := &fixture{
		mock:    mock,
		cipher:  cipher,
		members: fakeMembers{},
		grants:  fakeGrants{},
		ws:      uuid.New(),
	}
	authz := permission.NewEvaluator(f.members, f.grants)
	f.mgr = NewManager(NewDatastore(db), cipher, isolation.NewGuard(logger), authz, f.members)
	return f
}

// stored builds a sealed connection row owned by creator.
func (f *fixture) stored(t *testing.T, creator uuid.UUID, cfg map[string]any) *Connection {
	t.Helper()
	c := &Connection{ID: uuid.New(), WorkspaceID: f.ws, Name: "warehouse", Type: TypePostgreSQL, IsActive: true, CreatedBy: creator}
	sealed, err := vault.SealJSON(f.cipher, cfg, c.associatedData())
	if err != nil {
		t.Fatalf("failed to seal: %v", err)
	}
	c.Sealed = *sealed
	return c
}

func (f *fixture) expectGet(c *Connection) {
	now := time.Now()
	f.mock.ExpectQuery(`SELECT .+ FROM connections WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(c.ID, f.ws).
		WillReturnRows(sqlmock.NewRows(connCols).AddRow(
			c.ID.String(), c.WorkspaceID.String(), c.Name, string(c.Type),
			c.Sealed.Ciphertext, c.Sealed.Nonce, c.Sealed.WrappedKey, c.Sealed.KeyNonce,
			c.IsActive, c.CreatedBy.String(), now, now,
		))
}

func (f *fixture) scope(user uuid.UUID, r role.Role) tenant.Scope {
	f.members[[2]uuid.UUID{f.ws, user}] = r
	return tenant.Scope{WorkspaceID: f.ws, UserID: user, Role: r}
}

func TestManager_Create_SealsConfig(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(uuid.New(), role.Editor)

	now := time.Now()
	f.mock.ExpectQuery(`INSERT INTO connections`).
		WithArgs(
			sqlmock.AnyArg(), f.ws, "warehouse", TypePostgreSQL,
			notContains("hunter2"), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
			true, scope.UserID, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	c, err := f.mgr.Create(context.Background(), scope, CreateInput{
		Name:   "  warehouse ",
		Type:   TypePostgreSQL,
		Config: map[string]any{"host": "db.internal", "password": "hunter2"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg, err := f.mgr.Config(c)
	if err != nil {
		t.Fatalf("failed to open config: %v", err)
	}
	if cfg["password"] != "hunter2" {
		t.Errorf("expected decrypted password, got %v", cfg["password"])
	}
	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Create_DuplicateName(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(uuid.New(), role.Editor)

	f.mock.ExpectQuery(`INSERT INTO connections`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: constraintName})

	_, err := f.mgr.Create(context.Background(), scope, CreateInput{
		Name: "warehouse", Type: TypeS3, Config: map[string]any{"bucket": "b"},
	})
	if !errors.Is(err, ErrNameTaken) {
		t.Errorf("expected ErrNameTaken, got %v", err)
	}
}

func TestManager_Create_InvalidInput(t *testing.T) {
	f := newFixture(t)
	scope := f.scope(uuid.New(), role.Editor)
	long := string(bytes.Repeat([]byte("a"), maxNameLength+1))

	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{"empty name", CreateInput{Name: " ", Type: TypeS3, Config: map[string]any{"a": 1}}, ErrInvalidName},
		{"long name", CreateInput{Name: long, Type: TypeS3, Config: map[string]any{"a": 1}}, ErrInvalidName},
		{"bad type", CreateInput{Name: "x", Type: "oracle", Config: map[string]any{"a": 1}}, ErrInvalidType},
		{"no config", CreateInput{Name: "x", Type: TypeGCS}, ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.mgr.Create(context.Background(), scope, tt.in); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestManager_AccessLayering(t *testing.T) {
	f := newFixture(t)
	creator := uuid.New()
	f.scope(creator, role.Editor)
	c := f.stored(t, creator, map[string]any{"host": "h"})

	editor := f.scope(uuid.New(), role.Editor)
	viewerGrantee := f.scope(uuid.New(), role.Editor)
	f.grants[[2]uuid.UUID{c.ID, viewerGrantee.UserID}] = role.ConnectionViewer

	// Editor without a grant cannot read.
	f.expectGet(c)
	if _, err := f.mgr.Get(context.Background(), editor, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for ungranted editor, got %v", err)
	}

	// Viewer grant reads but cannot write.
	f.expectGet(c)
	got, err := f.mgr.Get(context.Background(), viewerGrantee, c.ID)
	if err != nil {
		t.Fatalf("viewer grant should read: %v", err)
	}
	if cfg, err := f.mgr.Config(got); err != nil || cfg["host"] != "h" {
		t.Errorf("expected decrypted config, got %v, %v", cfg, err)
	}

	f.expectGet(c)
	name := "renamed"
	if _, err := f.mgr.Update(context.Background(), viewerGrantee, c.ID, UpdateInput{Name: &name}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for viewer update, got %v", err)
	}

	// The creator always has full access, even as a viewer.
	creatorScope := tenant.Scope{WorkspaceID: f.ws, UserID: creator, Role: role.Viewer}
	f.expectGet(c)
	f.mock.ExpectExec(`DELETE FROM connections WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(c.ID, f.ws).
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := f.mgr.Delete(context.Background(), creatorScope, c.ID); err != nil {
		t.Errorf("creator delete failed: %v", err)
	}

	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_Get_OtherWorkspace(t *testing.T) {
	f := newFixture(t)
	admin := f.scope(uuid.New(), role.Admin)
	id := uuid.New()

	f.mock.ExpectQuery(`SELECT .+ FROM connections WHERE id = \$1 AND workspace_id = \$2`).
		WithArgs(id, f.ws).
		WillReturnRows(sqlmock.NewRows(connCols))

	if _, err := f.mgr.Get(context.Background(), admin, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestManager_Update_ResealsConfig(t *testing.T) {
	f := newFixture(t)
	admin := f.scope(uuid.New(), role.Admin)
	c := f.stored(t, uuid.New(), map[string]any{"password": "old"})

	f.expectGet(c)
	f.mock.ExpectExec(`UPDATE connections`).
		WithArgs(c.ID, f.ws, "warehouse", notContains("new-secret"), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	updated, err := f.mgr.Update(context.Background(), admin, c.ID, UpdateInput{Config: map[string]any{"password": "new-secret"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg, err := f.mgr.Config(updated)
	if err != nil || cfg["password"] != "new-secret" {
		t.Errorf("expected resealed config, got %v, %v", cfg, err)
	}
}

func TestManager_Config_BoundToRow(t *testing.T) {
	f := newFixture(t)
	c := f.stored(t, uuid.New(), map[string]any{"password": "p"})

	moved := *c
	moved.WorkspaceID = uuid.New()
	if _, err := f.mgr.Config(&moved); err == nil {
		t.Error("config sealed for one workspace must not open in another")
	}
}

func TestManager_List(t *testing.T) {
	f := newFixture(t)
	admin := f.scope(uuid.New(), role.Admin)
	viewer := f.scope(uuid.New(), role.Viewer)

	f.mock.ExpectQuery(`SELECT .+ FROM connections WHERE workspace_id = \$1 ORDER BY`).
		WithArgs(f.ws).
		WillReturnRows(sqlmock.NewRows(connCols))
	if _, err := f.mgr.List(context.Background(), admin); err != nil {
		t.Fatalf("admin list failed: %v", err)
	}

	f.mock.ExpectQuery(`SELECT .+ FROM connections c WHERE c.workspace_id = \$1 AND \(c.created_by = \$2 OR EXISTS`).
		WithArgs(f.ws, viewer.UserID).
		WillReturnRows(sqlmock.NewRows(connCols))
	if _, err := f.mgr.List(context.Background(), viewer); err != nil {
		t.Fatalf("viewer list failed: %v", err)
	}

	if err := f.mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestManager_SetGrant(t *testing.T) {
	f := newFixture(t)
	creator := f.scope(uuid.New(), role.Editor)
	c := f.stored(t, creator.UserID, map[string]any{"a": 1})
	member := f.scope(uuid.New(), role.Viewer)
	outsider := uuid.New()

	f.expectGet(c)
	if _, err := f.mgr.SetGrant(context.Background(), creator, c.ID, outsider, role.ConnectionViewer); !errors.Is(err, ErrGranteeNotMember) {
		t.Errorf("expected ErrGranteeNotMember, got %v", err)
	}

	if _, err := f.mgr.SetGrant(context.Background(), creator, c.ID, member.UserID, "superuser"); !errors.Is(err, role.ErrInvalidConnectionLevel) {
		t.Errorf("expected ErrInvalidConnectionLevel, got %v", err)
	}

	f.expectGet(c)
	f.mock.ExpectQuery(`INSERT INTO connection_permissions .+ ON CONFLICT \(connection_id, user_id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), c.ID, member.UserID, role.ConnectionEditor, creator.UserID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "granted_at"}).AddRow(uuid.NewString(), time.Now()))

	g, err := f.mgr.SetGrant(context.Background(), creator, c.ID, member.UserID, role.ConnectionEditor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.GrantedBy.UUID != creator.UserID || g.Level != role.ConnectionEditor {
		t.Errorf("unexpected grant: %+v", g)
	}
}

func TestManager_ManageRequiresOwner(t *testing.T) {
	f := newFixture(t)
	c := f.stored(t, uuid.New(), map[string]any{"a": 1})
	editorGrant := f.scope(uuid.New(), role.Editor)
	f.grants[[2]uuid.UUID{c.ID, editorGrant.UserID}] = role.ConnectionEditor

	f.expectGet(c)
	if _, err := f.mgr.ListGrants(context.Background(), editorGrant, c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("editor grant must not manage permissions, got %v", err)
	}

	owner := f.scope(uuid.New(), role.Viewer)
	f.grants[[2]uuid.UUID{c.ID, owner.UserID}] = role.ConnectionOwner
	f.expectGet(c)
	f.mock.ExpectExec(`DELETE FROM connection_permissions`).
		WithArgs(c.ID, editorGrant.UserID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := f.mgr.RevokeGrant(context.Background(), owner, c.ID, editorGrant.UserID); !errors.Is(err, ErrGrantNotFound) {
		t.Errorf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestGrantStore_GrantLevel(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()
	gs := NewGrantStore(NewDatastore(db))
	conn, user := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT level FROM connection_permissions`).
		WithArgs(conn, user).
		WillReturnRows(sqlmock.NewRows([]string{"level"}).AddRow("owner"))
	level, ok, err := gs.GrantLevel(context.Background(), conn, user)
	if err != nil || !ok || level != role.ConnectionOwner {
		t.Errorf("expected owner grant, got %q, %v, %v", level, ok, err)
	}

	mock.ExpectQuery(`SELECT level FROM connection_permissions`).
		WillReturnRows(sqlmock.NewRows([]string{"level"}))
	if _, ok, err := gs.GrantLevel(context.Background(), conn, user); ok || err != nil {
		t.Errorf("expected no grant, got %v, %v", ok, err)
	}
}
