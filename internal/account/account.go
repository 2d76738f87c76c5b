// Package account registers users and issues their access tokens.
package account

import (
	"context"
	"database/sql"
	"fmt"

	"vizspace/internal/database"
	"vizspace/internal/jwtauth"
	"vizspace/internal/password"
	"vizspace/internal/user"
	"vizspace/internal/workspace"

	"github.com/google/uuid"
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID uuid.UUID) (*jwtauth.Token, error)
}

// WorkspaceCreator creates a workspace inside an existing transaction.
type WorkspaceCreator interface {
	CreateInTx(ctx context.Context, tx database.DBTX, in workspace.CreateInput) (*workspace.Created, error)
}

// Registered is the outcome of a sign-up.
type Registered struct {
	User      *user.User
	Workspace *workspace.Workspace
	Token     *jwtauth.Token
}

// Service owns sign-up and login.
type Service struct {
	db         database.TxBeginner
	hasher     password.Hasher
	workspaces WorkspaceCreator
	users      *user.Manager
	tokens     TokenIssuer
}

func NewService(db database.TxBeginner, hasher password.Hasher, workspaces WorkspaceCreator, users *user.Manager, tokens TokenIssuer) *Service {
	return &Service{db: db, hasher: hasher, workspaces: workspaces, users: users, tokens: tokens}
}

// PersonalWorkspaceName is the name of the workspace every new user starts with.
func PersonalWorkspaceName(username string) string {
	return username + "'s Workspace"
}

// Register creates the user, their personal workspace with them as admin, and
// sets it as their default, all in one transaction.
func (s *Service) Register(ctx context.Context, in user.CreateInput) (*Registered, error) {
	var out Registered
	err := database.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		ds := user.NewDatastore(tx)
		u, err := user.NewManager(ds, s.hasher).Create(ctx, in)
		if err != nil {
			return err
		}

		created, err := s.workspaces.CreateInTx(ctx, tx, workspace.CreateInput{
			Name:      PersonalWorkspaceName(u.Username),
			CreatorID: u.ID,
		})
		if err != nil {
			return err
		}

		current := uuid.NullUUID{UUID: created.Workspace.ID, Valid: true}
		if _, err := ds.SetCurrentWorkspace(ctx, u.ID, current); err != nil {
			return fmt.Errorf("failed to set default workspace: %w", err)
		}
		u.CurrentWorkspaceID = current

		out.User = u
		out.Workspace = created.Workspace
		return nil
	})
	if err != nil {
		return nil, err
	}

	tok, err := s.tokens.Issue(out.User.ID)
	if err != nil {
		return nil, err
	}
	out.Token = tok
	return &out, nil
}

// Login checks credentials and returns a fresh access token.
func (s *Service) Login(ctx context.Context, username, pw string) (*user.User, *jwtauth.Token, error) {
	u, err := s.users.Authenticate(ctx, username, pw)
	if err != nil {
		return nil, nil, err
	}
	tok, err := s.tokens.Issue(u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, tok, nil
}
