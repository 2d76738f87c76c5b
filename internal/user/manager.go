package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"vizspace/internal/apperr"
	"vizspace/internal/database"
	"vizspace/internal/password"
)

// Domain errors
var (
	ErrNotFound           = apperr.NotFound("user not found")
	ErrUsernameTaken      = apperr.Conflict("username already registered")
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrInvalidUsername    = apperr.Validation("username must be between 3 and 50 characters")
	ErrInvalidEmail       = apperr.Validation("invalid email")
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInactive           = errors.New("user account is inactive")
	ErrWrongPassword      = apperr.Validation("current password is incorrect")
	ErrInvalidPage        = apperr.Validation("page must be at least 1 and page_size between 1 and 100")
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Manager handles business logic for users.
type Manager struct {
	ds     *Datastore
	hasher password.Hasher
}

// NewManager creates a new user manager.
func NewManager(ds *Datastore, hasher password.Hasher) *Manager {
	return &Manager{ds: ds, hasher: hasher}
}

// CreateInput is the data needed to register an account.
type CreateInput struct {
	Username string
	Email    string
	Password string
}

// Create registers a new active user. Duplicate usernames and emails are
// reported from the unique constraints.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*User, error) {
	username := strings.TrimSpace(in.Username)
	if len(username) < 3 || len(username) > 50 {
		return nil, ErrInvalidUsername
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	digest, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
		IsActive:     true,
	}
	if err := m.ds.Create(ctx, u); err != nil {
		switch {
		case database.IsUniqueViolation(err, constraintUsername):
			return nil, ErrUsernameTaken
		case database.IsUniqueViolation(err, constraintEmail):
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by ID.
func (m *Manager) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := m.ds.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, ignoring case.
func (m *Manager) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := m.ds.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// Authenticate checks credentials and records the login.
// Unknown usernames and wrong passwords both yield ErrInvalidCredentials.
func (m *Manager) Authenticate(ctx context.Context, username, pw string) (*User, error) {
	u, err := m.ds.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if !m.hasher.Verify(pw, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, ErrInactive
	}

	if err := m.ds.TouchLastLogin(ctx, u.ID); err != nil {
		return nil, fmt.Errorf("failed to record login: %w", err)
	}
	return u, nil
}

// ChangePassword replaces the password after checking the current one.
func (m *Manager) ChangePassword(ctx context.Context, id uuid.UUID, current, next string) error {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !m.hasher.Verify(current, u.PasswordHash) {
		return ErrWrongPassword
	}

	digest, err := m.hasher.Hash(next)
	if err != nil {
		return err
	}

	rows, err := m.ds.UpdatePassword(ctx, id, digest)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetCurrentWorkspace changes the user's default workspace.
func (m *Manager) SetCurrentWorkspace(ctx context.Context, id, workspaceID uuid.UUID) error {
	rows, err := m.ds.SetCurrentWorkspace(ctx, id, uuid.NullUUID{UUID: workspaceID, Valid: true})
	if err != nil {
		return fmt.Errorf("failed to set current workspace: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDefaultWorkspaceIfUnset sets the default workspace only when the user has none.
func (m *Manager) SetDefaultWorkspaceIfUnset(ctx context.Context, id, workspaceID uuid.UUID) error {
	if _, err := m.ds.SetCurrentWorkspaceIfUnset(ctx, id, workspaceID); err != nil {
		return fmt.Errorf("failed to set default workspace: %w", err)
	}
	return nil
}

// Deactivate disables a user. Deactivated users cannot authenticate.
func (m *Manager) Deactivate(ctx context.Context, id uuid.UUID) error {
	rows, err := m.ds.SetActive(ctx, id, false)
	if err != nil {
		return fmt.Errorf("failed to deactivate user: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListInput selects a page of users. Page and PageSize of zero take defaults.
type ListInput struct {
	Page     int
	PageSize int
	Search   string
	IsActive *bool
}

// List returns users matching in, newest first.
func (m *Manager) List(ctx context.Context, in ListInput) (*Page, error) {
	if in.Page == 0 {
		in.Page = 1
	}
	if in.PageSize == 0 {
		in.PageSize = DefaultPageSize
	}
	if in.Page < 1 || in.PageSize < 1 || in.PageSize > MaxPageSize {
		return nil, ErrInvalidPage
	}

	f := ListFilter{Limit: in.PageSize, Offset: (in.Page - 1) * in.PageSize}
	if search := strings.TrimSpace(in.Search); search != "" {
		f.Pattern = "%" + escapeLike(search) + "%"
	}
	if in.IsActive != nil {
		f.IsActive = sql.NullBool{Bool: *in.IsActive, Valid: true}
	}

	total, err := m.ds.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	users, err := m.ds.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return &Page{
		Users:      users,
		Total:      total,
		Page:       in.Page,
		PageSize:   in.PageSize,
		TotalPages: (total + in.PageSize - 1) / in.PageSize,
	}, nil
}

// escapeLike makes s match literally inside an ILIKE pattern.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// UpdateInput changes only the non-nil fields.
type UpdateInput struct {
	Email    *string
	IsActive *bool
}

// Update applies in to the user and returns the result.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*User, error) {
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" || !strings.Contains(email, "@") {
			return nil, ErrInvalidEmail
		}
		rows, err := m.ds.UpdateEmail(ctx, id, email)
		if err != nil {
			if database.IsUniqueViolation(err, constraintEmail) {
				return nil, ErrEmailTaken
			}
			return nil, fmt.Errorf("failed to update email: %w", err)
		}
		if rows == 0 {
			return nil, ErrNotFound
		}
	}
	if in.IsActive != nil {
		rows, err := m.ds.SetActive(ctx, id, *in.IsActive)
		if err != nil {
			return nil, fmt.Errorf("failed to update user status: %w", err)
		}
		if rows == 0 {
			return nil, ErrNotFound
		}
	}
	return m.GetByID(ctx, id)
}

// ResetPassword replaces the password without checking the current one.
func (m *Manager) ResetPassword(ctx context.Context, id uuid.UUID, next string) error {
	digest, err := m.hasher.Hash(next)
	if err != nil {
		return err
	}
	rows, err := m.ds.UpdatePassword(ctx, id, digest)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
