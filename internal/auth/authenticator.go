package auth

import (
	"context"
	"errors"
	"fmt"

	"vizspace/internal/jwtauth"
	"vizspace/internal/user"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers bad signatures, expiry, wrong token type and unknown users.
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInactiveUser = errors.New("user account is inactive")
)

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	UserID             uuid.UUID
	Username           string
	Email              string
	CurrentWorkspaceID uuid.NullUUID
}

// Authenticator turns a bearer token into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Principal, error)
}

// TokenVerifier checks an access token's signature and claims.
type TokenVerifier interface {
	Verify(token string) (*jwtauth.Claims, error)
}

// UserLoader fetches the account named by a token.
type UserLoader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// TokenAuthenticator verifies a JWT and loads the current user for every request,
// so deactivation takes effect before the token expires.
type TokenAuthenticator struct {
	tokens TokenVerifier
	users  UserLoader
}

func NewTokenAuthenticator(tokens TokenVerifier, users UserLoader) *TokenAuthenticator {
	return &TokenAuthenticator{tokens: tokens, users: users}
}

func (a *TokenAuthenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	u, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !u.IsActive {
		return nil, ErrInactiveUser
	}

	return &Principal{
		UserID:             u.ID,
		Username:           u.Username,
		Email:              u.Email,
		CurrentWorkspaceID: u.CurrentWorkspaceID,
	}, nil
}
