package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"vizspace/internal/jwtauth"
	"vizspace/internal/user"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers map[uuid.UUID]*user.User

func (f fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	u, ok := f[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type failingUsers struct{}

func (failingUsers) GetByID(context.Context, uuid.UUID) (*user.User, error) {
	return nil, errors.New("connection refused")
}

func newAuthority(t *testing.T) *jwtauth.Authority {
	t.Helper()
	a, err := jwtauth.New([]byte("0123456789abcdef0123456789abcdef"), time.Minute)
	require.NoError(t, err)
	return a
}

func TestTokenAuthenticator_Authenticate(t *testing.T) {
	tokens := newAuthority(t)
	active := &user.User{ID: uuid.New(), Username: "alice", Email: "alice@test.com", IsActive: true}
	inactive := &user.User{ID: uuid.New(), Username: "bob", IsActive: false}
	users := fakeUsers{active.ID: active, inactive.ID: inactive}
	a := NewTokenAuthenticator(tokens, users)

	tok, err := tokens.Issue(active.ID)
	require.NoError(t, err)

	p, err := a.Authenticate(context.Background(), tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, active.ID, p.UserID)
	assert.Equal(t, "alice", p.Username)
	assert.Equal(t, "alice@test.com", p.Email)

	tok, _ = tokens.Issue(inactive.ID)
	_, err = a.Authenticate(context.Background(), tok.AccessToken)
	assert.ErrorIs(t, err, ErrInactiveUser)

	tok, _ = tokens.Issue(uuid.New())
	_, err = a.Authenticate(context.Background(), tok.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = a.Authenticate(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenAuthenticator_Authenticate_StoreError(t *testing.T) {
	tokens := newAuthority(t)
	a := NewTokenAuthenticator(tokens, failingUsers{})

	tok, _ := tokens.Issue(uuid.New())
	_, err := a.Authenticate(context.Background(), tok.AccessToken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}
