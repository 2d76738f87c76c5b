// Package invitation issues and redeems workspace invitations. Invitations
// are signed tokens; nothing is stored until one is redeemed.
package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"vizspace/internal/apperr"
	"vizspace/internal/membership"
	"vizspace/internal/role"
	"vizspace/internal/workspace"
)

const (
	// TokenType marks invitation tokens so access tokens cannot be redeemed.
	TokenType = "workspace_invitation"
	// TTL is how long an invitation stays redeemable.
	TTL = 7 * 24 * time.Hour
)

var (
	ErrInvalid      = apperr.New(apperr.KindInvitation, "invalid invitation")
	ErrExpired      = apperr.New(apperr.KindInvitation, "invitation has expired")
	ErrMissingKey   = apperr.New(apperr.KindSecurity, "invitation signing key is not configured")
	ErrAlreadyUsed  = apperr.Conflict("invitation has already been used")
	ErrInvalidEmail = apperr.Validation("invalid email")
)

// Claims is the signed content of an invitation.
type Claims struct {
	Type        string    `json:"type"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Email       string    `json:"email"`
	Role        role.Role `json:"role"`
	InvitedBy   uuid.UUID `json:"invited_by"`
	jwt.RegisteredClaims
}

// Invitation is an issued token.
type Invitation struct {
	Token     string
	ExpiresAt time.Time
	Claims    *Claims
}

// Result describes the membership created by a redemption.
type Result struct {
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Name        string    `json:"workspace_name"`
	Slug        string    `json:"workspace_slug"`
	Role        role.Role `json:"role"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Workspaces looks up the invited workspace.
type Workspaces interface {
	GetByID(ctx context.Context, id uuid.UUID) (*workspace.Workspace, error)
}

// Members creates the membership.
type Members interface {
	Add(ctx context.Context, m *membership.Member) error
}

// CapacityChecker rejects redemptions into full workspaces.
type CapacityChecker interface {
	EnsureMemberCapacity(ctx context.Context, workspaceID uuid.UUID) error
}

// Service signs and redeems invitations. The zero value refuses to work.
type Service struct {
	key        []byte
	workspaces Workspaces
	members    Members
	capacity   CapacityChecker
	ledger     Ledger
	now        func() time.Time
}

type Option func(*Service)

// WithLedger makes every invitation single-use.
func WithLedger(l Ledger) Option {
	return func(s *Service) { s.ledger = l }
}

// WithCapacity enforces a member limit on redemption.
func WithCapacity(c CapacityChecker) Option {
	return func(s *Service) { s.capacity = c }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an invitation service signing with key (HS256).
func NewService(key []byte, workspaces Workspaces, members Members, opts ...Option) (*Service, error) {
	if len(key) == 0 {
		return nil, ErrMissingKey
	}
	s := &Service{
		key:        append([]byte(nil), key...),
		workspaces: workspaces,
		members:    members,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs an invitation for email to join workspaceID with r.
func (s *Service) Issue(workspaceID uuid.UUID, email string, r role.Role, invitedBy uuid.UUID) (*Invitation, error) {
	if s == nil || len(s.key) == 0 {
		return nil, ErrMissingKey
	}
	if !r.Valid() {
		return nil, role.ErrInvalidRole
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return nil, ErrInvalidEmail
	}

	now := s.now()
	expires := now.Add(TTL)
	claims := &Claims{
		Type:        TokenType,
		WorkspaceID: workspaceID,
		Email:       email,
		Role:        r,
		InvitedBy:   invitedBy,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign invitation: %w", err)
	}

	return &Invitation{Token: token, ExpiresAt: expires, Claims: claims}, nil
}

// Decode verifies the token and returns its claims.
func (s *Service) Decode(token string) (*Claims, error) {
	if s == nil || len(s.key) == 0 {
		return nil, ErrMissingKey
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}

	if claims.Type != TokenType ||
		claims.WorkspaceID == uuid.Nil ||
		claims.InvitedBy == uuid.Nil ||
		claims.Email == "" ||
		!claims.Role.Valid() {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Redeem turns a token into a membership for the user it was sent to.
func (s *Service) Redeem(ctx context.Context, token string, userID uuid.UUID, userEmail string) (*Result, error) {
	claims, err := s.Decode(token)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(claims.Email, strings.TrimSpace(userEmail)) {
		return nil, ErrInvalid
	}

	ws, err := s.workspaces.GetByID(ctx, claims.WorkspaceID)
	if err != nil {
		return nil, err
	}

	if s.capacity != nil {
		if err := s.capacity.EnsureMemberCapacity(ctx, ws.ID); err != nil {
			return nil, err
		}
	}

	if s.ledger != nil {
		fresh, err := s.ledger.Consume(ctx, claims.ID, claims.ExpiresAt.Time)
		if err != nil {
			return nil, fmt.Errorf("failed to consume invitation: %w", err)
		}
		if !fresh {
			return nil, ErrAlreadyUsed
		}
	}

	member := &membership.Member{
		WorkspaceID: ws.ID,
		UserID:      userID,
		Role:        claims.Role,
		InvitedBy:   uuid.NullUUID{UUID: claims.InvitedBy, Valid: true},
	}
	if err := s.members.Add(ctx, member); err != nil {
		if s.ledger != nil && !errors.Is(err, membership.ErrAlreadyMember) {
			_ = s.ledger.Release(ctx, claims.ID)
		}
		return nil, err
	}

	return &Result{
		WorkspaceID: ws.ID,
		Name:        ws.Name,
		Slug:        ws.Slug,
		Role:        member.Role,
		JoinedAt:    member.JoinedAt,
	}, nil
}

// Link builds the acceptance URL the invitee opens.
func Link(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/accept-invite?token=" + token
}
