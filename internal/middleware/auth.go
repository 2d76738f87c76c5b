// Package middleware provides the HTTP middleware chain: authentication,
// workspace scoping, metrics and request logging.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"vizspace/internal/auth"

	"github.com/sirupsen/logrus"
)

type contextKey string

// PrincipalContextKey holds the authenticated caller.
const PrincipalContextKey contextKey = "principal"

// PrincipalFromContext returns the caller attached by RequireAuth.
func PrincipalFromContext(ctx context.Context) (*auth.Principal, bool) {
	p, ok := ctx.Value(PrincipalContextKey).(*auth.Principal)
	return p, ok
}

// WithPrincipal attaches p to ctx.
func WithPrincipal(ctx context.Context, p *auth.Principal) context.Context {
	return context.WithValue(ctx, PrincipalContextKey, p)
}

// RequireAuth authenticates the bearer token and attaches the Principal.
//
// Error responses:
//   - 401 Unauthorized: missing, malformed, expired or unknown token
//   - 403 Forbidden: the account is inactive
//   - 500 Internal Server Error: the user could not be loaded
func RequireAuth(authn auth.Authenticator, logger *logrus.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractBearerToken(r)
			if err != nil {
				auth.WriteUnauthorized(w)
				return
			}

			p, err := authn.Authenticate(r.Context(), token)
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrInvalidToken):
				auth.WriteUnauthorized(w)
				return
			case errors.Is(err, auth.ErrInactiveUser):
				auth.WriteForbidden(w)
				return
			default:
				logger.WithError(err).Error("authentication failed")
				auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", "server_error")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
