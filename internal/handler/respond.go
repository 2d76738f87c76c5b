package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"vizspace/internal/apperr"
	"vizspace/internal/auth"
	"vizspace/internal/middleware"
	"vizspace/internal/tenant"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// invitationFailedMessage is sent for every rejected invitation token.
const invitationFailedMessage = "invalid or expired invitation"

// validate is shared because it caches struct parsing.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

var (
	errInvalidJSON             = apperr.Validation("invalid JSON")
	errInvalidConnectionFilter = apperr.Validation("invalid connection_id")
)

// decodeJSON reads and validates the request body into v.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return errInvalidJSON
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return apperr.Validation(validationMessage(verrs[0]))
		}
		return fmt.Errorf("failed to validate request: %w", err)
	}
	return nil
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

// writeError maps a domain error to its HTTP response. Unclassified and
// security errors are logged and hidden behind a generic 500.
func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		auth.WriteJSONError(w, http.StatusBadRequest, apperr.Message(err), "invalid_request_error")
	case apperr.KindInvitation:
		auth.WriteJSONError(w, http.StatusBadRequest, invitationFailedMessage, "invalid_request_error")
	case apperr.KindConflict:
		auth.WriteJSONError(w, http.StatusConflict, apperr.Message(err), "conflict_error")
	case apperr.KindNotFound:
		auth.WriteJSONError(w, http.StatusNotFound, apperr.Message(err), "not_found_error")
	case apperr.KindGone:
		auth.WriteJSONError(w, http.StatusGone, apperr.Message(err), "gone_error")
	case apperr.KindSecurity:
		logger.WithError(err).Error("security check failed")
		auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", "server_error")
	default:
		logger.WithError(err).Error("request failed")
		auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", "server_error")
	}
}

// scopeOf returns the scope attached by the workspace guard.
func scopeOf(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	s, ok := tenant.FromContext(r.Context())
	if !ok {
		middleware.WriteNotFound(w)
	}
	return s, ok
}

func principalOf(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		auth.WriteUnauthorized(w)
	}
	return p, ok
}

// pathID parses a uuid path value. Malformed ids look like missing ones.
func pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		middleware.WriteNotFound(w)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return fallback
	}
	return v
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func nullableID(id uuid.NullUUID) *string {
	if !id.Valid {
		return nil
	}
	s := id.UUID.String()
	return &s
}
