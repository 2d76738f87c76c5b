package handler

import (
	"errors"
	"net/http"
	"time"

	"vizspace/internal/account"
	"vizspace/internal/auth"
	"vizspace/internal/jwtauth"
	"vizspace/internal/user"

	"github.com/sirupsen/logrus"
)

// AccountHandler handles registration, login and the caller's own account.
type AccountHandler struct {
	accounts *account.Service
	users    *user.Manager
	logger   *logrus.Logger
}

func NewAccountHandler(accounts *account.Service, users *user.Manager, logger *logrus.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, users: users, logger: logger}
}

// userResponse never carries the password digest.
type userResponse struct {
	ID                 string     `json:"id"`
	Username           string     `json:"username"`
	Email              string     `json:"email"`
	IsActive           bool       `json:"is_active"`
	CurrentWorkspaceID *string    `json:"current_workspace_id"`
	LastLogin          *time.Time `json:"last_login"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toUserResponse(u *user.User) userResponse {
	resp := userResponse{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
	if u.CurrentWorkspaceID.Valid {
		id := u.CurrentWorkspaceID.UUID.String()
		resp.CurrentWorkspaceID = &id
	}
	if u.LastLogin.Valid {
		t := u.LastLogin.Time
		resp.LastLogin = &t
	}
	return resp
}

type registerRequest struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type registerResponse struct {
	User      userResponse      `json:"user"`
	Workspace workspaceResponse `json:"workspace"`
	*jwtauth.Token
}

// Register handles POST /api/auth/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	reg, err := h.accounts.Register(r.Context(), user.CreateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.WithField("user_id", reg.User.ID).Info("user registered")
	writeJSON(w, http.StatusCreated, registerResponse{
		User:      toUserResponse(reg.User),
		Workspace: toWorkspaceResponse(reg.Workspace),
		Token:     reg.Token,
	})
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/auth/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	_, token, err := h.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, user.ErrInvalidCredentials):
			w.Header().Set("WWW-Authenticate", "Bearer")
			auth.WriteJSONError(w, http.StatusUnauthorized, "incorrect username or password", "authentication_error")
		case errors.Is(err, user.ErrInactive):
			auth.WriteForbidden(w)
		default:
			writeError(w, h.logger, err)
		}
		return
	}

	writeJSON(w, http.StatusOK, token)
}

// Me handles GET /api/auth/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	u, err := h.users.GetByID(r.Context(), p.UserID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(u))
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,min=6,max=72"`
}

// ChangePassword handles POST /api/users/me/password
func (h *AccountHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOf(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.users.ChangePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
