package user

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account. Users are deactivated, never deleted.
type User struct {
	ID                 uuid.UUID
	Username           string
	Email              string
	PasswordHash       string
	IsActive           bool
	CurrentWorkspaceID uuid.NullUUID
	LastLogin          sql.NullTime
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// ListItem is a user row in an administrative listing.
type ListItem struct {
	User
	WorkspaceCount int
}

// Page is one page of a user listing.
type Page struct {
	Users      []*ListItem
	Total      int
	Page       int
	PageSize   int
	TotalPages int
}

// Admins is the set of system administrators, keyed by lowercased email.
type Admins map[string]struct{}

func NewAdmins(emails []string) Admins {
	a := make(Admins, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			a[e] = struct{}{}
		}
	}
	return a
}

// Contains reports whether email belongs to a system administrator.
func (a Admins) Contains(email string) bool {
	_, ok := a[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
