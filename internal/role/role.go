// Package role defines the workspace role hierarchy and the connection
// permission levels. Every permission decision compares levels through this
// package.
package role

import (
	"strings"

	"vizspace/internal/apperr"
)

// Role is a workspace-scoped role held through a membership.
type Role string

const (
	Admin  Role = "admin"
	Editor Role = "editor"
	Viewer Role = "viewer"
)

// ErrInvalidRole is returned when a role literal is not admin, editor or viewer.
var ErrInvalidRole = apperr.Validation("invalid role: must be one of admin, editor, viewer")

var roleLevels = map[Role]int{
	Admin:  3,
	Editor: 2,
	Viewer: 1,
}

// Level returns the numeric level of the role, 0 for unknown roles.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	return r.Level() > 0
}

func (r Role) String() string {
	return string(r)
}

// Parse normalizes and validates a role literal.
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Satisfies reports whether a held role meets the required role.
// Unknown roles never satisfy anything.
func Satisfies(held, required Role) bool {
	if !held.Valid() || !required.Valid() {
		return false
	}
	return held.Level() >= required.Level()
}

// All returns the roles from highest to lowest.
func All() []Role {
	return []Role{Admin, Editor, Viewer}
}
