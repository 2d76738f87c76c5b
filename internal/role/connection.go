package role

import (
	"strings"

	"vizspace/internal/apperr"
)

// ConnectionLevel is a per-connection grant layered on top of the workspace role.
type ConnectionLevel string

const (
	ConnectionOwner  ConnectionLevel = "owner"
	ConnectionEditor ConnectionLevel = "editor"
	ConnectionViewer ConnectionLevel = "viewer"
)

// ErrInvalidConnectionLevel is returned for an unknown grant level.
var ErrInvalidConnectionLevel = apperr.Validation("invalid permission level: must be one of owner, editor, viewer")

var connectionLevels = map[ConnectionLevel]int{
	ConnectionOwner:  3,
	ConnectionEditor: 2,
	ConnectionViewer: 1,
}

func (l ConnectionLevel) Level() int {
	return connectionLevels[l]
}

func (l ConnectionLevel) Valid() bool {
	return l.Level() > 0
}

func (l ConnectionLevel) String() string {
	return string(l)
}

// ParseConnectionLevel normalizes and validates a grant level literal.
func ParseConnectionLevel(s string) (ConnectionLevel, error) {
	l := ConnectionLevel(strings.ToLower(strings.TrimSpace(s)))
	if !l.Valid() {
		return "", ErrInvalidConnectionLevel
	}
	return l, nil
}

// GrantSatisfies reports whether a granted level meets the required level.
func GrantSatisfies(granted, required ConnectionLevel) bool {
	if !granted.Valid() || !required.Valid() {
		return false
	}
	return granted.Level() >= required.Level()
}
