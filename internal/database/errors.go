package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err was caused by a unique constraint.
// When constraints are given, the violated constraint must be one of them.
func IsUniqueViolation(err error, constraints ...string) bool {
	return hasCode(err, codeUniqueViolation, constraints)
}

// IsForeignKeyViolation reports whether err was caused by a foreign key.
func IsForeignKeyViolation(err error, constraints ...string) bool {
	return hasCode(err, codeForeignKeyViolation, constraints)
}

func hasCode(err error, code string, constraints []string) bool {
	if err == nil {
		return false
	}

	var (
		got        string
		constraint string
	)

	var pgErr *pgconn.PgError
	var pqErr *pq.Error
	switch {
	case errors.As(err, &pgErr):
		got, constraint = pgErr.Code, pgErr.ConstraintName
	case errors.As(err, &pqErr):
		got, constraint = string(pqErr.Code), pqErr.Constraint
	default:
		return false
	}

	if got != code {
		return false
	}
	if len(constraints) == 0 {
		return true
	}
	for _, c := range constraints {
		if c == constraint {
			return true
		}
	}
	return false
}
