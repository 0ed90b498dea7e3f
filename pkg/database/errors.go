package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// ConstraintError names the database constraint an operation violated
// (unique email, duplicate membership, second device per user, ...).
type ConstraintError struct {
	Constraint string
	Code       string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("constraint violated: %s", e.Constraint)
}

// MapError translates Postgres integrity violations into a
// ConstraintError carrying the violated constraint's name. Other
// errors pass through unchanged.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514": // unique, foreign key, check
			return &ConstraintError{Constraint: pgErr.ConstraintName, Code: pgErr.Code}
		}
	}
	return err
}
