package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// wrapPgError enriches a database error with the failing operation's name
// and, for the constraint violations this schema can actually raise,
// a clearer message than the raw driver error.
func wrapPgError(op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.CheckViolation:
			return fmt.Errorf("%s: violates %s: %w", op, pgErr.ConstraintName, err)
		case pgerrcode.UniqueViolation:
			return fmt.Errorf("%s: duplicate key on %s: %w", op, pgErr.ConstraintName, err)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
