package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ks-enterprise/ks-admin/internal/shared"
)

// PostgreSQL SQLSTATE codes translated into domain errors.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeCheckViolation       = "23514"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// MapError converts driver errors into the shared taxonomy. Errors it does not
// recognise are returned unchanged and surface as store failures.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	var mapped *shared.Error
	if errors.As(err, &mapped) {
		return err
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return shared.Conflict("Record already exists")
	case codeForeignKeyViolation:
		return shared.Conflict("Record is referenced by other records")
	case codeCheckViolation:
		if pgErr.Message != "" && pgErr.ConstraintName == "" {
			return shared.Conflict(pgErr.Message)
		}
		return shared.Validation("Record violates constraint %s", pgErr.ConstraintName)
	case codeSerializationFailure, codeDeadlockDetected:
		return &retryableConflict{
			conflict: shared.Conflict("Concurrent modification detected, please retry"),
			cause:    pgErr,
		}
	}
	return err
}

// retryableConflict is the 409 for a lost serialization race. It keeps the
// driver error reachable so IsRetryable still matches after mapping.
type retryableConflict struct {
	conflict error
	cause    *pgconn.PgError
}

func (e *retryableConflict) Error() string { return e.conflict.Error() }
func (e *retryableConflict) Unwrap() []error { return []error{e.conflict, e.cause} }

// IsUniqueViolation reports whether err is a unique constraint failure on constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsRetryable reports whether err is a serialization failure or deadlock that
// a fresh transaction may not hit again.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}

// IsForeignKeyViolation reports whether err is a foreign key failure.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == codeForeignKeyViolation
}
