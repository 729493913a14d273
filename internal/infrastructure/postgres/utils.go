package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jhoicas/inventory-costing/internal/domain"
)

const (
	codeUniqueViolation  = "23505"
	codeLockNotAvailable = "55P03"
	codeDeadlockDetected = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func constraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.ConstraintName
	}
	return ""
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// isLockFailure verifica si venció lock_timeout (55P03) o hubo deadlock (40P01).
func isLockFailure(err error) bool {
	code := pgCode(err)
	return code == codeLockNotAvailable || code == codeDeadlockDetected
}

// wrap convierte fallas de lock sobre row en ContentionError y anota el resto con op.
func wrap(op, row string, err error) error {
	if err == nil {
		return nil
	}
	if isLockFailure(err) {
		return &domain.ContentionError{Key: row}
	}
	return fmt.Errorf("%s: %w", op, err)
}
