package crud

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/conduit-lang/revstore/internal/orm/query"
	"github.com/conduit-lang/revstore/internal/orm/validation"
)

// Driver error classes
var (
	// ErrUniqueViolation is returned when a unique constraint is violated
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrForeignKeyViolation is returned when a foreign key constraint is violated
	ErrForeignKeyViolation = errors.New("foreign key constraint violation")

	// ErrCheckViolation is returned when a check constraint is violated
	ErrCheckViolation = errors.New("check constraint violation")

	// ErrNotNullViolation is returned when a NOT NULL column receives NULL
	ErrNotNullViolation = errors.New("not null constraint violation")
)

// MySQL server error numbers
const (
	erBadNullError         = 1048
	erDupEntry             = 1062
	erRowIsReferenced      = 1451
	erNoReferencedRow      = 1452
	erCheckConstraintFails = 3819
)

// ConvertDBError tags MySQL constraint failures with a class sentinel. The
// original error, usually a *conn.ExecutionError, stays in the chain.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return err
	}

	switch myErr.Number {
	case erDupEntry:
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	case erRowIsReferenced, erNoReferencedRow:
		return fmt.Errorf("%w: %w", ErrForeignKeyViolation, err)
	case erCheckConstraintFails:
		return fmt.Errorf("%w: %w", ErrCheckViolation, err)
	case erBadNullError:
		return fmt.Errorf("%w: %w", ErrNotNullViolation, err)
	}
	return err
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsForeignKeyViolation returns true if the error is ErrForeignKeyViolation
func IsForeignKeyViolation(err error) bool {
	return errors.Is(err, ErrForeignKeyViolation)
}

// IsValidationFailed returns true if a body or row did not match its shape
func IsValidationFailed(err error) bool {
	return errors.Is(err, validation.ErrValidationFailed)
}

// IsIntegrityError returns true if ids the caller relied on could not be resolved
func IsIntegrityError(err error) bool {
	return errors.Is(err, query.ErrIntegrity)
}
