package query

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity is matched by every *IntegrityError
	ErrIntegrity = errors.New("integrity violation")

	// ErrNoExecutor is returned by terminal operations on a relation without a connection
	ErrNoExecutor = errors.New("relation has no executor")
)

// IntegrityError reports that rows a caller relied on could not be resolved.
// It signals a data or caller inconsistency and is not meant to be retried.
type IntegrityError struct {
	Op      string
	Message string
	Missing []int64
}

// Error implements the error interface
func (e *IntegrityError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: %s (missing ids: %v)", e.Op, e.Message, e.Missing)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Is lets errors.Is(err, ErrIntegrity) match
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
