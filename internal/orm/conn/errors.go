package conn

import (
	"errors"
	"fmt"
)

// ExecutionError annotates a driver failure with the statement that caused it
type ExecutionError struct {
	SQL      string
	Bindings []any
	Err      error
}

// Error implements the error interface
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%v (sql: %s, bindings: %v)", e.Err, e.SQL, e.Bindings)
}

// Unwrap returns the driver error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// AsExecutionError extracts the statement context from err, if any
func AsExecutionError(err error) (*ExecutionError, bool) {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee, true
	}
	return nil, false
}
