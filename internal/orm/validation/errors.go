package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrValidationFailed is matched by every *ValidationError through errors.Is
var ErrValidationFailed = errors.New("validation failed")

// ValidationError reports the shape mismatches found while decoding a value.
// Decoding stops at the first failure, so Errors normally holds one entry.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the error interface
func (ve *ValidationError) Error() string {
	if len(ve.Errors) == 0 {
		return "validation failed"
	}
	if len(ve.Errors) == 1 {
		return fmt.Sprintf("validation failed: %s", ve.Errors[0].Error())
	}

	messages := make([]string, 0, len(ve.Errors))
	for _, fe := range ve.Errors {
		messages = append(messages, "  - "+fe.Error())
	}
	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// Is lets errors.Is(err, ErrValidationFailed) match
func (ve *ValidationError) Is(target error) bool {
	return target == ErrValidationFailed
}

// First returns the first failing field, if any
func (ve *ValidationError) First() (FieldError, bool) {
	if len(ve.Errors) == 0 {
		return FieldError{}, false
	}
	return ve.Errors[0], true
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationError) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string       `json:"error"`
		Fields []FieldError `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Errors,
	})
}

// FieldError is a single mismatch: the path of the offending value, the name
// of the validator that rejected it and the value itself.
type FieldError struct {
	Field     string `json:"field"`
	Validator string `json:"validator"`
	Value     any    `json:"value"`
}

// Error implements the error interface
func (fe FieldError) Error() string {
	field := fe.Field
	if field == "" {
		field = "<root>"
	}
	return fmt.Sprintf("%s: expected %s, got %s", field, fe.Validator, describe(fe.Value))
}

// IsValidationError returns true if err is or wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func describe(v any) string {
	if v == nil {
		return "null"
	}
	if v == Undefined {
		return "undefined"
	}
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v (%T)", v, v)
}
