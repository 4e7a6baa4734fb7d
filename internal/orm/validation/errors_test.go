package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ValidationError
		contains []string
	}{
		{
			name:     "empty",
			err:      &ValidationError{},
			contains: []string{"validation failed"},
		},
		{
			name: "single field",
			err: &ValidationError{Errors: []FieldError{
				{Field: "[0].title", Validator: "string", Value: 12},
			}},
			contains: []string{"validation failed: [0].title: expected string, got 12 (int)"},
		},
		{
			name: "several fields",
			err: &ValidationError{Errors: []FieldError{
				{Field: "[0].title", Validator: "string", Value: nil},
				{Field: "[1].price", Validator: "number", Value: "ten"},
			}},
			contains: []string{
				"  - [0].title: expected string, got null",
				`  - [1].price: expected number, got "ten"`,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("expected %q in %q", want, msg)
				}
			}
		})
	}
}

func TestFieldError_Error(t *testing.T) {
	fe := FieldError{Validator: "object", Value: Undefined}
	if got := fe.Error(); got != "<root>: expected object, got undefined" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestValidationError_Is(t *testing.T) {
	var err error = &ValidationError{Errors: []FieldError{{Field: "id", Validator: "number"}}}
	wrapped := fmt.Errorf("create Book: %w", err)

	if !errors.Is(wrapped, ErrValidationFailed) {
		t.Error("expected wrapped error to match ErrValidationFailed")
	}
	if !IsValidationError(wrapped) {
		t.Error("expected IsValidationError to see through wrapping")
	}
	if IsValidationError(errors.New("validation failed")) {
		t.Error("plain errors are not validation errors")
	}
}

func TestValidationError_First(t *testing.T) {
	if _, ok := (&ValidationError{}).First(); ok {
		t.Error("expected no first error")
	}

	ve := &ValidationError{Errors: []FieldError{{Field: "a"}, {Field: "b"}}}
	first, ok := ve.First()
	if !ok || first.Field != "a" {
		t.Errorf("expected field a, got %+v", first)
	}
}

func TestValidationError_MarshalJSON(t *testing.T) {
	ve := &ValidationError{Errors: []FieldError{{Field: "[0].title", Validator: "string", Value: 3}}}

	data, err := json.Marshal(ve)
	if err != nil {
		t.Fatalf("unexpected error %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if decoded["error"] != "validation_failed" {
		t.Errorf("expected error validation_failed, got %v", decoded["error"])
	}
	fields, ok := decoded["fields"].([]any)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected one field, got %v", decoded["fields"])
	}
	field := fields[0].(map[string]any)
	if field["field"] != "[0].title" || field["validator"] != "string" {
		t.Errorf("unexpected field %v", field)
	}
}
