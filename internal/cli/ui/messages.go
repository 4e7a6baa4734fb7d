package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Success writes a green check line
func Success(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", message)
}

// Warning writes a yellow warning line
func Warning(w io.Writer, message string, noColor bool) {
	yellow := color.New(color.FgYellow, color.Bold)
	if noColor {
		yellow.DisableColor()
	}
	yellow.Fprintf(w, "⚠ %s\n", message)
}

// UnknownModelError names a model missing from the schema and suggests the
// closest known names
type UnknownModelError struct {
	Name        string
	Suggestions []string
}

// Error implements the error interface
func (e *UnknownModelError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("unknown model %q", e.Name)
	}
	return fmt.Sprintf("unknown model %q, did you mean: %s?", e.Name, strings.Join(e.Suggestions, ", "))
}
