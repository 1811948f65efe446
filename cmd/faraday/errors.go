package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/arthur-debert/faraday/types"
)

// CLIError represents a user-friendly CLI error with context and suggestions
type CLIError struct {
	Operation   string   // The operation that failed (e.g., "import", "export")
	Cause       string   // The underlying cause (e.g., "experiment not found")
	Details     string   // Additional technical details
	Suggestions []string // Helpful suggestions for the user
	Underlying  error    // Original error for debugging
}

// Error implements the error interface
func (e *CLIError) Error() string {
	var msg strings.Builder

	if e.Operation != "" {
		msg.WriteString(fmt.Sprintf("failed to %s", e.Operation))
	} else {
		msg.WriteString("operation failed")
	}

	if e.Cause != "" {
		msg.WriteString(fmt.Sprintf(": %s", e.Cause))
	}

	if e.Details != "" {
		msg.WriteString(fmt.Sprintf(" (%s)", e.Details))
	}

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n\nSuggestions:")
		for i, suggestion := range e.Suggestions {
			msg.WriteString(fmt.Sprintf("\n  %d. %s", i+1, suggestion))
		}
	}

	return msg.String()
}

// Unwrap returns the underlying error for error chain compatibility
func (e *CLIError) Unwrap() error {
	return e.Underlying
}

// NewNotFoundError creates an error for a missing experiment
func NewNotFoundError(operation, id string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("experiment %q not found", id),
		Suggestions: append(suggestions, "Run 'faraday list' to see experiment ids"),
		Underlying:  types.ErrNotFound,
	}
}

// NewConfigError creates an error for configuration issues
func NewConfigError(operation, issue string, suggestions ...string) *CLIError {
	return &CLIError{
		Operation:   operation,
		Cause:       fmt.Sprintf("configuration error: %s", issue),
		Suggestions: suggestions,
	}
}

// NewStoreError creates an error for service failures, describing the
// known error kinds in plain words
func NewStoreError(operation string, underlying error, suggestions ...string) *CLIError {
	cause := "operation failed"
	details := ""

	if underlying != nil {
		details = underlying.Error()

		switch {
		case errors.Is(underlying, types.ErrNotFound):
			cause = "experiment not found"
			suggestions = append(suggestions, "Run 'faraday list' to see experiment ids")
		case errors.Is(underlying, types.ErrReferenceColumnMissing):
			cause = "no reference column"
			suggestions = append(suggestions, "Name the baseline column 'Reference' (any column containing 'ref' also works)")
		case errors.Is(underlying, types.ErrMalformedInput):
			cause = "invalid data provided"
		case errors.Is(underlying, types.ErrStorageUnavailable):
			cause = "experiment store is unreadable"
		case errors.Is(underlying, types.ErrUnauthorized):
			cause = "invalid credentials"
		}
	}

	return &CLIError{
		Operation:   operation,
		Cause:       cause,
		Details:     details,
		Suggestions: suggestions,
		Underlying:  underlying,
	}
}
