// Package validation checks experiment tables before they are persisted.
package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/arthur-debert/faraday/types"
)

// maxNameLength bounds experiment display names
const maxNameLength = 255

// ValidateName checks an experiment display name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: experiment name cannot be empty", types.ErrMalformedInput)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: experiment name longer than %d bytes", types.ErrMalformedInput, maxNameLength)
	}
	return nil
}

// ValidateColumns checks that column names are non-empty and unique
func ValidateColumns(columns []string) error {
	seen := make(map[string]bool, len(columns))
	for i, col := range columns {
		if strings.TrimSpace(col) == "" {
			return fmt.Errorf("%w: column %d has an empty name", types.ErrMalformedInput, i+1)
		}
		if seen[col] {
			return fmt.Errorf("%w: duplicate column %q", types.ErrMalformedInput, col)
		}
		seen[col] = true
	}
	return nil
}

// ValidateTable checks the columns and that every row only uses known columns
// and finite values
func ValidateTable(columns []string, data []types.Row) error {
	if err := ValidateColumns(columns); err != nil {
		return err
	}

	known := make(map[string]bool, len(columns))
	for _, col := range columns {
		known[col] = true
	}

	for i, row := range data {
		for key, value := range row {
			if !known[key] {
				return fmt.Errorf("%w: row %d has value for unknown column %q", types.ErrMalformedInput, i+1, key)
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return fmt.Errorf("%w: row %d column %q is not a finite number", types.ErrMalformedInput, i+1, key)
			}
		}
	}
	return nil
}

// ValidateExperiment checks everything the store requires of a record
func ValidateExperiment(exp types.Experiment) error {
	if err := ValidateName(exp.Name); err != nil {
		return err
	}
	return ValidateTable(exp.Columns, exp.Data)
}
