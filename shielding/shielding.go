// Package shielding derives shielding-effectiveness columns from measurement
// tables.
//
// A table holds a reference column (the unshielded baseline) and one or more
// measurement columns. For every measurement column C the transform appends a
// column named "C-Shielding" whose value is reference minus measurement. The
// input table is never modified.
package shielding

import (
	"fmt"
	"strings"

	"github.com/arthur-debert/faraday/types"
)

// Suffix is appended to a measurement column name to form its derived column.
const Suffix = "-Shielding"

// referenceTokens are matched case-insensitively against column names, in order.
var referenceTokens = []string{"reference", "ref"}

// frequencyColumns never get a derived column.
var frequencyColumns = map[string]bool{
	"Frequency":       true,
	"Frequency (MHz)": true,
	"Freq":            true,
	"freq":            true,
}

// legacySuffix is the derived column suffix written by the mobile build.
const legacySuffix = " - Shielding"

// derivedSuffixes mark columns that are already shielding columns. The mobile
// build wrote "L1 - Shielding", the API writes "L1-Shielding".
var derivedSuffixes = []string{Suffix, "- Shielding"}

// Result describes what a Transform call did.
type Result struct {
	Reference string   `json:"reference"`
	Sources   []string `json:"sources"`
	Derived   []string `json:"derived"`
}

// DetectReference returns the reference column: the first column containing
// "reference", else the first containing "ref", both case-insensitive.
func DetectReference(columns []string) (string, error) {
	for _, token := range referenceTokens {
		for _, col := range columns {
			if strings.Contains(strings.ToLower(col), token) {
				return col, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no column matches %q", types.ErrReferenceColumnMissing, referenceTokens)
}

// IsDerived reports whether the column is itself a shielding column.
func IsDerived(column string) bool {
	for _, suffix := range derivedSuffixes {
		if strings.HasSuffix(column, suffix) {
			return true
		}
	}
	return false
}

// IsExcluded reports whether no derived column should be produced for column.
func IsExcluded(column, reference string) bool {
	return column == reference || frequencyColumns[column] || IsDerived(column)
}

// DerivedName returns the shielding column name for a measurement column.
func DerivedName(column string) string {
	return column + Suffix
}

// existingDerived returns the shielding column already present for column,
// preferring the current name over the mobile build's.
func existingDerived(column string, existing map[string]bool) (string, bool) {
	for _, name := range []string{DerivedName(column), column + legacySuffix} {
		if existing[name] {
			return name, true
		}
	}
	return "", false
}

// Transform returns a copy of table with one shielding column per measurement
// column, appended after the original columns in source order.
//
// A derived column that already exists in the input keeps its position and has
// its values recomputed, so applying Transform to its own output is a no-op.
// That includes columns named "C - Shielding" by the mobile build.
func Transform(table types.Table) (types.Table, Result, error) {
	ref, err := DetectReference(table.Columns)
	if err != nil {
		return types.Table{}, Result{}, err
	}

	existing := make(map[string]bool, len(table.Columns))
	for _, col := range table.Columns {
		existing[col] = true
	}

	res := Result{Reference: ref}
	out := table.Clone()
	for _, col := range table.Columns {
		if IsExcluded(col, ref) {
			continue
		}
		name, found := existingDerived(col, existing)
		if !found {
			name = DerivedName(col)
			out.Columns = append(out.Columns, name)
		}
		res.Sources = append(res.Sources, col)
		res.Derived = append(res.Derived, name)
	}

	for _, row := range out.Data {
		for i, src := range res.Sources {
			row[res.Derived[i]] = row[ref] - row[src]
		}
	}
	return out, res, nil
}
