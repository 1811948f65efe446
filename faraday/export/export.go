// Package export writes stored experiments back out as spreadsheets, either
// one at a time or as a zip backup of the whole store.
package export

import (
	"fmt"
	"io"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

// Encode writes the experiment's rows under its column order as a single
// sheet in the given format. A nil format means XLSX.
func Encode(w io.Writer, exp types.Experiment, format *formats.TableFormat) error {
	if format == nil {
		format = formats.XLSX
	}

	rows := make([][]float64, len(exp.Data))
	for i, row := range exp.Data {
		values := make([]float64, len(exp.Columns))
		for j, col := range exp.Columns {
			values[j] = row[col]
		}
		rows[i] = values
	}

	if err := format.Encode(w, exp.Columns, rows); err != nil {
		return fmt.Errorf("failed to export %q as %s: %w", exp.Name, format.Name, err)
	}
	return nil
}
