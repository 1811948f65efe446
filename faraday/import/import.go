// Package imports turns uploaded spreadsheets into experiment tables with
// their shielding columns derived.
package imports

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/shielding"
	"github.com/arthur-debert/faraday/types"
)

// Upload is the result of importing a spreadsheet
type Upload struct {
	// Table holds the original columns followed by the derived ones
	Table types.Table

	// OriginalColumns are the header columns as read from the file
	OriginalColumns []string

	// Result describes what the transform derived
	Result shielding.Result
}

// Import parses the spreadsheet and applies the shielding transform
func Import(format *formats.TableFormat, r io.Reader) (Upload, error) {
	table, err := Parse(format, r)
	if err != nil {
		return Upload{}, err
	}

	augmented, result, err := shielding.Transform(table)
	if err != nil {
		return Upload{}, err
	}

	return Upload{
		Table:           augmented,
		OriginalColumns: table.Columns,
		Result:          result,
	}, nil
}

// ImportFile opens path and imports it using the format matching its extension
func ImportFile(path string) (Upload, error) {
	format, err := formats.ForFilename(path)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %w", types.ErrMalformedInput, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return Upload{}, fmt.Errorf("%w: %w", types.ErrMalformedInput, err)
	}
	defer func() { _ = f.Close() }()

	return Import(format, f)
}

// Parse reads a spreadsheet into a table. The first row is the header.
// Empty and missing cells read as 0; any other non-numeric cell is rejected,
// as is a value in a column without a header.
func Parse(format *formats.TableFormat, r io.Reader) (types.Table, error) {
	grid, err := format.Decode(r)
	if err != nil {
		return types.Table{}, fmt.Errorf("%w: %w", types.ErrMalformedInput, err)
	}
	if len(grid) == 0 {
		return types.Table{}, fmt.Errorf("%w: spreadsheet has no header row", types.ErrMalformedInput)
	}

	columns, err := parseHeader(grid[0])
	if err != nil {
		return types.Table{}, err
	}

	data := make([]types.Row, 0, len(grid)-1)
	for i, cells := range grid[1:] {
		if isBlank(cells) {
			continue
		}
		// Spreadsheet row numbers are 1-based and the header is row 1
		row, err := parseRow(columns, cells, i+2)
		if err != nil {
			return types.Table{}, err
		}
		data = append(data, row)
	}

	return types.Table{Columns: columns, Data: data}, nil
}

func parseHeader(cells []string) ([]string, error) {
	last := len(cells) - 1
	for last >= 0 && strings.TrimSpace(cells[last]) == "" {
		last--
	}
	if last < 0 {
		return nil, fmt.Errorf("%w: header row is empty", types.ErrMalformedInput)
	}

	columns := make([]string, 0, last+1)
	seen := make(map[string]bool, last+1)
	for i, cell := range cells[:last+1] {
		name := strings.TrimSpace(cell)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			return nil, fmt.Errorf("%w: header column %d is blank", types.ErrMalformedInput, i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: duplicate header %q", types.ErrMalformedInput, name)
		}
		seen[name] = true
		columns = append(columns, name)
	}
	return columns, nil
}

func parseRow(columns, cells []string, line int) (types.Row, error) {
	row := make(types.Row, len(columns))
	for j, col := range columns {
		if j >= len(cells) {
			row[col] = 0
			continue
		}
		value, err := parseCell(cells[j])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d column %q: %q is not a number", types.ErrMalformedInput, line, col, cells[j])
		}
		row[col] = value
	}
	for j := len(columns); j < len(cells); j++ {
		if strings.TrimSpace(cells[j]) != "" {
			return nil, fmt.Errorf("%w: row %d column %d: value %q has no header", types.ErrMalformedInput, line, j+1, cells[j])
		}
	}
	return row, nil
}

func parseCell(cell string) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}

func isBlank(cells []string) bool {
	for _, cell := range cells {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// NameFromFilename returns the experiment name for an uploaded file: its
// base name without the extension.
func NameFromFilename(path string) string {
	// Browsers on Windows may send the full client path
	base := filepath.Base(strings.ReplaceAll(path, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
