// Package formats provides the spreadsheet encodings experiments can be
// imported from and exported to.
//
// A format works on a plain grid of cells: the first row is the header and
// every following row holds one cell per header column. Numeric parsing and
// column semantics belong to the callers.
package formats

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// TableFormat defines how a grid is read from and written to a byte stream
type TableFormat struct {
	// Name is the format identifier (alphanumeric, dashes, underscores, lowercase)
	Name string

	// Extension is the file extension including the dot (e.g., ".xlsx", ".csv")
	Extension string

	// ContentType is the MIME type used for downloads
	ContentType string

	// Decode reads all rows of the first sheet, header first. Cells are raw
	// strings; trailing empty cells may be omitted.
	Decode func(r io.Reader) ([][]string, error)

	// Encode writes the header and the numeric rows as a single sheet
	Encode func(w io.Writer, header []string, rows [][]float64) error
}

// SheetName is the sheet name used by formats that support named sheets.
const SheetName = "Measurements"

// registry holds all available table formats
var registry = make(map[string]*TableFormat)

// Register adds a new table format to the registry
func Register(format *TableFormat) error {
	// Validate format name (alphanumeric, dashes, underscores, lowercase)
	if !isValidFormatName(format.Name) {
		return fmt.Errorf("invalid format name %q: must be lowercase alphanumeric with dashes and underscores only", format.Name)
	}

	// Normalize extension
	if !strings.HasPrefix(format.Extension, ".") {
		format.Extension = "." + format.Extension
	}

	if _, exists := registry[format.Name]; exists {
		return fmt.Errorf("format %q already registered", format.Name)
	}

	registry[format.Name] = format
	return nil
}

// Get returns a table format by name
func Get(name string) (*TableFormat, error) {
	format, exists := registry[strings.ToLower(name)]
	if !exists {
		return nil, fmt.Errorf("unknown format %q", name)
	}
	return format, nil
}

// ForFilename picks the format whose extension matches the file name
func ForFilename(name string) (*TableFormat, error) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return nil, fmt.Errorf("file %q has no extension", name)
	}
	for _, format := range registry {
		if format.Extension == ext {
			return format, nil
		}
	}
	return nil, fmt.Errorf("unsupported file type %q (supported: %s)", ext, strings.Join(List(), ", "))
}

// List returns all registered format names, sorted
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// isValidFormatName checks if a format name is valid
func isValidFormatName(name string) bool {
	if name == "" {
		return false
	}

	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}
