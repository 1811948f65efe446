package formats

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// CSV reads and writes comma separated values
var CSV = &TableFormat{
	Name:        "csv",
	Extension:   ".csv",
	ContentType: "text/csv",
	Decode: func(r io.Reader) ([][]string, error) {
		reader := csv.NewReader(skipBOM(r))
		// Rows may be ragged; missing cells are handled by the importer
		reader.FieldsPerRecord = -1
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		return records, nil
	},
	Encode: func(w io.Writer, header []string, rows [][]float64) error {
		writer := csv.NewWriter(w)
		if err := writer.Write(header); err != nil {
			return err
		}
		record := make([]string, len(header))
		for _, row := range rows {
			for i := range record {
				record[i] = ""
				if i < len(row) {
					record[i] = formatFloat(row[i])
				}
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
		writer.Flush()
		return writer.Error()
	},
}

// utf8BOM prefixes files saved as "CSV UTF-8" by spreadsheet applications
const utf8BOM = "\ufeff"

// skipBOM drops a leading UTF-8 byte order mark
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// formatFloat renders the shortest representation that parses back to v
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func init() {
	if err := Register(CSV); err != nil {
		panic(err)
	}
}
