package formats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSX reads and writes Office Open XML workbooks. Reading uses the first
// sheet of the workbook; writing produces a single sheet named SheetName.
var XLSX = &TableFormat{
	Name:        "xlsx",
	Extension:   ".xlsx",
	ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	Decode:      decodeXLSX,
	Encode:      encodeXLSX,
}

func decodeXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}

	// Raw values keep full precision instead of the displayed number format
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	return rows, nil
}

func encodeXLSX(w io.Writer, header []string, rows [][]float64) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	defaultSheet := f.GetSheetName(0)
	if err := f.SetSheetName(defaultSheet, SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerCells := make([]interface{}, len(header))
	for i, name := range header {
		headerCells[i] = name
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerCells); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func init() {
	if err := Register(XLSX); err != nil {
		panic(err)
	}
}
