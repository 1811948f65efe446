// Package testutil provides the sample measurement set shared by tests: a
// twelve-frequency sweep with a reference column and four shielded locations.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

// SampleFrequencies are the sweep points in MHz
var SampleFrequencies = []float64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000, 1100, 1200}

// SampleReference is the unshielded level at each frequency
var SampleReference = []float64{-20, -22, -21, -23, -24, -22, -25, -23, -24, -26, -25, -27}

// sampleAttenuation is the base shielding per location. Each row adds a
// quarter dB so values stay exact in binary floating point.
var sampleAttenuation = map[string]float64{
	"L1": 20,
	"L2": 25,
	"L3": 15,
	"L4": 30,
}

// SampleColumns are the header columns of the sample sheet
var SampleColumns = []string{"Frequency (MHz)", "Reference", "L1", "L2", "L3", "L4"}

// SampleShielding returns the expected shielding for a location at row i
func SampleShielding(location string, i int) float64 {
	return sampleAttenuation[location] + float64(i)*0.25
}

// SampleTable returns the measurement table before any derived columns
func SampleTable() types.Table {
	table := types.Table{
		Columns: append([]string(nil), SampleColumns...),
		Data:    make([]types.Row, len(SampleFrequencies)),
	}
	for i, freq := range SampleFrequencies {
		row := types.Row{
			"Frequency (MHz)": freq,
			"Reference":       SampleReference[i],
		}
		for _, loc := range []string{"L1", "L2", "L3", "L4"} {
			row[loc] = SampleReference[i] - SampleShielding(loc, i)
		}
		table.Data[i] = row
	}
	return table
}

// SampleGrid returns the sample table as header plus positional rows
func SampleGrid() ([]string, [][]float64) {
	table := SampleTable()
	rows := make([][]float64, len(table.Data))
	for i, row := range table.Data {
		values := make([]float64, len(table.Columns))
		for j, col := range table.Columns {
			values[j] = row[col]
		}
		rows[i] = values
	}
	return table.Columns, rows
}

// SampleFile encodes the sample in the given format
func SampleFile(t *testing.T, format *formats.TableFormat) []byte {
	t.Helper()
	header, rows := SampleGrid()
	var buf bytes.Buffer
	if err := format.Encode(&buf, header, rows); err != nil {
		t.Fatalf("failed to encode sample as %s: %v", format.Name, err)
	}
	return buf.Bytes()
}

// WriteSampleFile writes the sample into a temp directory under the given
// base name plus the format extension and returns its path
func WriteSampleFile(t *testing.T, name string, format *formats.TableFormat) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+format.Extension)
	if err := os.WriteFile(path, SampleFile(t, format), 0644); err != nil {
		t.Fatalf("failed to write sample: %v", err)
	}
	return path
}

// AssertTablesEqual fails the test with a diff when the tables differ
func AssertTablesEqual(t *testing.T, want, got types.Table) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("table mismatch (-want +got):\n%s", diff)
	}
}
