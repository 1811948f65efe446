package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arthur-debert/faraday/types"
)

// printStructured writes v as json or yaml; ok is false for other formats
func printStructured(w io.Writer, format string, v any) (bool, error) {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	case "table", "":
		return false, nil
	default:
		return true, NewConfigError("print output", fmt.Sprintf("unknown output format %q", format),
			"Use --output table, json or yaml")
	}
}

func printExperiments(w io.Writer, format string, experiments []types.Experiment) error {
	if done, err := printStructured(w, format, experiments); done {
		return err
	}

	if len(experiments) == 0 {
		fmt.Fprintln(w, "No experiments. Import a spreadsheet with 'faraday import <file>'.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOLUMNS\tROWS\tUPLOADED BY\tUPLOADED")
	fmt.Fprintln(tw, "--\t----\t-------\t----\t-----------\t--------")
	for _, exp := range experiments {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
			exp.ID, exp.Name, len(exp.Columns), len(exp.Data), exp.UploadedBy, formatTime(exp.UploadedAt))
	}
	return tw.Flush()
}

func printExperiment(w io.Writer, format string, exp types.Experiment) error {
	if done, err := printStructured(w, format, exp); done {
		return err
	}

	fmt.Fprintf(w, "ID:       %s\n", exp.ID)
	fmt.Fprintf(w, "Name:     %s\n", exp.Name)
	fmt.Fprintf(w, "Uploaded: %s by %s\n", formatTime(exp.UploadedAt), exp.UploadedBy)
	if exp.ModifiedAt != nil {
		fmt.Fprintf(w, "Modified: %s by %s\n", formatTime(*exp.ModifiedAt), exp.ModifiedBy)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, strings.Join(exp.Columns, "\t")+"\t")
	for _, row := range exp.Data {
		cells := make([]string, len(exp.Columns))
		for i, col := range exp.Columns {
			cells[i] = strconv.FormatFloat(row[col], 'f', -1, 64)
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t")+"\t")
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
