package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/types"
)

// DocumentFilename is the name of the full store document inside a backup
const DocumentFilename = "experiments.json"

// Archive writes a zip backup holding the complete experiments document and
// one spreadsheet per experiment in the given format.
func Archive(w io.Writer, experiments []types.Experiment, format *formats.TableFormat) error {
	if format == nil {
		format = formats.XLSX
	}

	zipWriter := zip.NewWriter(w)

	document := struct {
		Experiments []types.Experiment `json:"experiments"`
	}{Experiments: experiments}
	if document.Experiments == nil {
		document.Experiments = []types.Experiment{}
	}

	payload, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal experiments: %w", err)
	}
	if err := addToZip(zipWriter, DocumentFilename, time.Now(), payload); err != nil {
		return err
	}

	for _, exp := range experiments {
		var buf bytes.Buffer
		if err := Encode(&buf, exp, format); err != nil {
			return err
		}
		if err := addToZip(zipWriter, archiveFilename(exp, format), modifiedAt(exp), buf.Bytes()); err != nil {
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}
	return nil
}

// addToZip adds one file to the archive with the given modification time
func addToZip(zipWriter *zip.Writer, name string, modified time.Time, content []byte) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified,
	}

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create %s in archive: %w", name, err)
	}
	if _, err := writer.Write(content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func modifiedAt(exp types.Experiment) time.Time {
	if exp.ModifiedAt != nil {
		return *exp.ModifiedAt
	}
	if exp.UploadedAt.IsZero() {
		return time.Now()
	}
	return exp.UploadedAt
}
