// Package faraday is the application core of the Faraday Shield Analyser:
// a JSON-file experiment store, the shielding effectiveness transform applied
// to uploaded spreadsheets, and spreadsheet export.
//
// Service binds those pieces together with authentication, logging and
// metrics. The HTTP server and the CLI are thin layers over it.
package faraday

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/arthur-debert/faraday/faraday/auth"
	"github.com/arthur-debert/faraday/faraday/export"
	imports "github.com/arthur-debert/faraday/faraday/import"
	"github.com/arthur-debert/faraday/faraday/store"
	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/internal/telemetry"
	"github.com/arthur-debert/faraday/shielding"
	"github.com/arthur-debert/faraday/types"
)

// Service is the experiment service used by the HTTP layer and the CLI
type Service struct {
	store   store.Store
	auth    auth.Authenticator
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the service metrics
func WithMetrics(metrics *telemetry.Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// New creates a service over an opened store and an authenticator
func New(st store.Store, authenticator auth.Authenticator, opts ...ServiceOption) *Service {
	s := &Service{store: st, auth: authenticator}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = telemetry.NewNoop()
	}
	return s
}

// UploadResult is returned by Upload
type UploadResult struct {
	Experiment      types.Experiment `json:"experiment"`
	OriginalColumns []string         `json:"original_columns"`
	Transform       shielding.Result `json:"transform"`
}

// Download is an exported experiment ready to be sent as a file
type Download struct {
	Filename    string
	ContentType string
	Content     []byte
}

// observe logs and counts one operation
func (s *Service) observe(ctx context.Context, operation string, start time.Time, err error, attrs ...any) {
	s.metrics.RecordOperation(ctx, operation, err)

	attrs = append(attrs, "operation", operation, "duration", time.Since(start))
	if err != nil {
		s.logger.WarnContext(ctx, "operation failed", append(attrs, "error", err)...)
		return
	}
	s.logger.DebugContext(ctx, "operation completed", attrs...)
}

// List returns all experiments
func (s *Service) List(ctx context.Context) (experiments []types.Experiment, err error) {
	defer func(start time.Time) { s.observe(ctx, "list", start, err, "count", len(experiments)) }(time.Now())
	return s.store.List(ctx)
}

// Get returns one experiment
func (s *Service) Get(ctx context.Context, id string) (exp types.Experiment, err error) {
	defer func(start time.Time) { s.observe(ctx, "get", start, err, "id", id) }(time.Now())
	return s.store.Get(ctx, id)
}

// Create stores a manually entered table as-is. The transform is not applied.
func (s *Service) Create(ctx context.Context, name string, table types.Table, actor string) (exp types.Experiment, err error) {
	defer func(start time.Time) { s.observe(ctx, "create", start, err, "id", exp.ID, "actor", actor) }(time.Now())
	return s.store.Create(ctx, types.Experiment{
		Name:    name,
		Columns: table.Columns,
		Data:    table.Data,
	}, actor)
}

// CreateBlank creates an experiment with a Frequency and Reference column,
// the given number of location columns L1..Ln with their shielding columns,
// and one zeroed row per frequency.
func (s *Service) CreateBlank(ctx context.Context, name string, locations, frequencies int, actor string) (exp types.Experiment, err error) {
	defer func(start time.Time) { s.observe(ctx, "create_blank", start, err, "id", exp.ID, "actor", actor) }(time.Now())

	table, err := BlankTable(locations, frequencies)
	if err != nil {
		return types.Experiment{}, err
	}
	augmented, result, err := shielding.Transform(table)
	if err != nil {
		return types.Experiment{}, err
	}

	exp, err = s.store.Create(ctx, types.Experiment{
		Name:    name,
		Columns: augmented.Columns,
		Data:    augmented.Data,
	}, actor)
	if err == nil {
		s.metrics.RecordDerived(ctx, len(result.Derived))
	}
	return exp, err
}

// BlankTable builds the zeroed table used by CreateBlank. Zero counts
// default to one.
func BlankTable(locations, frequencies int) (types.Table, error) {
	if locations < 0 || frequencies < 0 {
		return types.Table{}, fmt.Errorf("%w: locations and frequencies cannot be negative", types.ErrMalformedInput)
	}
	if locations == 0 {
		locations = 1
	}
	if frequencies == 0 {
		frequencies = 1
	}

	columns := []string{"Frequency", "Reference"}
	for i := 1; i <= locations; i++ {
		columns = append(columns, fmt.Sprintf("L%d", i))
	}

	data := make([]types.Row, frequencies)
	for i := range data {
		row := make(types.Row, len(columns))
		for _, col := range columns {
			row[col] = 0
		}
		data[i] = row
	}
	return types.Table{Columns: columns, Data: data}, nil
}

// Update replaces data and optionally columns and name. Derived columns are
// not recomputed; use Rederive for that.
func (s *Service) Update(ctx context.Context, id string, req types.UpdateRequest, actor string) (exp types.Experiment, err error) {
	defer func(start time.Time) { s.observe(ctx, "update", start, err, "id", id, "actor", actor) }(time.Now())
	return s.store.Update(ctx, id, req, actor)
}

// Delete removes an experiment and reports whether it existed
func (s *Service) Delete(ctx context.Context, id string) (removed bool, err error) {
	defer func(start time.Time) { s.observe(ctx, "delete", start, err, "id", id, "removed", removed) }(time.Now())
	return s.store.Delete(ctx, id)
}

// Upload parses a spreadsheet, derives the shielding columns and stores the
// result under the file's base name.
func (s *Service) Upload(ctx context.Context, filename string, r io.Reader, actor string) (result UploadResult, err error) {
	defer func(start time.Time) {
		s.observe(ctx, "upload", start, err, "file", filename, "id", result.Experiment.ID, "actor", actor)
	}(time.Now())

	format, err := formats.ForFilename(filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("%w: %w", types.ErrMalformedInput, err)
	}

	upload, err := imports.Import(format, r)
	if err != nil {
		return UploadResult{}, err
	}

	exp, err := s.store.Create(ctx, types.Experiment{
		Name:    imports.NameFromFilename(filename),
		Columns: upload.Table.Columns,
		Data:    upload.Table.Data,
	}, actor)
	if err != nil {
		return UploadResult{}, err
	}

	s.metrics.RecordUpload(ctx, len(upload.Table.Data), format.Name)
	s.metrics.RecordDerived(ctx, len(upload.Result.Derived))
	s.logger.InfoContext(ctx, "experiment uploaded",
		"id", exp.ID,
		"name", exp.Name,
		"rows", len(exp.Data),
		"reference", upload.Result.Reference,
		"derived", upload.Result.Derived)

	return UploadResult{
		Experiment:      exp,
		OriginalColumns: upload.OriginalColumns,
		Transform:       upload.Result,
	}, nil
}

// Rederive runs the transform again on the stored table and saves the
// recomputed columns. The transform runs inside the store's write cycle.
func (s *Service) Rederive(ctx context.Context, id, actor string) (exp types.Experiment, result shielding.Result, err error) {
	defer func(start time.Time) { s.observe(ctx, "rederive", start, err, "id", id, "actor", actor) }(time.Now())

	exp, err = s.store.Modify(ctx, id, actor, func(current *types.Experiment) error {
		augmented, res, err := shielding.Transform(current.Table())
		if err != nil {
			return err
		}
		current.Columns = augmented.Columns
		current.Data = augmented.Data
		result = res
		return nil
	})
	if err != nil {
		return types.Experiment{}, shielding.Result{}, err
	}

	s.metrics.RecordDerived(ctx, len(result.Derived))
	return exp, result, nil
}

// Export renders an experiment as a spreadsheet. A nil format means XLSX.
func (s *Service) Export(ctx context.Context, id string, format *formats.TableFormat) (download Download, err error) {
	defer func(start time.Time) { s.observe(ctx, "export", start, err, "id", id) }(time.Now())

	if format == nil {
		format = formats.XLSX
	}
	exp, err := s.store.Get(ctx, id)
	if err != nil {
		return Download{}, err
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, exp, format); err != nil {
		return Download{}, err
	}
	return Download{
		Filename:    export.Filename(exp, format),
		ContentType: format.ContentType,
		Content:     buf.Bytes(),
	}, nil
}

// Backup writes a zip archive of every experiment to w
func (s *Service) Backup(ctx context.Context, w io.Writer, format *formats.TableFormat) (err error) {
	defer func(start time.Time) { s.observe(ctx, "backup", start, err) }(time.Now())

	experiments, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	return export.Archive(w, experiments, format)
}

// Authenticate checks a username and password
func (s *Service) Authenticate(ctx context.Context, username, password string) (err error) {
	defer func(start time.Time) { s.observe(ctx, "authenticate", start, err, "username", username) }(time.Now())
	return s.auth.Authenticate(ctx, username, password)
}

// StorePath returns the experiments document location
func (s *Service) StorePath() string {
	return s.store.Path()
}

// Close releases the store. Metrics are owned and closed by the caller.
func (s *Service) Close() error {
	return s.store.Close()
}
