package faraday

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/arthur-debert/faraday/faraday/storage"
	"github.com/arthur-debert/faraday/faraday/store"
	"github.com/arthur-debert/faraday/formats"
	"github.com/arthur-debert/faraday/internal/logging"
	"github.com/arthur-debert/faraday/internal/telemetry"
	"github.com/arthur-debert/faraday/types"
)

const uploadCSV = "Frequency (MHz),Reference,L1,L2\n100,-20,-45,-30\n200,-22,-50,-41\n"

func newTestService(t *testing.T, opts ...func(*Options)) (*Service, *storage.MockFileSystem) {
	t.Helper()
	mockFS := storage.NewMockFileSystem()
	o := Options{
		DataDir:     "data",
		Logger:      logging.Discard(),
		FileSystem:  mockFS,
		LockFactory: storage.NewMockFileLockFactory(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	svc, err := Open(context.Background(), o)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, mockFS
}

func TestOpenSeedsDataDirectory(t *testing.T) {
	ctx := context.Background()
	svc, mockFS := newTestService(t)

	raw, ok := mockFS.GetFileContent("data/experiments.json")
	if !ok {
		t.Fatal("experiments file not seeded")
	}
	if string(raw) != emptyDocument {
		t.Errorf("unexpected seed: %s", raw)
	}
	if !mockFS.FileExists("data/creds.json") {
		t.Fatal("credentials file not seeded")
	}
	if svc.StorePath() != "data/experiments.json" {
		t.Errorf("unexpected store path %q", svc.StorePath())
	}

	if err := svc.Authenticate(ctx, "admin", "admin123"); err != nil {
		t.Errorf("default admin rejected: %v", err)
	}
	if err := svc.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, types.ErrUnauthorized) {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}

	list, err := svc.List(ctx)
	if err != nil || len(list) != 0 {
		t.Errorf("expected empty store, got %v %v", list, err)
	}
}

func TestOpenKeepsExistingFiles(t *testing.T) {
	mockFS := storage.NewMockFileSystem()
	existing := `{"experiments": [{"id": "a", "name": "kept", "columns": ["Frequency"], "data": []}]}`
	_ = mockFS.WriteFile("data/experiments.json", []byte(existing), 0644)
	_ = mockFS.WriteFile("data/creds.json", []byte(`{"lab": "secret"}`), 0600)

	svc, err := Open(context.Background(), Options{
		DataDir:     "data",
		Logger:      logging.Discard(),
		FileSystem:  mockFS,
		LockFactory: storage.NewMockFileLockFactory(),
	})
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer func() { _ = svc.Close() }()

	exp, err := svc.Get(context.Background(), "a")
	if err != nil || exp.Name != "kept" {
		t.Errorf("existing record lost: %+v %v", exp, err)
	}
	if err := svc.Authenticate(context.Background(), "lab", "secret"); err != nil {
		t.Errorf("existing credentials replaced: %v", err)
	}
}

func TestCreateStoresTableAsIs(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	table := types.Table{
		Columns: []string{"Frequency", "Reference", "L1"},
		Data:    []types.Row{{"Frequency": 1, "Reference": 2, "L1": 3}},
	}
	exp, err := svc.Create(ctx, "manual", table, "alice")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if diff := cmp.Diff(table.Columns, exp.Columns); diff != "" {
		t.Errorf("manual create must not derive columns (-want +got):\n%s", diff)
	}
}

func TestCreateBlank(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	exp, err := svc.CreateBlank(ctx, "blank", 2, 3, "alice")
	if err != nil {
		t.Fatalf("create blank failed: %v", err)
	}

	wantCols := []string{"Frequency", "Reference", "L1", "L2", "L1-Shielding", "L2-Shielding"}
	if diff := cmp.Diff(wantCols, exp.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(exp.Data) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(exp.Data))
	}
	for i, row := range exp.Data {
		for _, col := range wantCols {
			if v, ok := row[col]; !ok || v != 0 {
				t.Errorf("row %d column %q: expected 0, got %v (present %v)", i, col, v, ok)
			}
		}
	}
}

func TestBlankTable(t *testing.T) {
	table, err := BlankTable(0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"Frequency", "Reference", "L1"}, table.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(table.Data) != 1 {
		t.Errorf("expected one row, got %d", len(table.Data))
	}

	if _, err := BlankTable(-1, 2); !errors.Is(err, types.ErrMalformedInput) {
		t.Errorf("expected ErrMalformedInput, got %v", err)
	}
}

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("csv", func(t *testing.T) {
		svc, _ := newTestService(t)

		result, err := svc.Upload(ctx, "Chamber A.csv", strings.NewReader(uploadCSV), "alice")
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		if result.Experiment.Name != "Chamber A" || result.Experiment.UploadedBy != "alice" {
			t.Errorf("unexpected experiment: %+v", result.Experiment)
		}
		if diff := cmp.Diff([]string{"Frequency (MHz)", "Reference", "L1", "L2"}, result.OriginalColumns); diff != "" {
			t.Errorf("original columns mismatch (-want +got):\n%s", diff)
		}
		if got := result.Experiment.Data[1]["L2-Shielding"]; got != 19 {
			t.Errorf("expected 19, got %v", got)
		}

		stored, err := svc.Get(ctx, result.Experiment.ID)
		if err != nil {
			t.Fatalf("uploaded experiment not stored: %v", err)
		}
		if diff := cmp.Diff(result.Experiment, stored); diff != "" {
			t.Errorf("stored mismatch (-uploaded +stored):\n%s", diff)
		}
	})

	t.Run("xlsx", func(t *testing.T) {
		svc, _ := newTestService(t)

		var buf bytes.Buffer
		if err := formats.XLSX.Encode(&buf, []string{"Frequency", "Reference", "L1"}, [][]float64{{10, -5, -30}}); err != nil {
			t.Fatal(err)
		}
		result, err := svc.Upload(ctx, "run.xlsx", &buf, "alice")
		if err != nil {
			t.Fatalf("upload failed: %v", err)
		}
		if got := result.Experiment.Data[0]["L1-Shielding"]; got != 25 {
			t.Errorf("expected 25, got %v", got)
		}
	})

	t.Run("unsupported extension", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(ctx, "notes.txt", strings.NewReader("x"), "alice")
		if !errors.Is(err, types.ErrMalformedInput) {
			t.Fatalf("expected ErrMalformedInput, got %v", err)
		}
	})

	t.Run("no reference column stores nothing", func(t *testing.T) {
		svc, _ := newTestService(t)
		_, err := svc.Upload(ctx, "run.csv", strings.NewReader("Frequency,L1\n1,2\n"), "alice")
		if !errors.Is(err, types.ErrReferenceColumnMissing) {
			t.Fatalf("expected ErrReferenceColumnMissing, got %v", err)
		}
		list, _ := svc.List(ctx)
		if len(list) != 0 {
			t.Errorf("failed upload stored %d experiments", len(list))
		}
	})
}

func TestRederive(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	uploaded, err := svc.Upload(ctx, "run.csv", strings.NewReader(uploadCSV), "alice")
	if err != nil {
		t.Fatal(err)
	}
	exp := uploaded.Experiment

	// Edit a measurement; the derived value goes stale until re-derived
	rows := exp.Table().Data
	rows[0]["L1"] = -60
	if _, err := svc.Update(ctx, exp.ID, types.UpdateRequest{Data: rows}, "bob"); err != nil {
		t.Fatal(err)
	}

	rederived, result, err := svc.Rederive(ctx, exp.ID, "bob")
	if err != nil {
		t.Fatalf("rederive failed: %v", err)
	}
	if diff := cmp.Diff(exp.Columns, rederived.Columns); diff != "" {
		t.Errorf("rederive must not duplicate columns (-want +got):\n%s", diff)
	}
	if got := rederived.Data[0]["L1-Shielding"]; got != 40 {
		t.Errorf("expected 40, got %v", got)
	}
	if result.Reference != "Reference" || rederived.ModifiedBy != "bob" {
		t.Errorf("unexpected result %+v / %+v", result, rederived)
	}

	if _, _, err := svc.Rederive(ctx, "nope", "bob"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// racingStore lets another writer update the stored table at the moment the
// service first touches the store during a call.
type racingStore struct {
	store.Store
	once  sync.Once
	write func()
}

func (r *racingStore) Get(ctx context.Context, id string) (types.Experiment, error) {
	exp, err := r.Store.Get(ctx, id)
	r.once.Do(r.write)
	return exp, err
}

func (r *racingStore) Modify(ctx context.Context, id, actor string, fn func(*types.Experiment) error) (types.Experiment, error) {
	r.once.Do(r.write)
	return r.Store.Modify(ctx, id, actor, fn)
}

func TestRederiveKeepsConcurrentUpdate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	exp, err := svc.Create(ctx, "racing", types.Table{
		Columns: []string{"Frequency", "Reference", "L1"},
		Data:    []types.Row{{"Frequency": 1, "Reference": -20, "L1": -45}},
	}, "alice")
	if err != nil {
		t.Fatal(err)
	}

	inner := svc.store
	svc.store = &racingStore{Store: inner, write: func() {
		rows := []types.Row{{"Frequency": 1, "Reference": -20, "L1": -99}}
		if _, err := inner.Update(ctx, exp.ID, types.UpdateRequest{Data: rows}, "carol"); err != nil {
			t.Errorf("interleaved update failed: %v", err)
		}
	}}

	if _, _, err := svc.Rederive(ctx, exp.ID, "bob"); err != nil {
		t.Fatalf("rederive failed: %v", err)
	}

	got, err := inner.Get(ctx, exp.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := types.Row{"Frequency": 1, "Reference": -20, "L1": -99, "L1-Shielding": 79}
	if diff := cmp.Diff(want, got.Data[0]); diff != "" {
		t.Errorf("interleaved update lost (-want +got):\n%s", diff)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	exp, _ := svc.CreateBlank(ctx, "gone", 1, 1, "alice")
	removed, err := svc.Delete(ctx, exp.ID)
	if err != nil || !removed {
		t.Fatalf("expected removal, got %v %v", removed, err)
	}
	removed, err = svc.Delete(ctx, exp.ID)
	if err != nil || removed {
		t.Fatalf("expected nothing removed, got %v %v", removed, err)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	uploaded, _ := svc.Upload(ctx, "Chamber A.csv", strings.NewReader(uploadCSV), "alice")

	download, err := svc.Export(ctx, uploaded.Experiment.ID, formats.CSV)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if download.Filename != "chamber-a.csv" || download.ContentType != "text/csv" {
		t.Errorf("unexpected download metadata: %q %q", download.Filename, download.ContentType)
	}
	wantHeader := "Frequency (MHz),Reference,L1,L2,L1-Shielding,L2-Shielding\n"
	if !strings.HasPrefix(string(download.Content), wantHeader) {
		t.Errorf("unexpected content: %s", download.Content)
	}

	download, err = svc.Export(ctx, uploaded.Experiment.ID, nil)
	if err != nil {
		t.Fatalf("default export failed: %v", err)
	}
	if download.Filename != "chamber-a.xlsx" {
		t.Errorf("expected xlsx by default, got %q", download.Filename)
	}

	if _, err := svc.Export(ctx, "nope", formats.CSV); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExportReadsOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	uploaded, err := svc.Upload(ctx, "Chamber A.csv", strings.NewReader(uploadCSV), "alice")
	if err != nil {
		t.Fatal(err)
	}
	id := uploaded.Experiment.ID

	inner := svc.store
	svc.store = &racingStore{Store: inner, write: func() {
		if _, err := inner.Delete(ctx, id); err != nil {
			t.Errorf("interleaved delete failed: %v", err)
		}
	}}

	download, err := svc.Export(ctx, id, formats.CSV)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if download.Filename != "chamber-a.csv" || !strings.HasPrefix(string(download.Content), "Frequency (MHz),Reference") {
		t.Errorf("unexpected download: %q %s", download.Filename, download.Content)
	}
}

func TestBackup(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _ = svc.Upload(ctx, "one.csv", strings.NewReader(uploadCSV), "alice")
	_, _ = svc.CreateBlank(ctx, "two", 1, 1, "alice")

	var buf bytes.Buffer
	if err := svc.Backup(ctx, &buf, formats.CSV); err != nil {
		t.Fatalf("backup failed: %v", err)
	}
	reader, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("invalid zip: %v", err)
	}
	if len(reader.File) != 3 {
		t.Errorf("expected document plus 2 spreadsheets, got %d entries", len(reader.File))
	}
}

func TestOperationsAreCounted(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(ctx) }()

	metrics, err := telemetry.NewWithProvider(provider)
	if err != nil {
		t.Fatal(err)
	}
	svc, _ := newTestService(t, func(o *Options) { o.Metrics = metrics })

	_, _ = svc.Upload(ctx, "run.csv", strings.NewReader(uploadCSV), "alice")
	_, _ = svc.Get(ctx, "missing")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatal(err)
	}

	counts := make(map[string]int64)
	var derived int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch m.Name {
			case "faraday_store_operations_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					op, _ := dp.Attributes.Value(attribute.Key("operation"))
					outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
					counts[op.AsString()+"/"+outcome.AsString()] += dp.Value
				}
			case "faraday_derived_columns_total":
				for _, dp := range m.Data.(metricdata.Sum[int64]).DataPoints {
					derived += dp.Value
				}
			}
		}
	}

	if counts["upload/ok"] != 1 || counts["get/not_found"] != 1 {
		t.Errorf("unexpected operation counts: %v", counts)
	}
	if derived != 2 {
		t.Errorf("expected 2 derived columns, got %d", derived)
	}
}
