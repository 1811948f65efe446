package telemetry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/arthur-debert/faraday/types"
)

func newManualMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	m, err := NewWithProvider(provider)
	if err != nil {
		t.Fatalf("failed to build metrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect failed: %v", err)
	}
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestRecordOperation(t *testing.T) {
	ctx := context.Background()
	m, reader := newManualMetrics(t)

	m.RecordOperation(ctx, "create", nil)
	m.RecordOperation(ctx, "create", nil)
	m.RecordOperation(ctx, "get", fmt.Errorf("%w: x", types.ErrNotFound))

	data := collect(t, reader)
	sum, ok := data["faraday_store_operations_total"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("operations counter missing: %#v", data)
	}

	counts := make(map[string]int64)
	for _, dp := range sum.DataPoints {
		op, _ := dp.Attributes.Value(attribute.Key("operation"))
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[op.AsString()+"/"+outcome.AsString()] = dp.Value
	}
	if counts["create/ok"] != 2 || counts["get/not_found"] != 1 {
		t.Errorf("unexpected counts: %v", counts)
	}
}

func TestRecordDerivedAndUpload(t *testing.T) {
	ctx := context.Background()
	m, reader := newManualMetrics(t)

	m.RecordDerived(ctx, 3)
	m.RecordDerived(ctx, 0)
	m.RecordUpload(ctx, 12, "xlsx")

	data := collect(t, reader)

	derived, ok := data["faraday_derived_columns_total"].(metricdata.Sum[int64])
	if !ok || len(derived.DataPoints) != 1 || derived.DataPoints[0].Value != 3 {
		t.Errorf("unexpected derived counter: %#v", data["faraday_derived_columns_total"])
	}

	rows, ok := data["faraday_upload_rows"].(metricdata.Histogram[int64])
	if !ok || len(rows.DataPoints) != 1 {
		t.Fatalf("unexpected upload histogram: %#v", data["faraday_upload_rows"])
	}
	if rows.DataPoints[0].Count != 1 || rows.DataPoints[0].Sum != 12 {
		t.Errorf("unexpected histogram point: %+v", rows.DataPoints[0])
	}
}

func TestNewDisabledIsNoop(t *testing.T) {
	m, err := New(context.Background(), Config{Enabled: false, Endpoint: "localhost:4317"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m.RecordOperation(context.Background(), "list", nil)
	if err := m.Close(context.Background()); err != nil {
		t.Errorf("close failed: %v", err)
	}
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("wrap: %w", types.ErrNotFound), OutcomeNotFound},
		{types.ErrMalformedInput, OutcomeInvalid},
		{types.ErrReferenceColumnMissing, OutcomeInvalid},
		{types.ErrStorageUnavailable, OutcomeUnavailable},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Outcome(tt.err); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
