// Package telemetry records store and upload metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/arthur-debert/faraday/types"
)

const (
	serviceName    = "faraday"
	serviceVersion = "1.0.0"
)

// Outcome labels for store operations
const (
	OutcomeOK          = "ok"
	OutcomeNotFound    = "not_found"
	OutcomeInvalid     = "invalid"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Config holds OTLP exporter configuration.
type Config struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure bool   `mapstructure:"insecure" yaml:"insecure"`
}

// Metrics holds the instruments used across the service
type Metrics struct {
	shutdown   func(context.Context) error
	operations metric.Int64Counter
	derived    metric.Int64Counter
	uploadRows metric.Int64Histogram
}

// New builds metrics exported over OTLP gRPC when enabled, and no-op
// instruments otherwise.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		return NewNoop(), nil
	}

	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}

	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	m, err := NewWithProvider(provider)
	if err != nil {
		return nil, err
	}
	m.shutdown = provider.Shutdown
	return m, nil
}

// NewNoop returns metrics that record nothing
func NewNoop() *Metrics {
	m, err := NewWithProvider(noop.NewMeterProvider())
	if err != nil {
		// noop instruments never fail to build
		panic(err)
	}
	return m
}

// NewWithProvider builds the instruments on an existing meter provider
func NewWithProvider(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName)

	operations, err := meter.Int64Counter(
		"faraday_store_operations_total",
		metric.WithDescription("Store operations by operation and outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operations counter: %w", err)
	}

	derived, err := meter.Int64Counter(
		"faraday_derived_columns_total",
		metric.WithDescription("Shielding columns derived by the transform"),
		metric.WithUnit("{column}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating derived columns counter: %w", err)
	}

	uploadRows, err := meter.Int64Histogram(
		"faraday_upload_rows",
		metric.WithDescription("Rows per uploaded spreadsheet"),
		metric.WithUnit("{row}"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating upload rows histogram: %w", err)
	}

	return &Metrics{
		shutdown:   func(context.Context) error { return nil },
		operations: operations,
		derived:    derived,
		uploadRows: uploadRows,
	}, nil
}

// RecordOperation counts one store operation with the outcome derived from err
func (m *Metrics) RecordOperation(ctx context.Context, operation string, err error) {
	m.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", Outcome(err)),
	))
}

// RecordDerived counts derived shielding columns
func (m *Metrics) RecordDerived(ctx context.Context, columns int) {
	if columns > 0 {
		m.derived.Add(ctx, int64(columns))
	}
}

// RecordUpload records the row count of an uploaded spreadsheet
func (m *Metrics) RecordUpload(ctx context.Context, rows int, format string) {
	m.uploadRows.Record(ctx, int64(rows), metric.WithAttributes(attribute.String("format", format)))
}

// Close flushes pending metrics and stops the exporter
func (m *Metrics) Close(ctx context.Context) error {
	return m.shutdown(ctx)
}

// Outcome maps an operation error to its metric label
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, types.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, types.ErrMalformedInput), errors.Is(err, types.ErrReferenceColumnMissing):
		return OutcomeInvalid
	case errors.Is(err, types.ErrStorageUnavailable):
		return OutcomeUnavailable
	default:
		return OutcomeError
	}
}
