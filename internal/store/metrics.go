package store

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics are the store-level operation counters. They are safe to
// leave unconfigured: NoopMetrics() returns an instance whose methods never
// touch a real instrument.
type Metrics struct {
	creates    metric.Int64Counter
	gets       metric.Int64Counter
	updates    metric.Int64Counter
	processed  metric.Int64Counter
	deprecated metric.Int64Counter
	errors     metric.Int64Counter
}

// NewMetrics registers the store's counters against meter. Pass
// otel.GetMeterProvider().Meter("gh-store") for production use.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	creates, err := meter.Int64Counter("gh_store_objects_created_total")
	if err != nil {
		return nil, err
	}
	gets, err := meter.Int64Counter("gh_store_objects_read_total")
	if err != nil {
		return nil, err
	}
	updates, err := meter.Int64Counter("gh_store_updates_submitted_total")
	if err != nil {
		return nil, err
	}
	processed, err := meter.Int64Counter("gh_store_updates_processed_total")
	if err != nil {
		return nil, err
	}
	deprecated, err := meter.Int64Counter("gh_store_objects_deprecated_total")
	if err != nil {
		return nil, err
	}
	errs, err := meter.Int64Counter("gh_store_operation_errors_total")
	if err != nil {
		return nil, err
	}
	return &Metrics{creates: creates, gets: gets, updates: updates, processed: processed, deprecated: deprecated, errors: errs}, nil
}

// NoopMetrics returns a Metrics whose every counter method is a safe
// no-op, for callers that don't want metering wired up.
func NoopMetrics() *Metrics { return &Metrics{} }

func (m *Metrics) incCreate(ctx context.Context)               { addOne(ctx, m.creates) }
func (m *Metrics) incGet(ctx context.Context)                  { addOne(ctx, m.gets) }
func (m *Metrics) incUpdate(ctx context.Context)               { addOne(ctx, m.updates) }
func (m *Metrics) incProcessed(ctx context.Context, n int64)   { addN(ctx, m.processed, n) }
func (m *Metrics) incDeprecated(ctx context.Context, n int64)  { addN(ctx, m.deprecated, n) }
func (m *Metrics) incError(ctx context.Context)                { addOne(ctx, m.errors) }

func addOne(ctx context.Context, c metric.Int64Counter) { addN(ctx, c, 1) }

func addN(ctx context.Context, c metric.Int64Counter, n int64) {
	if c == nil {
		return
	}
	c.Add(ctx, n)
}
