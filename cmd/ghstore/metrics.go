package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/dmarx/gh-store/internal/store"
)

// flagMetrics, when set, writes one JSON line of operation counters to
// stderr on exit. Off by default: most invocations are one-shot CLI
// calls where a metrics stream isn't useful.
var flagMetrics bool

// buildMetrics constructs the store's metrics sink and a shutdown func
// that must run after the command's RunE returns, so any counters
// incremented during the call get flushed before the process exits.
func buildMetrics(ctx context.Context) (*store.Metrics, func(), error) {
	if !flagMetrics {
		return store.NoopMetrics(), func() {}, nil
	}

	exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(os.Stderr))
	if err != nil {
		return nil, nil, fmt.Errorf("ghstore: build metrics exporter: %w", err)
	}
	reader := sdkmetric.NewPeriodicReader(exporter)
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	metrics, err := store.NewMetrics(provider.Meter("gh-store"))
	if err != nil {
		return nil, nil, fmt.Errorf("ghstore: register metrics: %w", err)
	}

	shutdown := func() {
		if err := provider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "ghstore: metrics shutdown: %v\n", err)
		}
	}
	return metrics, shutdown, nil
}
