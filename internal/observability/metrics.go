package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var backendOperations metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/sandeepkv93/feature-flag-store")
	backendOperations, _ = meter.Int64Counter(
		"flag_store_backend_operations_total",
		metric.WithDescription("Storage backend operations by backend, operation and outcome."),
	)
}

// RecordBackendOperation counts one storage backend call. Outcome is one of
// success, not_found, conflict or error.
func RecordBackendOperation(ctx context.Context, backend, operation, outcome string) {
	if backendOperations == nil {
		return
	}
	backendOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}
