package session

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/dishlink-simulator/internal/logging"
	"github.com/signalsfoundry/dishlink-simulator/internal/observability"
)

func defaultTracer() trace.Tracer {
	return otel.Tracer(observability.TracerName + "/internal/session")
}

// startSpan starts a span for one session operation. dishID is optional and
// the session_id from ctx is attached when present.
func startSpan(ctx context.Context, tracer trace.Tracer, name, dishID string, extra ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(extra)+2)
	if dishID != "" {
		attrs = append(attrs, attribute.String("dish_id", dishID))
	}
	if id := logging.SessionIDFromContext(ctx); id != "" {
		attrs = append(attrs, attribute.String("session_id", id))
	}
	attrs = append(attrs, extra...)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}
