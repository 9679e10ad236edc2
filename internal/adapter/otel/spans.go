package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "packetmill"

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan opens the span covering one packet run end to end.
func StartRunSpan(ctx context.Context, runID, packetID, projectID string) (context.Context, trace.Span) {
	return startSpan(ctx, "run",
		attribute.String("run.id", runID),
		attribute.String("packet.id", packetID),
		attribute.String("project.id", projectID),
	)
}

// StartBatchSpan opens the span covering a whole batch execution.
func StartBatchSpan(ctx context.Context, projectID string, packets int) (context.Context, trace.Span) {
	return startSpan(ctx, "batch",
		attribute.String("project.id", projectID),
		attribute.Int("batch.packets", packets),
	)
}

// StartReconcileSpan opens the span for one session reconcile pass.
func StartReconcileSpan(ctx context.Context, projectID string) (context.Context, trace.Span) {
	return startSpan(ctx, "reconcile", attribute.String("project.id", projectID))
}
