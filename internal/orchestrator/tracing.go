// Tracing instrumentation for the orchestrator.
package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startQuerySpan starts a span for one foreground query.
func startQuerySpan(ctx context.Context, conversationID string, resumed bool) (context.Context, trace.Span) {
	tracer := otel.Tracer("vaultgate/orchestrator")
	ctx, span := tracer.Start(ctx, "session.query")
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Bool("session.resumed", resumed),
	)
	return ctx, span
}

// recordRecovery annotates the query span with a recovery retry.
func recordRecovery(span trace.Span, err error) {
	span.AddEvent("session.recovery")
	span.RecordError(err)
}

// endQuerySpan ends the query span with result info.
func endQuerySpan(span trace.Span, status string, err error) {
	span.SetAttributes(attribute.String("query.status", status))
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}
