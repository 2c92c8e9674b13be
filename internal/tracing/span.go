package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// StartExecuteSpan starts a client span for one execute_eagle_script call.
func StartExecuteSpan(ctx context.Context, tracer trace.Tracer, endpoint string, callID int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "execute_eagle_script",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("rpc.system", "jsonrpc"),
		attribute.String("rpc.method", "tools/call"),
		attribute.Int("rpc.jsonrpc.request_id", callID),
	)
	if endpoint != "" {
		span.SetAttributes(attribute.String("talonfire.endpoint", endpoint))
	}
	return ctx, span
}

// StartWaveSpan starts a span covering one wave of concurrent calls.
func StartWaveSpan(ctx context.Context, tracer trace.Tracer, wave, concurrency int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "pool wave")
	span.SetAttributes(
		attribute.Int("talonfire.wave", wave),
		attribute.Int("talonfire.concurrency", concurrency),
	)
	return ctx, span
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// InjectHTTPHeaders injects W3C trace context into HTTP headers.
func InjectHTTPHeaders(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}
