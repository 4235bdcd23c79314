package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for docstore tracing.
const tracerName = "github.com/xraph/docstore"

// Tracing returns middleware that wraps each store operation in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a pass-through.
//
// Spans are named "docstore.<op>" and carry docstore.collection,
// docstore.in_tx and, inside a transaction, docstore.tx.id.
// On error, the span status is set to codes.Error with the error message.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, op Op, next Handler) error {
		attrs := []attribute.KeyValue{
			attribute.String("docstore.collection", op.Collection),
			attribute.Bool("docstore.in_tx", op.InTx()),
		}
		if op.Tx != nil {
			attrs = append(attrs, attribute.String("docstore.tx.id", op.Tx.ID().String()))
		}

		ctx, span := tracer.Start(ctx, "docstore."+op.Name,
			trace.WithAttributes(attrs...),
			trace.WithSpanKind(trace.SpanKindClient),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
