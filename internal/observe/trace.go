package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the waitlist tracer.
const tracerName = "github.com/MrWong99/waitlist"

// Span names of the fit check pipeline. A check span parents the reference
// fetch it triggers.
const (
	SpanCheck          = "fitcheck.Check"
	SpanFetchReference = "fitcheck.fetchReference"
)

// Span attribute keys.
const (
	AttrCheckID   = attribute.Key("waitlist.check_id")
	AttrShip      = attribute.Key("waitlist.ship_type_id")
	AttrStatus    = attribute.Key("waitlist.status")
	AttrCategory  = attribute.Key("waitlist.category")
	AttrDoctrines = attribute.Key("waitlist.doctrines")
)

// Tracer returns the service tracer from the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts an internal span carrying attrs. Finish it with [EndSpan].
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan ends span, marking it failed with err when err is non-nil.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// Fit check responses echo it so a user report can be matched to a trace.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

type checkIDKey struct{}

// WithCheckID returns a copy of ctx carrying the ID of the fit check in
// progress. [Logger] tags every line logged under it.
func WithCheckID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, checkIDKey{}, id)
}

// CheckID returns the fit check ID stored by [WithCheckID], or "".
func CheckID(ctx context.Context) string {
	id, _ := ctx.Value(checkIDKey{}).(string)
	return id
}

// Logger returns the default logger tagged with the check ID and the trace
// and span IDs found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := CheckID(ctx); id != "" {
		l = l.With(slog.String("check_id", id))
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
