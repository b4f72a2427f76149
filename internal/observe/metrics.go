// Package observe provides application-wide observability primitives for the
// waitlist service: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all waitlist metrics.
const meterName = "github.com/MrWong99/waitlist"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per check stage ---

	// CheckDuration tracks the end-to-end latency of a fit check.
	CheckDuration metric.Float64Histogram

	// ParseDuration tracks EFT parsing latency, catalog lookups included.
	ParseDuration metric.Float64Histogram

	// FetchDuration tracks the bulk fetch of catalog and doctrine data that
	// precedes a comparison.
	FetchDuration metric.Float64Histogram

	// --- Counters ---

	// FitChecks counts completed fit checks. Use with attribute:
	//   attribute.String("status", ...)  // APPROVED, PENDING or error
	FitChecks metric.Int64Counter

	// DoctrineMatches counts approvals by doctrine category. Use with attribute:
	//   attribute.String("category", ...)
	DoctrineMatches metric.Int64Counter

	// DataReloads counts catalog and doctrine file reloads. Use with attributes:
	//   attribute.String("source", ...), attribute.String("status", ...)
	DataReloads metric.Int64Counter

	// --- Error counters ---

	// ParseErrors counts rejected fit texts. Use with attribute:
	//   attribute.String("kind", ...)
	ParseErrors metric.Int64Counter

	// StoreErrors counts catalog and doctrine store failures. Use with attributes:
	//   attribute.String("store", ...), attribute.String("op", ...)
	StoreErrors metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with
	// attributes:
	//   attribute.String("breaker", ...), attribute.String("state", ...)
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveChecks tracks the number of fit checks in flight.
	ActiveChecks metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for fit
// checks, which are dominated by catalog round-trips.
var latencyBuckets = []float64{
	0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.CheckDuration, err = m.Float64Histogram("waitlist.fit_check.duration",
		metric.WithDescription("Latency of a complete fit check."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ParseDuration, err = m.Float64Histogram("waitlist.parse.duration",
		metric.WithDescription("Latency of EFT parsing including catalog lookups."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FetchDuration, err = m.Float64Histogram("waitlist.reference_fetch.duration",
		metric.WithDescription("Latency of the bulk catalog and doctrine fetch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FitChecks, err = m.Int64Counter("waitlist.fit_checks",
		metric.WithDescription("Total fit checks by resulting status."),
	); err != nil {
		return nil, err
	}
	if met.DoctrineMatches, err = m.Int64Counter("waitlist.doctrine.matches",
		metric.WithDescription("Total approved fits by doctrine category."),
	); err != nil {
		return nil, err
	}
	if met.DataReloads, err = m.Int64Counter("waitlist.data.reloads",
		metric.WithDescription("Total catalog and doctrine reloads by source and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ParseErrors, err = m.Int64Counter("waitlist.parse.errors",
		metric.WithDescription("Total rejected fit texts by error kind."),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("waitlist.store.errors",
		metric.WithDescription("Total catalog and doctrine store failures by store and operation."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("waitlist.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and new state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveChecks, err = m.Int64UpDownCounter("waitlist.active_checks",
		metric.WithDescription("Number of fit checks in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("waitlist.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordCheck records a completed fit check with its resulting status.
func (m *Metrics) RecordCheck(ctx context.Context, status string) {
	m.FitChecks.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordMatch records an approval for a doctrine category.
func (m *Metrics) RecordMatch(ctx context.Context, category string) {
	m.DoctrineMatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordParseError records a rejected fit text.
func (m *Metrics) RecordParseError(ctx context.Context, kind string) {
	m.ParseErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("kind", kind)),
	)
}

// RecordStoreError records a catalog or doctrine store failure.
func (m *Metrics) RecordStoreError(ctx context.Context, store, op string) {
	m.StoreErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("store", store),
			attribute.String("op", op),
		),
	)
}

// RecordReload records a data file reload.
func (m *Metrics) RecordReload(ctx context.Context, source, status string) {
	m.DataReloads.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("status", status),
		),
	)
}

// RecordBreakerTransition records a circuit breaker entering state.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("state", state),
		),
	)
}
