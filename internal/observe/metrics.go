// Package observe provides application-wide observability primitives for
// Loremaster: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Loremaster metrics.
const meterName = "github.com/loremaster-ai/loremaster"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ── Latency histograms ───────────────────────────────────────────────

	// TurnDuration tracks end-to-end ProcessMessage latency.
	TurnDuration metric.Float64Histogram

	// NodeDuration tracks per-node latency within a turn. Use with
	// attribute.String("node", ...).
	NodeDuration metric.Float64Histogram

	// GeneratorDuration tracks LLM completion latency.
	GeneratorDuration metric.Float64Histogram

	// EmbedDuration tracks embedding latency.
	EmbedDuration metric.Float64Histogram

	// ── Counters ─────────────────────────────────────────────────────────

	// Turns counts processed turns. Use with attributes:
	//   attribute.String("intent", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// MemoryWrites counts memories written. Use with attribute:
	//   attribute.String("memory_type", ...)
	MemoryWrites metric.Int64Counter

	// Summarizations counts summarization runs. Use with attribute:
	//   attribute.String("status", ...) — "ok", "aborted", "error".
	Summarizations metric.Int64Counter

	// EventsFired counts campaign events fired by the trigger evaluator.
	EventsFired metric.Int64Counter

	// ProviderErrors counts capability failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ── Gauges ───────────────────────────────────────────────────────────

	// ActiveTurns tracks the number of turns currently in flight.
	ActiveTurns metric.Int64UpDownCounter

	// ── HTTP middleware ──────────────────────────────────────────────────

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// turn-pipeline latencies, which are dominated by the generator call.
var latencyBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("loremaster.turn.duration",
		metric.WithDescription("End-to-end latency of a single turn."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.NodeDuration, err = m.Float64Histogram("loremaster.node.duration",
		metric.WithDescription("Latency of each pipeline node, by node name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GeneratorDuration, err = m.Float64Histogram("loremaster.generator.duration",
		metric.WithDescription("Latency of LLM completions."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbedDuration, err = m.Float64Histogram("loremaster.embed.duration",
		metric.WithDescription("Latency of embedding requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Turns, err = m.Int64Counter("loremaster.turns",
		metric.WithDescription("Total turns processed, by intent and status."),
	); err != nil {
		return nil, err
	}
	if met.MemoryWrites, err = m.Int64Counter("loremaster.memory.writes",
		metric.WithDescription("Total memories written, by memory type."),
	); err != nil {
		return nil, err
	}
	if met.Summarizations, err = m.Int64Counter("loremaster.summarizations",
		metric.WithDescription("Total summarization runs, by status."),
	); err != nil {
		return nil, err
	}
	if met.EventsFired, err = m.Int64Counter("loremaster.events.fired",
		metric.WithDescription("Total campaign events fired by the trigger evaluator."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("loremaster.provider.errors",
		metric.WithDescription("Total capability failures, by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveTurns, err = m.Int64UpDownCounter("loremaster.active_turns",
		metric.WithDescription("Number of turns currently in flight."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("loremaster.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordNode records one pipeline node execution.
func (m *Metrics) RecordNode(ctx context.Context, node string, d time.Duration) {
	m.NodeDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("node", node)),
	)
}

// RecordTurn records a completed turn with its classified intent and final
// status ("ok", "fallback", "error").
func (m *Metrics) RecordTurn(ctx context.Context, intent, status string, d time.Duration) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("intent", intent),
			attribute.String("status", status),
		),
	)
	m.TurnDuration.Record(ctx, d.Seconds())
}

// RecordMemoryWrite records one persisted memory.
func (m *Metrics) RecordMemoryWrite(ctx context.Context, memoryType string) {
	m.MemoryWrites.Add(ctx, 1,
		metric.WithAttributes(attribute.String("memory_type", memoryType)),
	)
}

// RecordSummarization records one summarization worker run.
func (m *Metrics) RecordSummarization(ctx context.Context, status string) {
	m.Summarizations.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordProviderError records one capability failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
