// Package observe provides application-wide observability primitives for
// Wisp: OpenTelemetry metrics, the Prometheus exporter bridge, and the HTTP
// listener that exposes /metrics and /healthz.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A package-level
// default [Metrics] instance ([DefaultMetrics]) is provided for convenience;
// tests should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Wisp metrics.
const meterName = "github.com/wisp-assistant/wisp"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ListenDuration tracks time from wake detection to a finalized utterance.
	ListenDuration metric.Float64Histogram

	// RouteDuration tracks intent classification latency.
	RouteDuration metric.Float64Histogram

	// LLMDuration tracks LLM response generation latency.
	LLMDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency per sentence.
	TTSDuration metric.Float64Histogram

	// TurnDuration tracks end-to-end latency from finalized utterance to the
	// end of playback.
	TurnDuration metric.Float64Histogram

	// --- Counters ---

	// WakeDetections counts wake-word firings. Use with attribute:
	//   attribute.String("while", <state>)
	WakeDetections metric.Int64Counter

	// Interruptions counts barge-ins that aborted generation or playback.
	Interruptions metric.Int64Counter

	// Turns counts completed dialogue turns. Use with attributes:
	//   attribute.String("action", ...), attribute.String("status", ...)
	Turns metric.Int64Counter

	// ProviderErrors counts provider failures. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// EmptyCaptures counts listening cycles that ended with no transcript.
	EmptyCaptures metric.Int64Counter

	// --- Gauges ---

	// AssistantState reports the current dialogue state as an integer
	// (0=idle, 1=listening, 2=thinking, 3=speaking).
	AssistantState metric.Int64Gauge
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ListenDuration, err = m.Float64Histogram("wisp.listen.duration",
		metric.WithDescription("Time from wake detection to a finalized utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RouteDuration, err = m.Float64Histogram("wisp.route.duration",
		metric.WithDescription("Latency of intent classification."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("wisp.llm.duration",
		metric.WithDescription("Latency of LLM response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("wisp.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis per sentence."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TurnDuration, err = m.Float64Histogram("wisp.turn.duration",
		metric.WithDescription("End-to-end latency from finalized utterance to end of playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.WakeDetections, err = m.Int64Counter("wisp.wake.detections",
		metric.WithDescription("Total wake-word firings by the state they occurred in."),
	); err != nil {
		return nil, err
	}
	if met.Interruptions, err = m.Int64Counter("wisp.interruptions",
		metric.WithDescription("Total barge-ins that aborted generation or playback."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("wisp.turns",
		metric.WithDescription("Total completed dialogue turns by action and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("wisp.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.EmptyCaptures, err = m.Int64Counter("wisp.empty_captures",
		metric.WithDescription("Total listening cycles that ended with no transcript."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.AssistantState, err = m.Int64Gauge("wisp.assistant.state",
		metric.WithDescription("Current dialogue state (0=idle, 1=listening, 2=thinking, 3=speaking)."),
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

// RecordWake records a wake-word firing in the given state.
func (m *Metrics) RecordWake(ctx context.Context, while string) {
	m.WakeDetections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("while", while)),
	)
}

// RecordTurn records a completed dialogue turn.
func (m *Metrics) RecordTurn(ctx context.Context, action, status string) {
	m.Turns.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
