// Package observe provides application-wide observability primitives for
// facestream: OpenTelemetry metrics, distributed tracing, structured logging,
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

	"github.com/MrWong99/facestream/pkg/face"
	"github.com/MrWong99/facestream/pkg/stream"
)

// meterName is the instrumentation scope name used for all facestream metrics.
const meterName = "github.com/MrWong99/facestream"

// Source attribute values distinguishing what produced a frame.
const (
	SourceTake = "take"
	SourceIdle = "idle"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// EncodeDuration tracks how long one pre-encoding pass took.
	EncodeDuration metric.Float64Histogram

	// InferenceDuration tracks audio-to-blendshape inference latency. Use with
	// attribute:
	//   attribute.String("status", ...)
	InferenceDuration metric.Float64Histogram

	// TickLateness tracks how far behind its slot each emitted frame was.
	TickLateness metric.Float64Histogram

	// PlayDuration tracks wall time of a complete take playback.
	PlayDuration metric.Float64Histogram

	// --- Counters ---

	// Frames counts paced frames. Use with attributes:
	//   attribute.String("source", ...), attribute.String("decision", ...)
	Frames metric.Int64Counter

	// EmptyFrames counts due frames that had no wire bytes and were not sent.
	// Skipped empty frames count only as skips.
	EmptyFrames metric.Int64Counter

	// EncodeFaults counts per-frame encoding problems. Use with attribute:
	//   attribute.String("kind", "degraded"|"failed")
	EncodeFaults metric.Int64Counter

	// Plays counts take playbacks. Use with attribute:
	//   attribute.String("status", ...)
	Plays metric.Int64Counter

	// BreakerTransitions counts inference circuit-breaker state changes. Use
	// with attributes:
	//   attribute.String("backend", ...), attribute.String("to", ...)
	BreakerTransitions metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts inference backend errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveStreams tracks the number of streamers currently pacing frames.
	ActiveStreams metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// encoding and inference latencies.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// latenessBuckets defines histogram bucket boundaries (in seconds) for
// per-frame pacing lateness. A 60 fps tick is ~16.7ms.
var latenessBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.002, 0.005, 0.01, 0.0167, 0.033, 0.05, 0.1,
}

// playBuckets defines histogram bucket boundaries (in seconds) for whole
// playbacks.
var playBuckets = []float64{
	0.5, 1, 2, 5, 10, 20, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.EncodeDuration, err = m.Float64Histogram("facestream.encode.duration",
		metric.WithDescription("Latency of one pre-encoding pass."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.InferenceDuration, err = m.Float64Histogram("facestream.inference.duration",
		metric.WithDescription("Latency of audio-to-blendshape inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TickLateness, err = m.Float64Histogram("facestream.stream.tick_lateness",
		metric.WithDescription("Delay between a frame's slot and its emission."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latenessBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlayDuration, err = m.Float64Histogram("facestream.play.duration",
		metric.WithDescription("Wall time of a complete take playback."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(playBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Frames, err = m.Int64Counter("facestream.stream.frames",
		metric.WithDescription("Paced frames by source and tick decision."),
	); err != nil {
		return nil, err
	}
	if met.EmptyFrames, err = m.Int64Counter("facestream.stream.empty_frames",
		metric.WithDescription("Frames without wire bytes that were not sent."),
	); err != nil {
		return nil, err
	}
	if met.EncodeFaults, err = m.Int64Counter("facestream.encode.faults",
		metric.WithDescription("Per-frame encoding faults by kind."),
	); err != nil {
		return nil, err
	}
	if met.Plays, err = m.Int64Counter("facestream.plays",
		metric.WithDescription("Take playbacks by status."),
	); err != nil {
		return nil, err
	}
	if met.BreakerTransitions, err = m.Int64Counter("facestream.breaker.transitions",
		metric.WithDescription("Inference circuit-breaker state changes by backend and target state."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("facestream.provider.errors",
		metric.WithDescription("Inference backend errors by provider."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveStreams, err = m.Int64UpDownCounter("facestream.active_streams",
		metric.WithDescription("Number of streamers currently pacing frames."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("facestream.http.request.duration",
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

// RecordTick records one pacing decision for a frame produced by source.
// Waited frames have zero lateness and are not added to the histogram.
// Every tick counts under its decision; an empty frame that was due (not
// skipped) also counts as empty.
func (m *Metrics) RecordTick(ctx context.Context, source string, t stream.Tick) {
	m.Frames.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("source", source),
			attribute.String("decision", t.Decision.String()),
		),
	)
	if t.Decision != stream.TickWait {
		m.TickLateness.Record(ctx, t.Lateness.Seconds(),
			metric.WithAttributes(attribute.String("source", source)),
		)
	}
	if t.Empty && t.Decision != stream.TickSkip {
		m.EmptyFrames.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

// TickHook returns a function suitable for [stream.WithTickHook] that records
// every tick under source.
func (m *Metrics) TickHook(source string) func(stream.Tick) {
	return func(t stream.Tick) {
		m.RecordTick(context.Background(), source, t)
	}
}

// RecordPass records the duration and fault counters of one encoding pass.
func (m *Metrics) RecordPass(ctx context.Context, stats face.PassStats, d time.Duration) {
	m.EncodeDuration.Record(ctx, d.Seconds())
	if stats.Degraded > 0 {
		m.EncodeFaults.Add(ctx, int64(stats.Degraded),
			metric.WithAttributes(attribute.String("kind", "degraded")),
		)
	}
	if stats.Failed > 0 {
		m.EncodeFaults.Add(ctx, int64(stats.Failed),
			metric.WithAttributes(attribute.String("kind", "failed")),
		)
	}
}

// RecordInference records one inference call. A non-nil err also increments
// [Metrics.ProviderErrors].
func (m *Metrics) RecordInference(ctx context.Context, provider string, d time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		m.ProviderErrors.Add(ctx, 1,
			metric.WithAttributes(attribute.String("provider", provider)),
		)
	}
	m.InferenceDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordPlay records the outcome and duration of one playback.
func (m *Metrics) RecordPlay(ctx context.Context, status string, d time.Duration) {
	m.Plays.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.PlayDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordBreakerTransition is a convenience method that records a circuit
// breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, backend, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("backend", backend),
			attribute.String("to", to),
		),
	)
}
