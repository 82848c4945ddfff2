// Package observe holds the OpenTelemetry instruments, tracing helpers and
// HTTP middleware shared by every solace component.
//
// [InitProvider] bridges the meter provider to a Prometheus registry for the
// /metrics endpoint. Components take a [*Metrics] explicitly; tests build one
// with [NewMetrics] over a ManualReader.
package observe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all solace metrics.
const meterName = "github.com/MrWong99/solace"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RespondDuration tracks the latency of a respond call (remote or local).
	RespondDuration metric.Float64Histogram

	// STTDuration tracks how long a listen stays open until its first final
	// transcript.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks utterance synthesis time, start to last audio byte.
	TTSDuration metric.Float64Histogram

	// --- Counters ---

	// SessionTransitions counts controller state changes. Use with attributes:
	//   attribute.String("from", ...), attribute.String("to", ...)
	SessionTransitions metric.Int64Counter

	// Interrupts counts assistant utterances cut off by user speech.
	Interrupts metric.Int64Counter

	// RespondRequests counts respond calls. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", ...)
	RespondRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live voice sessions.
	ActiveSessions metric.Int64UpDownCounter

	// UpstreamReady is 1 while the last flight check reported ready, else 0.
	UpstreamReady metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by method,
	// route pattern and status. WebSocket sessions are recorded when they end.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets are histogram boundaries in seconds, sized for
// conversational turn latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// instruments creates instruments on one meter and keeps the first error.
type instruments struct {
	meter metric.Meter
	err   error
}

func (b *instruments) latency(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.meter.Float64Histogram(name, opts...)
	b.keep(name, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instruments) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("observe: instrument %s: %w", name, err)
	}
}

// NewMetrics builds every instrument on mp. It fails if any instrument
// cannot be created.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{meter: mp.Meter(meterName)}
	met := &Metrics{
		RespondDuration: b.latency("solace.respond.duration",
			"Latency of respond calls.", latencyBuckets...),
		STTDuration: b.latency("solace.stt.duration",
			"Time from listen start to final transcript.", latencyBuckets...),
		TTSDuration: b.latency("solace.tts.duration",
			"Time spent synthesising an utterance.", latencyBuckets...),
		HTTPRequestDuration: b.latency("solace.http.request.duration",
			"HTTP request latency by method, route and status."),

		SessionTransitions: b.counter("solace.session.transitions",
			"Total session state transitions by source and target state."),
		Interrupts: b.counter("solace.session.interrupts",
			"Total assistant utterances interrupted by the user."),
		RespondRequests: b.counter("solace.respond.requests",
			"Total respond calls by mode and status."),
		ProviderErrors: b.counter("solace.provider.errors",
			"Total provider errors by provider and kind."),
	}

	var err error
	met.ActiveSessions, err = b.meter.Int64UpDownCounter("solace.active_sessions",
		metric.WithDescription("Number of live voice sessions."))
	b.keep("solace.active_sessions", err)
	met.UpstreamReady, err = b.meter.Int64Gauge("solace.upstream.ready",
		metric.WithDescription("1 when the last flight check reported ready, otherwise 0."))
	b.keep("solace.upstream.ready", err)

	if b.err != nil {
		return nil, b.err
	}
	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns a shared [Metrics] built on the global meter
// provider. It panics if the instruments cannot be created.
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

// RecordTransition records one state change of a session controller.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.SessionTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", to),
		),
	)
}

// RecordInterrupt records an assistant utterance cut off by user speech.
func (m *Metrics) RecordInterrupt(ctx context.Context) {
	m.Interrupts.Add(ctx, 1)
}

// RecordRespond records the outcome and latency of a respond call.
func (m *Metrics) RecordRespond(ctx context.Context, mode, status string, d time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.RespondRequests.Add(ctx, 1, attrs)
	m.RespondDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordProviderError counts one failed provider call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// SetUpstreamReady records the latest flight-check outcome.
func (m *Metrics) SetUpstreamReady(ctx context.Context, ready bool) {
	var v int64
	if ready {
		v = 1
	}
	m.UpstreamReady.Record(ctx, v)
}

// RecordSTT records the time from listen start to the first final transcript.
func (m *Metrics) RecordSTT(ctx context.Context, d time.Duration) {
	m.STTDuration.Record(ctx, d.Seconds())
}

// RecordTTS records how long one utterance took to synthesise.
func (m *Metrics) RecordTTS(ctx context.Context, status string, d time.Duration) {
	m.TTSDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}
