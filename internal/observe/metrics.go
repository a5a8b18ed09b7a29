// Package observe provides application-wide observability primitives for the
// routing core: OpenTelemetry metrics, distributed tracing, structured
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

// meterName is the instrumentation scope name used for all core metrics.
const meterName = "github.com/augmentcore/corehub"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// WebhookDuration tracks TPA lifecycle webhook POST latency.
	WebhookDuration metric.Float64Histogram

	// BroadcastDuration tracks fan-out latency when relaying a message to
	// every subscribed TPA.
	BroadcastDuration metric.Float64Histogram

	// --- Counters ---

	// HeartbeatMissed counts individual unanswered pings, by connection kind
	// (glasses/tpa). Use with attribute.String("kind", ...).
	HeartbeatMissed metric.Int64Counter

	// HeartbeatTerminated counts connections terminated for liveness
	// failure. Use with attribute.String("kind", ...), attribute.String("reason", ...).
	HeartbeatTerminated metric.Int64Counter

	// WebhookRetries counts retry attempts made by the lifecycle
	// controller's webhook client.
	WebhookRetries metric.Int64Counter

	// WebhookFailures counts webhook attempts that were exhausted without
	// a successful response.
	WebhookFailures metric.Int64Counter

	// BroadcastMessages counts messages fanned out to TPA recipients. Use
	// with attribute.String("stream_type", ...).
	BroadcastMessages metric.Int64Counter

	// MicEdges counts debounced microphone state transitions delivered
	// downstream. Use with attribute.String("state", ...).
	MicEdges metric.Int64Counter

	// PhotoTimeouts counts photo requests that expired without a response.
	PhotoTimeouts metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of sessions with a connected glasses
	// socket.
	ActiveSessions metric.Int64UpDownCounter

	// ActiveTPAChannels tracks the number of currently running TPA
	// channels across all sessions.
	ActiveTPAChannels metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for webhook and fan-out latencies.
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
	if met.WebhookDuration, err = m.Float64Histogram("corehub.webhook.duration",
		metric.WithDescription("Latency of TPA lifecycle webhook POST attempts."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BroadcastDuration, err = m.Float64Histogram("corehub.broadcast.duration",
		metric.WithDescription("Latency of fanning a message out to subscribed TPAs."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.HeartbeatMissed, err = m.Int64Counter("corehub.heartbeat.missed",
		metric.WithDescription("Total unanswered heartbeat pings by connection kind."),
	); err != nil {
		return nil, err
	}
	if met.HeartbeatTerminated, err = m.Int64Counter("corehub.heartbeat.terminated",
		metric.WithDescription("Total connections terminated for liveness failure, by kind and reason."),
	); err != nil {
		return nil, err
	}
	if met.WebhookRetries, err = m.Int64Counter("corehub.webhook.retries",
		metric.WithDescription("Total TPA lifecycle webhook retry attempts."),
	); err != nil {
		return nil, err
	}
	if met.WebhookFailures, err = m.Int64Counter("corehub.webhook.failures",
		metric.WithDescription("Total TPA lifecycle webhook calls that exhausted all retries."),
	); err != nil {
		return nil, err
	}
	if met.BroadcastMessages, err = m.Int64Counter("corehub.broadcast.messages",
		metric.WithDescription("Total messages fanned out to TPA recipients, by stream type."),
	); err != nil {
		return nil, err
	}
	if met.MicEdges, err = m.Int64Counter("corehub.mic.edges",
		metric.WithDescription("Total debounced microphone state transitions delivered downstream."),
	); err != nil {
		return nil, err
	}
	if met.PhotoTimeouts, err = m.Int64Counter("corehub.photo.timeouts",
		metric.WithDescription("Total photo requests that expired without a response."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("corehub.active_sessions",
		metric.WithDescription("Number of sessions with a connected glasses socket."),
	); err != nil {
		return nil, err
	}
	if met.ActiveTPAChannels, err = m.Int64UpDownCounter("corehub.active_tpa_channels",
		metric.WithDescription("Number of currently running TPA channels across all sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("corehub.http.request.duration",
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

// RecordHeartbeatMissed is a convenience method that records a missed-ping
// counter increment for a connection kind ("glasses" or "tpa").
func (m *Metrics) RecordHeartbeatMissed(ctx context.Context, kind string) {
	m.HeartbeatMissed.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordHeartbeatTerminated is a convenience method that records a
// liveness-termination counter increment.
func (m *Metrics) RecordHeartbeatTerminated(ctx context.Context, kind, reason string) {
	m.HeartbeatTerminated.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("reason", reason),
		),
	)
}

// RecordWebhookRetry is a convenience method that records a webhook retry
// counter increment.
func (m *Metrics) RecordWebhookRetry(ctx context.Context, packageName string) {
	m.WebhookRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("package_name", packageName)))
}

// RecordWebhookFailure is a convenience method that records a webhook
// exhausted-retries counter increment.
func (m *Metrics) RecordWebhookFailure(ctx context.Context, packageName string) {
	m.WebhookFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("package_name", packageName)))
}

// RecordBroadcast is a convenience method that records a fan-out message
// counter increment for a stream type.
func (m *Metrics) RecordBroadcast(ctx context.Context, streamType string) {
	m.BroadcastMessages.Add(ctx, 1, metric.WithAttributes(attribute.String("stream_type", streamType)))
}

// RecordMicEdge is a convenience method that records a debounced microphone
// state transition.
func (m *Metrics) RecordMicEdge(ctx context.Context, state string) {
	m.MicEdges.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordPhotoTimeout is a convenience method that records a photo request
// timeout.
func (m *Metrics) RecordPhotoTimeout(ctx context.Context) {
	m.PhotoTimeouts.Add(ctx, 1)
}
