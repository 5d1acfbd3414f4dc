// Package observe carries voxclone's telemetry: OpenTelemetry instruments,
// spans with trace-aware slog loggers, and the HTTP middleware that joins
// them per request.
//
// Instruments live on [Metrics]. Production code shares [DefaultMetrics],
// which binds to the global meter provider installed by [InitProvider];
// tests build their own with [NewMetrics] and a manual reader.
package observe

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/voxclone"

// Values of the "status" attribute.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics groups the service's instruments. Attribute sets are noted per
// field; the Record helpers apply them.
type Metrics struct {
	meter metric.Meter

	// Whole Generate calls including stitching. Attribute "status".
	SynthesisDuration metric.Float64Histogram
	// One backend synthesis call.
	ChunkDuration metric.Float64Histogram
	// Reference transcription. Attribute "kind": "segments" or "text".
	TranscriptionDuration metric.Float64Histogram
	// Request latency by "method", "path" (route pattern) and "status" class.
	HTTPRequestDuration metric.Float64Histogram

	SynthesisChunks  metric.Int64Counter // "status"
	VoiceUploads     metric.Int64Counter // "status"
	ProviderRequests metric.Int64Counter // "provider", "kind", "status"
	ProviderErrors   metric.Int64Counter // "provider", "kind"

	// Fed by [Metrics.ObserveVoicesCached].
	VoicesCached metric.Int64ObservableGauge
}

var (
	// Single backend calls and HTTP requests, in seconds.
	callBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	// Multi-chunk generations run into minutes on CPU.
	longBuckets = []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300}
)

// NewMetrics creates every instrument on a meter from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter(meterName)
	m := &Metrics{meter: meter}

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&m.SynthesisDuration, "voxclone.synthesis.duration", "Latency of a complete text-to-speech generation.", longBuckets},
		{&m.ChunkDuration, "voxclone.synthesis.chunk.duration", "Latency of one backend synthesis call.", callBuckets},
		{&m.TranscriptionDuration, "voxclone.transcription.duration", "Latency of reference audio transcription.", callBuckets},
		{&m.HTTPRequestDuration, "voxclone.http.request.duration", "HTTP request latency by route and status class.", longBuckets},
	}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.SynthesisChunks, "voxclone.synthesis.chunks", "Synthesized text chunks by status."},
		{&m.VoiceUploads, "voxclone.voice.uploads", "Processed reference uploads by status."},
		{&m.ProviderRequests, "voxclone.provider.requests", "Backend requests by provider, kind and status."},
		{&m.ProviderErrors, "voxclone.provider.errors", "Backend errors by provider and kind."},
	}

	var errs []error
	for _, h := range histograms {
		var err error
		*h.dst, err = meter.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(h.buckets...),
		)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	for _, c := range counters {
		var err error
		if *c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	var err error
	if m.VoicesCached, err = meter.Int64ObservableGauge("voxclone.voices.cached",
		metric.WithDescription("Reference voices held in the voice store."),
	); err != nil {
		errs = append(errs, fmt.Errorf("voxclone.voices.cached: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("observe: create instruments: %w", err)
	}
	return m, nil
}

// ObserveVoicesCached makes count the source of the voxclone.voices.cached
// gauge until the returned registration is unregistered.
func (m *Metrics) ObserveVoicesCached(count func() int) (metric.Registration, error) {
	return m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(m.VoicesCached, int64(count()))
		return nil
	}, m.VoicesCached)
}

var defaultMetrics = sync.OnceValue(func() *Metrics {
	m, err := NewMetrics(otel.GetMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
})

// DefaultMetrics returns the process-wide [Metrics], built on first use from
// the global meter provider. Call it after [InitProvider].
func DefaultMetrics() *Metrics { return defaultMetrics() }

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// StatusOf is [StatusError] for a non-nil err and [StatusOK] otherwise.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", status)))
}

func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

func (m *Metrics) RecordChunk(ctx context.Context, status string) {
	m.SynthesisChunks.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}

func (m *Metrics) RecordUpload(ctx context.Context, status string) {
	m.VoiceUploads.Add(ctx, 1, metric.WithAttributes(Attr("status", status)))
}
