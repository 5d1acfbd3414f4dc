// Package synth orchestrates voice-cloned speech synthesis: text is cleaned
// and split into chunks, every chunk is synthesized through the shared
// [Model], trimmed, and the surviving pieces are crossfaded and
// post-processed into one waveform.
//
// A chunk that fails is logged and skipped; a request only fails when no
// chunk produced audio.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxclone/internal/audioproc"
	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/internal/voice"
	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
	"github.com/MrWong99/voxclone/pkg/textnorm"
)

// Defaults for stitching and chunking.
const (
	DefaultCrossfadeMs   = 75
	DefaultMaxChunkChars = 140
)

var (
	// ErrNoAudioGenerated is returned when every chunk failed or came back
	// silent.
	ErrNoAudioGenerated = errors.New("synth: no audio generated")

	// ErrEmptyText is returned when there is nothing left to say after
	// normalization.
	ErrEmptyText = errors.New("synth: text is empty")
)

// VoiceResolver looks up reference voices. *voice.Store implements it.
type VoiceResolver interface {
	GetVoice(ctx context.Context, id string) (voice.Record, error)
}

// GenerateRequest is one synthesis job.
type GenerateRequest struct {
	// Text is the full text. It is synthesized as a single chunk unless
	// Chunks holds more than one entry.
	Text string

	// ReferenceAudioPath and ReferenceText describe the voice to clone.
	ReferenceAudioPath string
	ReferenceText      string

	// Chunks optionally splits Text into pieces synthesized one by one.
	Chunks []string
}

// ChunkResult is the outcome of one chunk. A failed chunk has Err set and
// empty Audio; a chunk that came back silent has neither.
type ChunkResult struct {
	Index int
	Text  string
	Audio audio.Waveform
	Err   error
}

// Result is the stitched waveform plus the per-chunk outcomes.
type Result struct {
	Audio  audio.Waveform
	Chunks []ChunkResult
}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithQuality overrides the sampling parameters. Defaults to
// [tts.DefaultQuality].
func WithQuality(q tts.Quality) Option {
	return func(o *Orchestrator) { o.quality = q }
}

// WithCrossfadeMs sets the overlap between stitched chunks.
func WithCrossfadeMs(ms int) Option {
	return func(o *Orchestrator) { o.crossfadeMs.Store(int64(ms)) }
}

// WithMaxChunkChars sets the chunk size used by [Orchestrator.GenerateForVoice].
func WithMaxChunkChars(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxChunkChars.Store(int64(n))
		}
	}
}

// WithNormalizer sets the text normalizer. Defaults to Spanish.
func WithNormalizer(n *textnorm.Normalizer) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.norm = n
		}
	}
}

// WithVoices sets where [Orchestrator.GenerateForVoice] resolves voices.
func WithVoices(v VoiceResolver) Option {
	return func(o *Orchestrator) { o.voices = v }
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithProviderName sets the provider label used on metrics.
func WithProviderName(name string) Option {
	return func(o *Orchestrator) {
		if name != "" {
			o.providerName = name
		}
	}
}

// Orchestrator turns text into speech in a reference voice. It is safe for
// concurrent use; synthesis calls are serialised on the [Model].
type Orchestrator struct {
	model        *Model
	proc         *audioproc.Processor
	norm         *textnorm.Normalizer
	voices       VoiceResolver
	metrics      *observe.Metrics
	quality      tts.Quality
	providerName string

	crossfadeMs   atomic.Int64
	maxChunkChars atomic.Int64
}

// New returns an Orchestrator driving p. Output is produced at proc's
// sample rate.
func New(p tts.Provider, proc *audioproc.Processor, opts ...Option) (*Orchestrator, error) {
	if p == nil {
		return nil, errors.New("synth: provider must not be nil")
	}
	if proc == nil {
		return nil, errors.New("synth: audio processor must not be nil")
	}
	o := &Orchestrator{
		model:        NewModel(p),
		proc:         proc,
		norm:         textnorm.New(textnorm.Spanish),
		metrics:      observe.DefaultMetrics(),
		quality:      tts.DefaultQuality(),
		providerName: "tts",
	}
	o.crossfadeMs.Store(DefaultCrossfadeMs)
	o.maxChunkChars.Store(DefaultMaxChunkChars)
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// SetCrossfadeMs changes the stitching overlap for subsequent requests.
func (o *Orchestrator) SetCrossfadeMs(ms int) { o.crossfadeMs.Store(int64(ms)) }

// SetMaxChunkChars changes the chunk size for subsequent requests.
// Non-positive values are ignored.
func (o *Orchestrator) SetMaxChunkChars(n int) {
	if n > 0 {
		o.maxChunkChars.Store(int64(n))
	}
}

// Quality returns the sampling parameters in use.
func (o *Orchestrator) Quality() tts.Quality { return o.quality }

// SampleRate returns the rate of generated audio.
func (o *Orchestrator) SampleRate() int { return o.proc.SampleRate() }

// Info describes the synthesis backend.
func (o *Orchestrator) Info() tts.Info { return o.model.Info() }

// GenerateForVoice cleans text, splits it and synthesizes it in the voice
// voiceID. Unknown voices yield an error wrapping [voice.ErrVoiceNotFound].
func (o *Orchestrator) GenerateForVoice(ctx context.Context, text, voiceID string) (Result, error) {
	if o.voices == nil {
		return Result{}, errors.New("synth: no voice resolver configured")
	}
	rec, err := o.voices.GetVoice(ctx, voiceID)
	if err != nil {
		return Result{}, err
	}

	clean := o.norm.Clean(text)
	if strings.TrimSpace(clean) == "" {
		return Result{}, ErrEmptyText
	}
	req := GenerateRequest{
		Text:               clean,
		ReferenceAudioPath: rec.ReferenceAudioPath,
		ReferenceText:      rec.ReferenceTranscript,
	}
	if chunks := o.norm.Split(clean, int(o.maxChunkChars.Load())); len(chunks) > 1 {
		req.Chunks = chunks
	}
	observe.Logger(ctx).Debug("synth: generating",
		"voice_id", rec.ID,
		"chars", len([]rune(clean)),
		"chunks", max(len(req.Chunks), 1),
	)
	return o.Generate(ctx, req)
}

// Generate synthesizes req. Chunks are processed in order; a failed chunk
// is recorded in [Result.Chunks] and skipped. The returned audio is always
// post-processed and at [Orchestrator.SampleRate].
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (res Result, err error) {
	chunks := req.Chunks
	if len(chunks) <= 1 {
		chunks = []string{req.Text}
	}
	if strings.TrimSpace(strings.Join(chunks, "")) == "" {
		return Result{}, ErrEmptyText
	}

	ctx, span := observe.StartSpan(ctx, "synth.Generate",
		trace.WithAttributes(attribute.Int("synth.chunks", len(chunks))),
	)
	start := time.Now()
	defer func() {
		o.metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("status", observe.StatusOf(err))),
		)
		observe.RecordError(span, err)
		span.End()
	}()

	var (
		segments []audio.Waveform
		lastErr  error
	)
	res.Chunks = make([]ChunkResult, 0, len(chunks))
	for i, text := range chunks {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("synth: %w", err)
		}
		cr := o.synthChunk(ctx, i, text, req)
		res.Chunks = append(res.Chunks, cr)
		switch {
		case cr.Err != nil:
			lastErr = cr.Err
		case !cr.Audio.Empty():
			segments = append(segments, cr.Audio)
		}
	}

	var out audio.Waveform
	switch len(segments) {
	case 0:
		if lastErr != nil {
			return Result{}, fmt.Errorf("%w: %w", ErrNoAudioGenerated, lastErr)
		}
		return Result{}, ErrNoAudioGenerated
	case 1:
		out = segments[0]
	default:
		out = o.proc.CrossfadeSegments(segments, int(o.crossfadeMs.Load()))
	}
	res.Audio = o.proc.PostprocessGenerated(out)
	return res, nil
}

// synthChunk runs one chunk through the model and brings the audio to the
// target rate with silence trimmed.
func (o *Orchestrator) synthChunk(ctx context.Context, i int, text string, req GenerateRequest) ChunkResult {
	cr := ChunkResult{Index: i, Text: text}
	log := observe.Logger(ctx).With("chunk", i)

	ctx, span := observe.StartSpan(ctx, "synth.chunk",
		trace.WithAttributes(
			attribute.Int("synth.chunk.index", i),
			attribute.Int("synth.chunk.chars", len([]rune(text))),
		),
	)
	defer span.End()

	start := time.Now()
	w, err := o.model.Synthesize(ctx, tts.Request{
		Text:         text,
		RefAudioPath: req.ReferenceAudioPath,
		RefText:      req.ReferenceText,
		Quality:      o.quality,
	})
	o.metrics.ChunkDuration.Record(ctx, time.Since(start).Seconds())
	o.metrics.RecordProviderRequest(ctx, o.providerName, "tts", observe.StatusOf(err))
	if err != nil {
		observe.RecordError(span, err)
		o.metrics.RecordProviderError(ctx, o.providerName, "tts")
		o.metrics.RecordChunk(ctx, observe.StatusError)
		log.Warn("synth: chunk failed, skipping", "err", err)
		cr.Err = err
		return cr
	}

	rate := o.proc.SampleRate()
	if w.SampleRate == 0 {
		w.SampleRate = rate
	}
	if w.SampleRate != rate {
		w = audio.Resample(w, rate)
	}
	cr.Audio = o.proc.TrimSilence(w, audioproc.ChunkTopDb)

	if cr.Audio.Empty() {
		o.metrics.RecordChunk(ctx, observe.StatusSkipped)
		log.Warn("synth: chunk produced no audio")
		return cr
	}
	o.metrics.RecordChunk(ctx, observe.StatusOK)
	return cr
}
