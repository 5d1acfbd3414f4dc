// Package audioproc prepares reference recordings for voice cloning and
// cleans up generated speech: silence trimming, peak normalisation, soft
// compression, crossfade stitching, pause detection and speech-rate
// estimation.
//
// All operations work on mono [audio.Waveform] values at one target sample
// rate. A [Processor] holds no mutable state and is safe for concurrent use.
package audioproc

import (
	"context"
	"fmt"
	"math"

	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/pkg/audio"
)

// ---- defaults ----

const (
	// DefaultSampleRate is the rate generated and reference audio is kept at.
	DefaultSampleRate = 24000

	// ReferenceTopDb is the trim threshold for uploaded reference audio.
	ReferenceTopDb = 20.0

	// ChunkTopDb is the trim threshold for individual synthesized chunks.
	ChunkTopDb = 25.0

	referencePeak = 0.9
	generatedPeak = 0.7

	compressThreshold = 0.6
	compressRatio     = 1.5
)

// Option configures a [Processor].
type Option func(*Processor)

// WithSampleRate sets the target sample rate.
func WithSampleRate(rate int) Option {
	return func(p *Processor) {
		if rate > 0 {
			p.rate = rate
		}
	}
}

// Processor applies reference preprocessing and generated-audio
// postprocessing at a fixed sample rate.
type Processor struct {
	rate int
}

// New returns a Processor. Without options it works at [DefaultSampleRate].
func New(opts ...Option) *Processor {
	p := &Processor{rate: DefaultSampleRate}
	for _, o := range opts {
		o(p)
	}
	return p
}

// SampleRate returns the target sample rate.
func (p *Processor) SampleRate() int { return p.rate }

// PreprocessReference loads the audio file at path, resamples it to the
// target rate, trims leading and trailing silence and normalises it to 90%
// of full scale.
func (p *Processor) PreprocessReference(ctx context.Context, path string) (audio.Waveform, error) {
	w, err := audio.ReadFile(path)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("audioproc: preprocess: %w", err)
	}
	if w.SampleRate != p.rate {
		observe.Logger(ctx).Debug("audioproc: resampling reference",
			"path", path,
			"from", audio.Format{SampleRate: w.SampleRate, Channels: 1},
			"to", audio.Format{SampleRate: p.rate, Channels: 1},
		)
		w = audio.Resample(w, p.rate)
	}
	w = audio.Trim(w, ReferenceTopDb)
	return audio.PeakNormalize(w, referencePeak), nil
}

// PostprocessGenerated normalises generated speech to 70% of full scale and
// applies soft compression above 0.6. Empty input is returned as is.
func (p *Processor) PostprocessGenerated(w audio.Waveform) audio.Waveform {
	if w.Empty() {
		return w
	}
	out := audio.PeakNormalize(w, generatedPeak)
	compress(out.Samples, compressThreshold, compressRatio)
	return out
}

// compress reduces samples above threshold in place, preserving sign.
func compress(samples []float32, threshold, ratio float32) {
	for i, s := range samples {
		a := s
		if a < 0 {
			a = -a
		}
		if a <= threshold {
			continue
		}
		c := threshold + (a-threshold)/ratio
		if s < 0 {
			c = -c
		}
		samples[i] = c
	}
}

// TrimSilence trims leading and trailing audio quieter than topDb below the
// loudest part of w.
func (p *Processor) TrimSilence(w audio.Waveform, topDb float64) audio.Waveform {
	return audio.Trim(w, topDb)
}

// CrossfadeSegments joins segments with an equal-power style overlap of
// crossfadeMs milliseconds. The last fadeLen samples of the running result
// are faded out with sqrt(1→0) while the first fadeLen samples of the next
// segment are faded in with sqrt(0→1) and the two are summed. A pair where
// either side is shorter than the fade is concatenated instead.
func (p *Processor) CrossfadeSegments(segments []audio.Waveform, crossfadeMs int) audio.Waveform {
	switch len(segments) {
	case 0:
		return audio.Waveform{SampleRate: p.rate}
	case 1:
		return segments[0]
	}

	fadeLen := p.rate * crossfadeMs / 1000
	fadeOut, fadeIn := fadeCurves(fadeLen)

	result := append([]float32(nil), segments[0].Samples...)
	for _, seg := range segments[1:] {
		next := seg.Samples
		if fadeLen <= 0 || len(result) < fadeLen || len(next) < fadeLen {
			result = append(result, next...)
			continue
		}
		tail := result[len(result)-fadeLen:]
		for i := range fadeLen {
			tail[i] = tail[i]*fadeOut[i] + next[i]*fadeIn[i]
		}
		result = append(result, next[fadeLen:]...)
	}
	return audio.Waveform{Samples: result, SampleRate: p.rate}
}

// fadeCurves returns sqrt(linspace(1,0,n)) and sqrt(linspace(0,1,n)).
func fadeCurves(n int) (out, in []float32) {
	if n <= 0 {
		return nil, nil
	}
	out = make([]float32, n)
	in = make([]float32, n)
	if n == 1 {
		out[0], in[0] = 1, 0
		return out, in
	}
	for i := range n {
		x := float64(i) / float64(n-1)
		out[i] = float32(math.Sqrt(1 - x))
		in[i] = float32(math.Sqrt(x))
	}
	return out, in
}
