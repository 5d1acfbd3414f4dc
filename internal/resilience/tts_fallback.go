package resilience

import (
	"context"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// SynthesizerFallback implements [tts.Provider] with automatic failover across
// multiple TTS backends. Each backend has its own circuit breaker; with a
// single backend it is a plain circuit breaker around it.
type SynthesizerFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertions.
var (
	_ tts.Provider  = (*SynthesizerFallback)(nil)
	_ tts.Describer = (*SynthesizerFallback)(nil)
)

// NewSynthesizerFallback creates a [SynthesizerFallback] with primary as the
// preferred backend.
func NewSynthesizerFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *SynthesizerFallback {
	return &SynthesizerFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional TTS provider as a fallback.
func (f *SynthesizerFallback) AddFallback(name string, provider tts.Provider) {
	f.group.AddFallback(name, provider)
}

// Breakers exposes the per-backend circuit breakers for health reporting.
func (f *SynthesizerFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Synthesize synthesizes req with the first healthy provider.
func (f *SynthesizerFallback) Synthesize(ctx context.Context, req tts.Request) (audio.Waveform, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) (audio.Waveform, error) {
		return p.Synthesize(ctx, req)
	})
}

// Describe reports the primary backend, if it can describe itself.
func (f *SynthesizerFallback) Describe() tts.Info {
	if d, ok := f.group.Values()[0].(tts.Describer); ok {
		return d.Describe()
	}
	return tts.Info{}
}
