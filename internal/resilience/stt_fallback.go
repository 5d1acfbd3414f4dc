package resilience

import (
	"context"
	"errors"
	"io"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// TranscriberFallback implements [stt.Provider] with automatic failover across
// multiple STT backends. Each backend has its own circuit breaker.
// [stt.ErrNoSpeech] is a definitive answer and is never retried elsewhere.
type TranscriberFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertions.
var (
	_ stt.Provider = (*TranscriberFallback)(nil)
	_ io.Closer    = (*TranscriberFallback)(nil)
)

// NewTranscriberFallback creates a [TranscriberFallback] with primary as the
// preferred backend.
func NewTranscriberFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *TranscriberFallback {
	if cfg.Definitive == nil {
		cfg.Definitive = func(err error) bool { return errors.Is(err, stt.ErrNoSpeech) }
	}
	return &TranscriberFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional STT provider as a fallback.
func (f *TranscriberFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Breakers exposes the per-backend circuit breakers for health reporting.
func (f *TranscriberFallback) Breakers() []*CircuitBreaker { return f.group.Breakers() }

// Transcribe transcribes path with the first healthy provider.
func (f *TranscriberFallback) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, path)
	})
}

// TranscribeSegments segments path with the first healthy provider.
func (f *TranscriberFallback) TranscribeSegments(ctx context.Context, path string) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.TranscribeSegments(ctx, path)
	})
}

// Close closes every wrapped provider that implements io.Closer.
func (f *TranscriberFallback) Close() error {
	var errs []error
	for _, p := range f.group.Values() {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
