// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled waveforms and to verify which requests
// reached the backend.
//
// Example:
//
//	p := &mock.Provider{
//	    Result: audio.Waveform{Samples: samples, SampleRate: 24000},
//	}
//	w, _ := p.Synthesize(ctx, tts.Request{Text: "hola"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Result is returned by Synthesize when SynthesizeFunc is nil.
	Result audio.Waveform

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// SynthesizeFunc, if set, overrides Result and SynthesizeErr.
	SynthesizeFunc func(ctx context.Context, req tts.Request) (audio.Waveform, error)

	// Info is returned by Describe.
	Info tts.Info

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall

	active    int
	maxActive int
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Waveform, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	p.active++
	p.maxActive = max(p.maxActive, p.active)
	fn, res, err := p.SynthesizeFunc, p.Result.Clone(), p.SynthesizeErr
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return audio.Waveform{}, err
	}
	return res, nil
}

// Describe returns p.Info.
func (p *Provider) Describe() tts.Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Info
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthesizeCall, len(p.SynthesizeCalls))
	copy(out, p.SynthesizeCalls)
	return out
}

// MaxConcurrent returns the largest number of Synthesize calls that were in
// flight at the same time.
func (p *Provider) MaxConcurrent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxActive
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
	p.maxActive = 0
}

// Ensure Provider implements tts.Provider and tts.Describer at compile time.
var (
	_ tts.Provider  = (*Provider)(nil)
	_ tts.Describer = (*Provider)(nil)
)
