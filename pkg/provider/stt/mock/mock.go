// Package mock provides a test double for the stt.Provider interface.
//
// Set Text/Segments (or the Func overrides) to control what the provider
// returns and inspect the recorded calls afterwards.
//
// Example:
//
//	p := &mock.Provider{
//	    Text: "hola a todos",
//	    Segments: []stt.Segment{{Start: 0, End: 7 * time.Second, Text: "hola a todos"}},
//	}
//	tr, _ := p.TranscribeSegments(ctx, "voice.wav")
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// Provider is a mock implementation of stt.Provider and io.Closer.
type Provider struct {
	mu sync.Mutex

	// Text is returned by Transcribe.
	Text string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeFunc, if set, replaces Text/TranscribeErr.
	TranscribeFunc func(path string) (string, error)

	// Segments is returned by TranscribeSegments.
	Segments []stt.Segment

	// SegmentsErr, if non-nil, is returned as the error from TranscribeSegments.
	SegmentsErr error

	// TranscribeCalls records the path of every Transcribe call.
	TranscribeCalls []string

	// SegmentsCalls records the path of every TranscribeSegments call.
	SegmentsCalls []string

	// CloseCalls counts Close invocations.
	CloseCalls int
}

// Transcribe records the call and returns Text or TranscribeFunc's result.
func (p *Provider) Transcribe(_ context.Context, path string) (stt.Transcript, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, path)
	fn, text, err := p.TranscribeFunc, p.Text, p.TranscribeErr
	p.mu.Unlock()

	if fn != nil {
		text, err = fn(path)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: text}, nil
}

// TranscribeSegments records the call and returns Segments.
func (p *Provider) TranscribeSegments(_ context.Context, path string) (stt.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SegmentsCalls = append(p.SegmentsCalls, path)
	if p.SegmentsErr != nil {
		return stt.Transcript{}, p.SegmentsErr
	}
	segs := make([]stt.Segment, len(p.Segments))
	copy(segs, p.Segments)
	return stt.Transcript{Text: stt.JoinSegments(segs), Segments: segs}, nil
}

// Close counts the call and returns nil.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CloseCalls++
	return nil
}

// Calls returns the number of Transcribe and TranscribeSegments calls so far.
func (p *Provider) Calls() (transcribe, segments int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls), len(p.SegmentsCalls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
