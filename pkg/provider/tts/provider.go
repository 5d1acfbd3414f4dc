// Package tts defines the Provider interface for voice-cloning Text-to-Speech
// backends.
//
// A TTS provider wraps a zero-shot synthesis model (e.g., an F5-TTS or XTTS v2
// server) that speaks arbitrary text in the voice of a short reference
// recording. Synthesis is batch: one call per text chunk, returning the whole
// waveform.
//
// Backends hold a single loaded model and are generally not safe to drive from
// several goroutines at once. Callers that share one provider serialise their
// calls (see internal/synth).
package tts

import (
	"context"

	"github.com/MrWong99/voxclone/pkg/audio"
)

// Provider is the abstraction over any voice-cloning TTS backend.
type Provider interface {
	// Synthesize speaks req.Text in the voice of the recording at
	// req.RefAudioPath, whose transcript is req.RefText. The returned waveform
	// is mono at whatever rate the backend produces; callers resample as
	// needed.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or returns audio that cannot be decoded.
	Synthesize(ctx context.Context, req Request) (audio.Waveform, error)
}

// Describer is implemented by providers that can report which model and
// device they run on. Used for status reporting only.
type Describer interface {
	Describe() Info
}
