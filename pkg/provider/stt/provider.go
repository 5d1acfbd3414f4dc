// Package stt defines the Provider interface for speech-to-text backends used
// to transcribe reference recordings.
//
// A Provider works on whole audio files: Transcribe returns the recognised
// text, TranscribeSegments additionally returns time-aligned segments with a
// no-speech probability, which callers use to pick the cleanest part of a long
// recording.
//
// Implementations must be safe for concurrent use. Providers that hold native
// resources (e.g., a loaded model) also implement io.Closer; callers that own
// such a provider should close it once it is no longer needed.
package stt

import (
	"context"
	"errors"
)

// ErrNoSpeech is returned when a backend processed the audio but recognised
// nothing.
var ErrNoSpeech = errors.New("stt: no speech recognised")

// Provider is the abstraction over any file-based STT backend.
type Provider interface {
	// Transcribe recognises the speech in the audio file at path. Only
	// Transcript.Text is guaranteed to be populated.
	Transcribe(ctx context.Context, path string) (Transcript, error)

	// TranscribeSegments recognises the speech in the audio file at path and
	// returns it split into segments, in playback order. Backends that cannot
	// segment return a single segment spanning the recognised text.
	TranscribeSegments(ctx context.Context, path string) (Transcript, error)
}
