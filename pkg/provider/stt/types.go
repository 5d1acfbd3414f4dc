package stt

import (
	"strings"
	"time"
)

// Transcript is the result of transcribing one audio file.
type Transcript struct {
	// Text is the full transcribed speech, trimmed of surrounding whitespace.
	Text string

	// Language is the language the backend recognised or was asked for.
	Language string

	// Segments holds time-aligned pieces of Text. Nil for plain Transcribe
	// calls.
	Segments []Segment
}

// Segment is a time-aligned span of recognised speech.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string

	// NoSpeechProb is the backend's estimate that the span holds no speech.
	// Backends that do not report it set 1.
	NoSpeechProb float64
}

// Duration returns End minus Start.
func (s Segment) Duration() time.Duration { return s.End - s.Start }

// JoinSegments concatenates segment texts with single spaces.
func JoinSegments(segs []Segment) string {
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
