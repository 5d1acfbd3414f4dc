// Package audio holds the mono waveform type shared by the providers and the
// processing pipeline, plus file codecs (WAV and MP3) and the resampling and
// level analysis helpers built on it.
package audio

import "time"

// Waveform is a mono signal with samples in [-1, 1].
type Waveform struct {
	// Samples holds one float per sample, most recent last.
	Samples []float32

	// SampleRate in Hz (e.g., 24000 for generated speech).
	SampleRate int
}

// Len returns the number of samples.
func (w Waveform) Len() int { return len(w.Samples) }

// Empty reports whether the waveform holds no samples.
func (w Waveform) Empty() bool { return len(w.Samples) == 0 }

// Seconds returns the playback length in seconds.
func (w Waveform) Seconds() float64 {
	if w.SampleRate <= 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Duration returns the playback length.
func (w Waveform) Duration() time.Duration {
	return time.Duration(w.Seconds() * float64(time.Second))
}

// Slice returns the samples between startSec and endSec, clamped to the
// waveform bounds. The result shares storage with w.
func (w Waveform) Slice(startSec, endSec float64) Waveform {
	start := int(startSec * float64(w.SampleRate))
	end := int(endSec * float64(w.SampleRate))
	start = min(max(start, 0), len(w.Samples))
	end = min(max(end, start), len(w.Samples))
	return Waveform{Samples: w.Samples[start:end], SampleRate: w.SampleRate}
}

// Clone returns a deep copy of w.
func (w Waveform) Clone() Waveform {
	out := make([]float32, len(w.Samples))
	copy(out, w.Samples)
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}
