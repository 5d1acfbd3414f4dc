package audio_test

import (
	"math"
	"testing"

	"github.com/MrWong99/voxclone/pkg/audio"
)

func TestFrameRMS(t *testing.T) {
	// Constant 0.5 signal: uncentred frames all have RMS 0.5.
	s := make([]float32, 1000)
	for i := range s {
		s[i] = 0.5
	}
	rms := audio.FrameRMS(s, 100, 50, false)
	if len(rms) != 19 {
		t.Fatalf("frames = %d, want 19", len(rms))
	}
	for i, r := range rms {
		if math.Abs(r-0.5) > 1e-6 {
			t.Errorf("frame %d: rms = %v, want 0.5", i, r)
		}
	}

	// Centred frames are zero-padded, so the edges are quieter.
	centred := audio.FrameRMS(s, 100, 50, true)
	if len(centred) != 21 {
		t.Fatalf("centred frames = %d, want 21", len(centred))
	}
	if centred[0] >= 0.5 {
		t.Errorf("first centred frame rms = %v, want < 0.5", centred[0])
	}
}

func TestFrameRMS_TooShort(t *testing.T) {
	if got := audio.FrameRMS(make([]float32, 10), 100, 50, false); got != nil {
		t.Errorf("got %v, want nil", got)
	}
}

func TestTrim(t *testing.T) {
	const rate = 24000
	silence := make([]float32, rate)
	tone := sine(rate, rate, 440, 0.8).Samples

	var s []float32
	s = append(s, silence...)
	s = append(s, tone...)
	s = append(s, silence...)

	out := audio.Trim(audio.Waveform{Samples: s, SampleRate: rate}, 20)
	// Frame granularity allows a couple of hops of slack on each side.
	slack := 4 * audio.DefaultHopLength
	if out.Len() < rate || out.Len() > rate+2*slack {
		t.Errorf("trimmed length = %d, want about %d", out.Len(), rate)
	}
	if out.SampleRate != rate {
		t.Errorf("sample rate = %d, want %d", out.SampleRate, rate)
	}
}

func TestTrim_EmptyAndSilent(t *testing.T) {
	if out := audio.Trim(audio.Waveform{SampleRate: 24000}, 20); !out.Empty() {
		t.Errorf("empty input: got %d samples", out.Len())
	}

	// An all-zero signal is uniformly "loud" relative to itself and is kept.
	z := audio.Waveform{Samples: make([]float32, 4096), SampleRate: 24000}
	if out := audio.Trim(z, 20); out.Len() != 4096 {
		t.Errorf("silent input: got %d samples, want 4096", out.Len())
	}
}

func TestPeakNormalize(t *testing.T) {
	w := audio.Waveform{Samples: []float32{0.1, -0.5, 0.25}, SampleRate: 24000}
	out := audio.PeakNormalize(w, 0.9)
	if p := audio.Peak(out.Samples); !approx(p, 0.9, 1e-6) {
		t.Errorf("peak = %v, want 0.9", p)
	}
	if !approx(out.Samples[1], -0.9, 1e-6) {
		t.Errorf("sign not preserved: %v", out.Samples[1])
	}
	if w.Samples[1] != -0.5 {
		t.Error("input was modified")
	}
}

func TestPeakNormalize_Silent(t *testing.T) {
	out := audio.PeakNormalize(audio.Waveform{Samples: make([]float32, 3)}, 0.7)
	for i, s := range out.Samples {
		if s != 0 {
			t.Errorf("sample %d = %v, want 0", i, s)
		}
	}
}
