package audioproc_test

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"pgregory.net/rapid"

	"github.com/MrWong99/voxclone/internal/audioproc"
	"github.com/MrWong99/voxclone/pkg/audio"
)

const rate = 24000

func tone(seconds float64, amp float64) []float32 {
	n := int(seconds * rate)
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(amp * math.Sin(2*math.Pi*220*float64(i)/rate))
	}
	return s
}

func silence(seconds float64) []float32 {
	return make([]float32, int(seconds*rate))
}

func concat(parts ...[]float32) audio.Waveform {
	var s []float32
	for _, p := range parts {
		s = append(s, p...)
	}
	return audio.Waveform{Samples: s, SampleRate: rate}
}

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestPostprocessGenerated(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	if out := p.PostprocessGenerated(audio.Waveform{SampleRate: rate}); !out.Empty() {
		t.Fatalf("empty input produced %d samples", out.Len())
	}

	in := audio.Waveform{Samples: []float32{0.5, -1.0, 0.1}, SampleRate: rate}
	out := p.PostprocessGenerated(in)
	// Normalised to [0.35, -0.7, 0.07]; only -0.7 is above the threshold.
	want := []float64{0.35, -(0.6 + 0.1/1.5), 0.07}
	for i := range want {
		if !near(float64(out.Samples[i]), want[i], 1e-5) {
			t.Errorf("sample %d = %v, want %v", i, out.Samples[i], want[i])
		}
	}
	if in.Samples[1] != -1.0 {
		t.Error("input was modified")
	}
}

func TestPostprocessGenerated_QuietPassagesUntouched(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	in := audio.Waveform{Samples: []float32{0.7, 0.3, -0.2}, SampleRate: rate}
	out := p.PostprocessGenerated(in)
	// Peak already 0.7 after normalisation; 0.7 compresses, the rest do not.
	if !near(float64(out.Samples[1]), 0.3, 1e-6) || !near(float64(out.Samples[2]), -0.2, 1e-6) {
		t.Errorf("quiet samples changed: %v", out.Samples)
	}
	if !near(float64(out.Samples[0]), 0.6+0.1/1.5, 1e-6) {
		t.Errorf("peak = %v, want %v", out.Samples[0], 0.6+0.1/1.5)
	}
}

func TestCrossfadeSegments(t *testing.T) {
	t.Parallel()

	p := audioproc.New(audioproc.WithSampleRate(1000))

	if out := p.CrossfadeSegments(nil, 10); !out.Empty() {
		t.Errorf("no segments: got %d samples", out.Len())
	}

	one := audio.Waveform{Samples: []float32{0.1, 0.2, 0.3}, SampleRate: 1000}
	out := p.CrossfadeSegments([]audio.Waveform{one}, 10)
	if out.Len() != 3 || out.Samples[0] != 0.1 || out.Samples[2] != 0.3 {
		t.Errorf("single segment changed: %v", out.Samples)
	}

	ones := func(n int) audio.Waveform {
		s := make([]float32, n)
		for i := range s {
			s[i] = 1
		}
		return audio.Waveform{Samples: s, SampleRate: 1000}
	}
	out = p.CrossfadeSegments([]audio.Waveform{ones(20), ones(30)}, 10)
	if out.Len() != 40 {
		t.Fatalf("len = %d, want 40", out.Len())
	}
	// First sample of the overlap is all segment a, last is all segment b.
	if !near(float64(out.Samples[10]), 1, 1e-6) || !near(float64(out.Samples[19]), 1, 1e-6) {
		t.Errorf("overlap edges = %v, %v; want 1, 1", out.Samples[10], out.Samples[19])
	}
	// sqrt fades sum to more than 1 in the middle.
	if out.Samples[15] <= 1 {
		t.Errorf("overlap middle = %v, want > 1", out.Samples[15])
	}

	short := p.CrossfadeSegments([]audio.Waveform{ones(5), ones(30)}, 10)
	if short.Len() != 35 {
		t.Errorf("short pair len = %d, want 35", short.Len())
	}
}

func TestCrossfadeSegments_Lengths(t *testing.T) {
	p := audioproc.New(audioproc.WithSampleRate(1000))
	rapid.Check(t, func(rt *rapid.T) {
		ms := rapid.IntRange(0, 50).Draw(rt, "ms")
		la := rapid.IntRange(0, 120).Draw(rt, "lenA")
		lb := rapid.IntRange(0, 120).Draw(rt, "lenB")
		a := audio.Waveform{Samples: make([]float32, la), SampleRate: 1000}
		b := audio.Waveform{Samples: make([]float32, lb), SampleRate: 1000}

		got := p.CrossfadeSegments([]audio.Waveform{a, b}, ms).Len()
		fade := ms // 1 sample per ms at 1 kHz
		want := la + lb
		if fade > 0 && la >= fade && lb >= fade {
			want -= fade
		}
		if got != want {
			rt.Fatalf("len(crossfade(%d, %d, %dms)) = %d, want %d", la, lb, ms, got, want)
		}
	})
}

func TestDetectPauses(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	w := concat(
		tone(0.5, 0.5),
		silence(0.3),
		tone(0.5, 0.5),
		silence(0.05),
		tone(0.5, 0.5),
		silence(0.5),
	)
	pauses := p.DetectPauses(w, audioproc.DefaultPauseOptions())
	if len(pauses) != 1 {
		t.Fatalf("got %d pauses (%v), want 1", len(pauses), pauses)
	}
	got := pauses[0]
	if got.DurationMs < 250 || got.DurationMs > 310 {
		t.Errorf("pause duration = %d ms, want about 300", got.DurationMs)
	}
	if got.StartMs < 480 || got.StartMs > 530 {
		t.Errorf("pause start = %d ms, want about 500", got.StartMs)
	}
	if got.EndMs-got.StartMs != got.DurationMs {
		t.Errorf("inconsistent pause %+v", got)
	}
}

func TestDetectPauses_RespectsMinimum(t *testing.T) {
	p := audioproc.New()
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "segments")
		var parts [][]float32
		for i := range n {
			parts = append(parts, tone(rapid.Float64Range(0.05, 0.3).Draw(rt, "tone"), 0.5))
			if i < n-1 {
				parts = append(parts, silence(rapid.Float64Range(0, 0.4).Draw(rt, "gap")))
			}
		}
		minMs := rapid.IntRange(10, 200).Draw(rt, "min")
		opts := audioproc.PauseOptions{ThresholdDb: -40, MinPauseMs: minMs}
		for _, pz := range p.DetectPauses(concat(parts...), opts) {
			if pz.DurationMs < minMs {
				rt.Fatalf("pause %+v shorter than %d ms", pz, minMs)
			}
		}
	})
}

func TestCalculateSpeechRate_Defaults(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	want := audioproc.VoiceStats{
		WordsPerMinute: 150.0,
		Tempo:          4.0,
		AvgPauseMs:     400,
		TotalPauses:    0,
		EnergyProfile:  audioproc.EnergyMixed,
	}
	if got := p.CalculateSpeechRate(concat(tone(1, 0.5)), ""); got != want {
		t.Errorf("empty transcript: got %+v, want %+v", got, want)
	}
	if got := p.CalculateSpeechRate(audio.Waveform{SampleRate: rate}, "hola"); got != want {
		t.Errorf("empty audio: got %+v, want %+v", got, want)
	}
}

func TestCalculateSpeechRate(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	got := p.CalculateSpeechRate(concat(tone(2, 0.5)), "uno dos tres cuatro cinco")
	if got.WordsPerMinute != 150.0 {
		t.Errorf("wpm = %v, want 150", got.WordsPerMinute)
	}
	if got.Tempo != 3.75 {
		t.Errorf("tempo = %v, want 3.75", got.Tempo)
	}
	if got.TotalPauses != 0 || got.AvgPauseMs != 400 {
		t.Errorf("pauses = %d avg %d, want 0 avg 400", got.TotalPauses, got.AvgPauseMs)
	}
	if got.EnergyProfile != audioproc.EnergyCalm {
		t.Errorf("profile = %q, want calm", got.EnergyProfile)
	}
}

func TestCalculateSpeechRate_Dynamic(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	var parts [][]float32
	for range 4 {
		parts = append(parts, tone(0.25, 0.8), silence(0.25))
	}
	got := p.CalculateSpeechRate(concat(parts...), "una frase de prueba")
	if got.EnergyProfile != audioproc.EnergyDynamic {
		t.Errorf("profile = %q, want dynamic", got.EnergyProfile)
	}
	if got.TotalPauses != 3 {
		t.Errorf("pauses = %d, want 3 (trailing silence is not a pause)", got.TotalPauses)
	}
}

func TestPreprocessReference(t *testing.T) {
	t.Parallel()

	const srcRate = 16000
	s := make([]float32, srcRate) // 1 s of silence
	for i := range srcRate * 2 {
		s = append(s, float32(0.3*math.Sin(2*math.Pi*220*float64(i)/srcRate)))
	}
	path := filepath.Join(t.TempDir(), "ref.wav")
	if err := audio.WriteFile(path, audio.Waveform{Samples: s, SampleRate: srcRate}); err != nil {
		t.Fatal(err)
	}

	p := audioproc.New()
	w, err := p.PreprocessReference(context.Background(), path)
	if err != nil {
		t.Fatalf("PreprocessReference: %v", err)
	}
	if w.SampleRate != rate {
		t.Errorf("sample rate = %d, want %d", w.SampleRate, rate)
	}
	if sec := w.Seconds(); sec < 1.9 || sec > 2.2 {
		t.Errorf("duration = %.2fs, want about 2s after trimming", sec)
	}
	if peak := audio.Peak(w.Samples); !near(float64(peak), 0.9, 1e-4) {
		t.Errorf("peak = %v, want 0.9", peak)
	}
}

func TestPreprocessReference_MissingFile(t *testing.T) {
	t.Parallel()

	p := audioproc.New()
	if _, err := p.PreprocessReference(context.Background(), filepath.Join(t.TempDir(), "x.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
