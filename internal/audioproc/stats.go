package audioproc

import (
	"math"
	"strings"

	"github.com/MrWong99/voxclone/pkg/audio"
)

// EnergyProfile is a coarse classification of loudness variability.
type EnergyProfile string

const (
	EnergyCalm    EnergyProfile = "calm"
	EnergyDynamic EnergyProfile = "dynamic"
	EnergyMixed   EnergyProfile = "mixed"
)

// VoiceStats describes the delivery of a reference recording.
type VoiceStats struct {
	WordsPerMinute float64       `json:"wpm"`
	Tempo          float64       `json:"tempo"`
	AvgPauseMs     int           `json:"avg_pause_ms"`
	TotalPauses    int           `json:"total_pauses"`
	EnergyProfile  EnergyProfile `json:"energy_profile"`
}

// DefaultVoiceStats is reported when a recording has no usable transcript.
var DefaultVoiceStats = VoiceStats{
	WordsPerMinute: 150.0,
	Tempo:          4.0,
	AvgPauseMs:     400,
	TotalPauses:    0,
	EnergyProfile:  EnergyMixed,
}

// syllablesPerWord approximates Spanish speech.
const syllablesPerWord = 1.5

// Pause is a stretch of silence inside a recording.
type Pause struct {
	StartMs    int
	EndMs      int
	DurationMs int
}

// PauseOptions configures [Processor.DetectPauses].
type PauseOptions struct {
	// ThresholdDb is the level relative to the loudest frame below which a
	// frame counts as silent. Default: -40.
	ThresholdDb float64

	// MinPauseMs is the shortest silence reported as a pause. Default: 100.
	MinPauseMs int
}

// DefaultPauseOptions returns the thresholds used for voice statistics.
func DefaultPauseOptions() PauseOptions {
	return PauseOptions{ThresholdDb: -40, MinPauseMs: 100}
}

const (
	amplitudeFloor = 1e-5
	dbRange        = 80.0
)

// DetectPauses finds silent stretches using 25 ms frames with a 10 ms hop.
// A pause is reported when speech resumes; silence running to the end of
// the recording is not reported.
func (p *Processor) DetectPauses(w audio.Waveform, opts PauseOptions) []Pause {
	rate := w.SampleRate
	if rate <= 0 {
		rate = p.rate
	}
	frameLen := rate * 25 / 1000
	hop := rate * 10 / 1000
	rms := audio.FrameRMS(w.Samples, frameLen, hop, true)
	if len(rms) == 0 {
		return nil
	}
	db := amplitudeToDb(rms)

	var (
		pauses  []Pause
		inPause bool
		start   int
	)
	for i, v := range db {
		timeMs := int(float64(i*hop) / float64(rate) * 1000)
		silent := v < opts.ThresholdDb
		switch {
		case silent && !inPause:
			inPause = true
			start = timeMs
		case !silent && inPause:
			inPause = false
			if d := timeMs - start; d >= opts.MinPauseMs {
				pauses = append(pauses, Pause{StartMs: start, EndMs: timeMs, DurationMs: d})
			}
		}
	}
	return pauses
}

// amplitudeToDb converts RMS values to dB relative to the largest one,
// clipped to dbRange below the peak.
func amplitudeToDb(rms []float64) []float64 {
	var ref float64
	for _, r := range rms {
		ref = max(ref, r)
	}
	refDb := 20 * math.Log10(max(ref, amplitudeFloor))
	out := make([]float64, len(rms))
	top := math.Inf(-1)
	for i, r := range rms {
		out[i] = 20*math.Log10(max(r, amplitudeFloor)) - refDb
		top = max(top, out[i])
	}
	for i := range out {
		out[i] = max(out[i], top-dbRange)
	}
	return out
}

// CalculateSpeechRate derives delivery statistics from a recording and its
// transcript. An empty transcript or recording yields [DefaultVoiceStats].
func (p *Processor) CalculateSpeechRate(w audio.Waveform, transcript string) VoiceStats {
	if transcript == "" || w.Empty() {
		return DefaultVoiceStats
	}
	durSec := w.Seconds()
	if durSec <= 0 {
		return DefaultVoiceStats
	}
	words := float64(len(strings.Fields(transcript)))

	stats := VoiceStats{
		WordsPerMinute: roundTo(words/(durSec/60), 1),
		Tempo:          roundTo(words*syllablesPerWord/durSec, 2),
		AvgPauseMs:     DefaultVoiceStats.AvgPauseMs,
	}

	pauses := p.DetectPauses(w, DefaultPauseOptions())
	stats.TotalPauses = len(pauses)
	if len(pauses) > 0 {
		var sum int
		for _, pz := range pauses {
			sum += pz.DurationMs
		}
		stats.AvgPauseMs = sum / len(pauses)
	}

	stats.EnergyProfile = classifyEnergy(audio.FrameRMS(w.Samples, audio.DefaultFrameLength, audio.DefaultHopLength, true))
	return stats
}

// classifyEnergy buckets the coefficient of variation of frame energy.
func classifyEnergy(rms []float64) EnergyProfile {
	cv := 0.5
	if len(rms) > 0 {
		var mean float64
		for _, r := range rms {
			mean += r
		}
		mean /= float64(len(rms))
		if mean > 0 {
			var variance float64
			for _, r := range rms {
				variance += (r - mean) * (r - mean)
			}
			cv = math.Sqrt(variance/float64(len(rms))) / mean
		}
	}
	switch {
	case cv < 0.3:
		return EnergyCalm
	case cv > 0.6:
		return EnergyDynamic
	default:
		return EnergyMixed
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
