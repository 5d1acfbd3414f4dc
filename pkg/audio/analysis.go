package audio

import "math"

// Default framing used for trimming and energy statistics.
const (
	DefaultFrameLength = 2048
	DefaultHopLength   = 512
)

// powerFloor keeps log10 away from zero when converting power to dB.
const powerFloor = 1e-10

// FrameRMS returns the root-mean-square energy of each frame of samples.
// With center set, the signal is zero-padded by frameLen/2 on both sides so
// frame i is centred on sample i*hop.
func FrameRMS(samples []float32, frameLen, hop int, center bool) []float64 {
	if frameLen <= 0 || hop <= 0 {
		return nil
	}
	pad := 0
	if center {
		pad = frameLen / 2
	}
	total := len(samples) + 2*pad
	if total < frameLen {
		return nil
	}
	n := 1 + (total-frameLen)/hop
	out := make([]float64, n)
	for i := range n {
		start := i*hop - pad
		var sum float64
		for j := start; j < start+frameLen; j++ {
			if j < 0 || j >= len(samples) {
				continue
			}
			v := float64(samples[j])
			sum += v * v
		}
		out[i] = math.Sqrt(sum / float64(frameLen))
	}
	return out
}

// Trim removes leading and trailing audio quieter than topDb below the
// loudest frame. Frames are 2048 samples with a 512-sample hop. If no frame
// is loud enough the result is empty.
func Trim(w Waveform, topDb float64) Waveform {
	if w.Empty() {
		return w
	}
	rms := FrameRMS(w.Samples, DefaultFrameLength, DefaultHopLength, true)
	var ref float64
	power := make([]float64, len(rms))
	for i, r := range rms {
		power[i] = r * r
		ref = max(ref, power[i])
	}
	refDb := 10 * math.Log10(max(ref, powerFloor))

	first, last := -1, -1
	for i, p := range power {
		if 10*math.Log10(max(p, powerFloor))-refDb > -topDb {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 {
		return Waveform{SampleRate: w.SampleRate}
	}
	start := first * DefaultHopLength
	end := min(len(w.Samples), (last+1)*DefaultHopLength)
	return Waveform{Samples: w.Samples[start:end], SampleRate: w.SampleRate}
}

// Peak returns the largest absolute sample value.
func Peak(samples []float32) float32 {
	var p float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		p = max(p, s)
	}
	return p
}

// PeakNormalize scales w so its loudest sample has magnitude peak. Silent
// input is only multiplied by peak.
func PeakNormalize(w Waveform, peak float32) Waveform {
	scale := peak
	if p := Peak(w.Samples); p > math.SmallestNonzeroFloat32 {
		scale = peak / p
	}
	out := make([]float32, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s * scale
	}
	return Waveform{Samples: out, SampleRate: w.SampleRate}
}
