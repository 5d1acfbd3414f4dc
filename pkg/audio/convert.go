package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes the sample rate and channel count of decoded audio.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "44100Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}

// PCM16ToFloat converts little-endian int16 PCM to floats in [-1, 1].
// A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	out := make([]float32, len(pcm)/2)
	for i := range out {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = float32(s) / 32768
	}
	return out
}

// FloatToPCM16 converts floats to little-endian int16 PCM, clamping values
// outside [-1, 1].
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := math.Round(float64(s) * 32767)
	if v > 32767 {
		v = 32767
	} else if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// Downmix averages interleaved multi-channel samples into mono. Mono input
// is returned unchanged.
func Downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for c := range channels {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// Resample converts w to dstRate using linear interpolation. If the rates
// already match, w is returned unchanged.
func Resample(w Waveform, dstRate int) Waveform {
	if w.SampleRate <= 0 || dstRate <= 0 || w.SampleRate == dstRate {
		return w
	}
	src := w.Samples
	if len(src) == 0 {
		return Waveform{SampleRate: dstRate}
	}
	dstLen := int(int64(len(src)) * int64(dstRate) / int64(w.SampleRate))
	out := make([]float32, dstLen)
	ratio := float64(w.SampleRate) / float64(dstRate)

	for i := range dstLen {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))

		s0 := src[idx]
		s1 := s0
		if idx+1 < len(src) {
			s1 = src[idx+1]
		}
		out[i] = s0*(1-frac) + s1*frac
	}
	return Waveform{Samples: out, SampleRate: dstRate}
}
