package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ---- errors ----

var (
	// ErrUnsupportedFormat is returned for containers the codec cannot read.
	ErrUnsupportedFormat = errors.New("audio: unsupported format")

	// ErrInvalidAudio is returned when a file has a known extension but its
	// contents cannot be decoded.
	ErrInvalidAudio = errors.New("audio: invalid audio data")
)

// WAV fmt chunk audio format codes.
const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// ---- decoding ----

// ReadFile decodes the audio file at path into a mono waveform at its
// native sample rate. The container is chosen by file extension.
func ReadFile(path string) (Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: read %q: %w", path, err)
	}
	w, err := Decode(data, filepath.Ext(path))
	if err != nil {
		return Waveform{}, fmt.Errorf("audio: decode %q: %w", path, err)
	}
	return w, nil
}

// Decode decodes an in-memory file. ext is the file extension including
// the dot (".wav", ".mp3"); an empty ext is treated as WAV.
func Decode(data []byte, ext string) (Waveform, error) {
	switch strings.ToLower(ext) {
	case ".wav", ".wave", "":
		return decodeWAV(bytes.NewReader(data))
	case ".mp3":
		return decodeMP3(bytes.NewReader(data))
	default:
		return Waveform{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
}

func decodeWAV(r io.ReadSeeker) (Waveform, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return Waveform{}, fmt.Errorf("%w: not a readable WAV file", ErrInvalidAudio)
	}
	channels := int(d.NumChans)
	rate := int(d.SampleRate)

	var interleaved []float32
	switch d.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
		buf, err := d.FullPCMBuffer()
		if err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		interleaved = intBufferToFloat(buf)
	case wavFormatFloat:
		if err := d.FwdToPCM(); err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		raw, err := io.ReadAll(d.PCMChunk)
		if err != nil {
			return Waveform{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
		}
		interleaved, err = ieeeFloatToFloat(raw, int(d.BitDepth))
		if err != nil {
			return Waveform{}, err
		}
	default:
		return Waveform{}, fmt.Errorf("%w: WAV audio format %d", ErrUnsupportedFormat, d.WavAudioFormat)
	}

	return Waveform{Samples: Downmix(interleaved, channels), SampleRate: rate}, nil
}

func intBufferToFloat(buf *goaudio.IntBuffer) []float32 {
	out := make([]float32, len(buf.Data))
	if buf.SourceBitDepth == 8 {
		// 8-bit WAV samples are unsigned.
		for i, v := range buf.Data {
			out[i] = float32(v-128) / 128
		}
		return out
	}
	scale := float32(math.Pow(2, float64(buf.SourceBitDepth-1)))
	for i, v := range buf.Data {
		out[i] = float32(v) / scale
	}
	return out
}

func ieeeFloatToFloat(raw []byte, bitDepth int) ([]float32, error) {
	switch bitDepth {
	case 32:
		out := make([]float32, len(raw)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
		return out, nil
	case 64:
		out := make([]float32, len(raw)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(raw[i*8:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d-bit float WAV", ErrUnsupportedFormat, bitDepth)
	}
}

// decodeMP3 relies on go-mp3 always producing 16-bit stereo PCM.
func decodeMP3(r io.Reader) (Waveform, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: %v", ErrInvalidAudio, err)
	}
	return Waveform{
		Samples:    Downmix(PCM16ToFloat(pcm), 2),
		SampleRate: d.SampleRate(),
	}, nil
}

// ---- encoding ----

// WriteFile writes w to path as a 16-bit PCM mono WAV file, replacing any
// existing file.
func WriteFile(path string, w Waveform) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("audio: create %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("audio: close %q: %w", path, cerr)
		}
	}()

	enc := wav.NewEncoder(f, w.SampleRate, 16, 1, wavFormatPCM)
	data := make([]int, len(w.Samples))
	for i, s := range w.Samples {
		data[i] = int(floatToInt16(s))
	}
	buf := &goaudio.IntBuffer{
		Data:           data,
		Format:         &goaudio.Format{SampleRate: w.SampleRate, NumChannels: 1},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode %q: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("audio: finalize %q: %w", path, err)
	}
	return nil
}

// EncodeWAV returns w as an in-memory 16-bit PCM mono WAV file with a
// canonical 44-byte header.
func EncodeWAV(w Waveform) []byte {
	pcm := FloatToPCM16(w.Samples)
	const (
		bitsPerSample = 16
		channels      = 1
	)
	byteRate := w.SampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(w.SampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(pcm)
	return buf.Bytes()
}
