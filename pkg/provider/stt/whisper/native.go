// In-process transcription through cgo. Building this file needs
// libwhisper.a on LIBRARY_PATH and whisper.h on C_INCLUDE_PATH.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

var (
	_ stt.Provider = (*NativeProvider)(nil)
	_ io.Closer    = (*NativeProvider)(nil)
)

// NativeProvider transcribes in process with a whisper.cpp model loaded
// once; each call opens its own decoding context on the shared model.
type NativeProvider struct {
	model    whisperlib.Model
	language string
}

// NativeOption configures a [NativeProvider].
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the language code for transcription (e.g., "es",
// "en"). Defaults to "es".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative loads the ggml model at modelPath. Close releases it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe returns the text spoken in the audio file at path.
func (p *NativeProvider) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	tr, err := p.TranscribeSegments(ctx, path)
	if err != nil {
		return stt.Transcript{}, err
	}
	tr.Segments = nil
	return tr, nil
}

// TranscribeSegments returns the segments whisper decoded from the audio
// file at path. The bindings do not expose a no-speech probability, so every
// segment reports 1.
func (p *NativeProvider) TranscribeSegments(ctx context.Context, path string) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	w, err := loadForWhisper(path)
	if err != nil {
		return stt.Transcript{}, err
	}
	if computeRMS(w.Samples) < silenceRMS {
		return stt.Transcript{}, fmt.Errorf("whisper: %q: %w", path, stt.ErrNoSpeech)
	}

	// Contexts are not thread-safe, but the model can be shared.
	wctx, err := p.model.NewContext()
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(p.language); err != nil {
		observe.Logger(ctx).Warn("whisper: failed to set language, using default", "language", p.language, "error", err)
	}

	if err := wctx.Process(w.Samples, nil, nil, nil); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var segs []stt.Segment
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stt.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text == "" {
			continue
		}
		segs = append(segs, stt.Segment{
			Start:        segment.Start,
			End:          segment.End,
			Text:         text,
			NoSpeechProb: 1,
		})
	}

	return stt.Transcript{
		Text:     stt.JoinSegments(segs),
		Language: p.language,
		Segments: segs,
	}, nil
}
