package whisper_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/voxclone/pkg/provider/stt/whisper"
)

func TestNewNative_RejectsBadModel(t *testing.T) {
	for name, path := range map[string]string{
		"empty":   "",
		"missing": filepath.Join(t.TempDir(), "ggml-large-v3.bin"),
	} {
		t.Run(name, func(t *testing.T) {
			if p, err := whisper.NewNative(path); err == nil {
				p.Close()
				t.Fatalf("NewNative(%q) succeeded", path)
			}
		})
	}
}

// Needs a ggml model; set WHISPER_MODEL_PATH to run.
func TestNativeProvider(t *testing.T) {
	modelPath := os.Getenv("WHISPER_MODEL_PATH")
	if modelPath == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(modelPath, whisper.WithNativeLanguage("es"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()
	ctx := context.Background()

	t.Run("tone segments", func(t *testing.T) {
		tr, err := p.TranscribeSegments(ctx, writeTone(t, 2, 24000, 0.5))
		if err != nil {
			t.Fatalf("TranscribeSegments: %v", err)
		}
		for _, s := range tr.Segments {
			if s.NoSpeechProb != 1 {
				t.Errorf("NoSpeechProb = %v, want 1", s.NoSpeechProb)
			}
			if s.Text != strings.TrimSpace(s.Text) {
				t.Errorf("untrimmed segment text %q", s.Text)
			}
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := p.Transcribe(ctx, filepath.Join(t.TempDir(), "ana.wav")); err == nil {
			t.Error("Transcribe of a missing file succeeded")
		}
	})
}
