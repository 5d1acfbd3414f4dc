package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
	sttmock "github.com/MrWong99/voxclone/pkg/provider/stt/mock"
)

func TestTranscriberFallback_PrimarySuccess(t *testing.T) {
	primary := &sttmock.Provider{Text: "hola"}
	secondary := &sttmock.Provider{Text: "adiós"}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	tr, err := fb.Transcribe(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "hola" {
		t.Fatalf("text = %q, want hola", tr.Text)
	}
	if n, _ := secondary.Calls(); n != 0 {
		t.Fatalf("secondary called %d times, want 0", n)
	}
}

func TestTranscriberFallback_Failover(t *testing.T) {
	primary := &sttmock.Provider{SegmentsErr: errors.New("primary down")}
	secondary := &sttmock.Provider{Segments: []stt.Segment{{Text: "uno"}, {Text: "dos"}}}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("secondary", secondary)

	tr, err := fb.TranscribeSegments(context.Background(), "a.wav")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tr.Text != "uno dos" || len(tr.Segments) != 2 {
		t.Fatalf("transcript = %+v", tr)
	}
}

func TestTranscriberFallback_NoSpeechIsDefinitive(t *testing.T) {
	primary := &sttmock.Provider{TranscribeErr: fmt.Errorf("whisper: %w", stt.ErrNoSpeech)}
	secondary := &sttmock.Provider{Text: "should not be used"}

	fb := NewTranscriberFallback(primary, "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1},
	})
	fb.AddFallback("secondary", secondary)

	_, err := fb.Transcribe(context.Background(), "silence.wav")
	if !errors.Is(err, stt.ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
	if n, _ := secondary.Calls(); n != 0 {
		t.Fatalf("secondary called %d times, want 0", n)
	}
	if s := fb.Breakers()[0].State(); s != StateClosed {
		t.Fatalf("primary breaker = %v, want closed", s)
	}
}

func TestTranscriberFallback_AllFail(t *testing.T) {
	fb := NewTranscriberFallback(&sttmock.Provider{TranscribeErr: errors.New("a")}, "a", FallbackConfig{})
	fb.AddFallback("b", &sttmock.Provider{TranscribeErr: errors.New("b")})

	if _, err := fb.Transcribe(context.Background(), "x.wav"); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestTranscriberFallback_CloseClosesAll(t *testing.T) {
	a, b := &sttmock.Provider{}, &sttmock.Provider{}
	fb := NewTranscriberFallback(a, "a", FallbackConfig{})
	fb.AddFallback("b", b)

	if err := fb.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if a.CloseCalls != 1 || b.CloseCalls != 1 {
		t.Fatalf("close calls = %d, %d; want 1, 1", a.CloseCalls, b.CloseCalls)
	}
}
