// Package whisper provides whisper.cpp-backed STT providers.
//
// Provider talks to a running whisper-server binary (POST /inference).
// NativeProvider loads a model in-process through the whisper.cpp CGO
// bindings. Both accept any audio file pkg/audio can decode: the file is
// downmixed and resampled to the 16 kHz mono PCM whisper expects before
// inference.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("es"),
//	)
//	tr, err := p.TranscribeSegments(ctx, "reference_voices/ana.wav")
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

const (
	// whisperSampleRate is the only rate whisper models accept.
	whisperSampleRate = 16000

	// silenceRMS is the root-mean-square level (full scale = 1) below which a
	// file is treated as silent and not sent for inference.
	silenceRMS = 0.001

	defaultLanguage = "es"
	defaultTimeout  = 120 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "medium", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the language code sent to the whisper.cpp server
// (e.g., "es", "en"). Defaults to "es".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the HTTP client timeout. Long reference recordings can
// take a while on CPU-only servers. Defaults to 120 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the HTTP client entirely.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe returns the text spoken in the audio file at path.
func (p *Provider) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	res, err := p.infer(ctx, path, "json")
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: strings.TrimSpace(res.Text), Language: p.language}, nil
}

// TranscribeSegments returns the text spoken in the audio file at path,
// split into the segments whisper decoded.
func (p *Provider) TranscribeSegments(ctx context.Context, path string) (stt.Transcript, error) {
	res, err := p.infer(ctx, path, "verbose_json")
	if err != nil {
		return stt.Transcript{}, err
	}
	segs := make([]stt.Segment, 0, len(res.Segments))
	for _, s := range res.Segments {
		segs = append(segs, s.toSegment())
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		text = stt.JoinSegments(segs)
	}
	lang := res.Language
	if lang == "" {
		lang = p.language
	}
	return stt.Transcript{Text: text, Language: lang, Segments: segs}, nil
}

// inferenceResponse covers both the "json" and "verbose_json" formats.
type inferenceResponse struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []verboseSegment `json:"segments"`
	Error    string           `json:"error"`
}

type verboseSegment struct {
	Start        float64  `json:"start"`
	End          float64  `json:"end"`
	Text         string   `json:"text"`
	NoSpeechProb *float64 `json:"no_speech_prob"`
}

func (s verboseSegment) toSegment() stt.Segment {
	nsp := 1.0
	if s.NoSpeechProb != nil {
		nsp = *s.NoSpeechProb
	}
	return stt.Segment{
		Start:        secondsToDuration(s.Start),
		End:          secondsToDuration(s.End),
		Text:         strings.TrimSpace(s.Text),
		NoSpeechProb: nsp,
	}
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// infer loads the file, re-encodes it as 16 kHz mono WAV and POSTs it to the
// whisper.cpp /inference endpoint as multipart/form-data.
func (p *Provider) infer(ctx context.Context, path, format string) (inferenceResponse, error) {
	w, err := loadForWhisper(path)
	if err != nil {
		return inferenceResponse{}, err
	}
	if computeRMS(w.Samples) < silenceRMS {
		return inferenceResponse{}, fmt.Errorf("whisper: %q: %w", path, stt.ErrNoSpeech)
	}
	wav := audio.EncodeWAV(w)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: write wav data: %w", err)
	}

	fields := map[string]string{
		"response_format": format,
		"language":        p.language,
		"model":           p.model,
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return inferenceResponse{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return inferenceResponse{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result inferenceResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return inferenceResponse{}, fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	if result.Error != "" {
		return inferenceResponse{}, fmt.Errorf("whisper: server error: %s", result.Error)
	}
	return result, nil
}

// ---- helpers ----------------------------------------------------------------

// loadForWhisper decodes path and converts it to whisper's input format.
func loadForWhisper(path string) (audio.Waveform, error) {
	w, err := audio.ReadFile(path)
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("whisper: %w", err)
	}
	return audio.Resample(w, whisperSampleRate), nil
}

// computeRMS returns the root-mean-square level of samples. Returns 0 for an
// empty slice.
func computeRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
