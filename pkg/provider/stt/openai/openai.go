// Package openai provides an STT provider backed by the OpenAI audio
// transcription API or any server that implements it (e.g., faster-whisper
// servers exposing /v1/audio/transcriptions).
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// DefaultModel is the default OpenAI transcription model. Only whisper-1
// returns segments in verbose_json responses.
const DefaultModel = oai.AudioModelWhisper1

// Ensure Provider implements the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    string
	language string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	language string
	timeout  time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithLanguage sets the ISO-639-1 language hint. Defaults to "es".
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI transcription Provider.
// If model is empty, DefaultModel (whisper-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{language: "es"}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model, language: cfg.language}, nil
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	resp, err := p.transcribe(ctx, path, oai.AudioResponseFormatJSON, nil)
	if err != nil {
		return stt.Transcript{}, err
	}
	return stt.Transcript{Text: strings.TrimSpace(resp.Text), Language: p.language}, nil
}

// TranscribeSegments implements stt.Provider. Segments are decoded from the
// verbose_json body, which the SDK exposes only as raw JSON.
func (p *Provider) TranscribeSegments(ctx context.Context, path string) (stt.Transcript, error) {
	resp, err := p.transcribe(ctx, path, oai.AudioResponseFormatVerboseJSON, []string{"segment"})
	if err != nil {
		return stt.Transcript{}, err
	}

	var verbose verboseTranscription
	if raw := resp.RawJSON(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &verbose); err != nil {
			return stt.Transcript{}, fmt.Errorf("openai stt: parse segments: %w", err)
		}
	}

	segs := make([]stt.Segment, 0, len(verbose.Segments))
	for _, s := range verbose.Segments {
		nsp := 1.0
		if s.NoSpeechProb != nil {
			nsp = *s.NoSpeechProb
		}
		segs = append(segs, stt.Segment{
			Start:        seconds(s.Start),
			End:          seconds(s.End),
			Text:         strings.TrimSpace(s.Text),
			NoSpeechProb: nsp,
		})
	}

	lang := verbose.Language
	if lang == "" {
		lang = p.language
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		text = stt.JoinSegments(segs)
	}
	return stt.Transcript{Text: text, Language: lang, Segments: segs}, nil
}

func (p *Provider) transcribe(ctx context.Context, path string, format oai.AudioResponseFormat, granularities []string) (*oai.Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("openai stt: open %q: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}

	params := oai.AudioTranscriptionNewParams{
		File:                   oai.File(f, name, ctype),
		Model:                  p.model,
		ResponseFormat:         format,
		TimestampGranularities: granularities,
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return resp, nil
}

// verboseTranscription is the part of a verbose_json response the SDK's
// Transcription type does not model.
type verboseTranscription struct {
	Language string `json:"language"`
	Segments []struct {
		Start        float64  `json:"start"`
		End          float64  `json:"end"`
		Text         string   `json:"text"`
		NoSpeechProb *float64 `json:"no_speech_prob"`
	} `json:"segments"`
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
