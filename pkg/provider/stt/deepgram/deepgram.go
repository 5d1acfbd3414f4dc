// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// pre-recorded audio REST API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "es"
	defaultTimeout   = 120 * time.Second
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "es", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the API endpoint. Used by tests and self-hosted
// deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram pre-recorded API.
type Provider struct {
	apiKey     string
	model      string
	language   string
	endpoint   string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		endpoint:   deepgramEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe returns the transcript of the audio file at path.
func (p *Provider) Transcribe(ctx context.Context, path string) (stt.Transcript, error) {
	resp, err := p.listen(ctx, path, false)
	if err != nil {
		return stt.Transcript{}, err
	}
	return resp.transcript(p.language, false), nil
}

// TranscribeSegments returns the transcript of the audio file at path split
// into Deepgram utterances. Deepgram reports a confidence rather than a
// no-speech probability; segments carry 1 - confidence.
func (p *Provider) TranscribeSegments(ctx context.Context, path string) (stt.Transcript, error) {
	resp, err := p.listen(ctx, path, true)
	if err != nil {
		return stt.Transcript{}, err
	}
	return resp.transcript(p.language, true), nil
}

// buildURL constructs the Deepgram endpoint URL.
func (p *Provider) buildURL(utterances bool) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	if utterances {
		q.Set("utterances", "true")
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (p *Provider) listen(ctx context.Context, path string, utterances bool) (deepgramResponse, error) {
	w, err := audio.ReadFile(path)
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: %w", err)
	}
	if audio.Peak(w.Samples) == 0 {
		return deepgramResponse{}, fmt.Errorf("deepgram: %q: %w", path, stt.ErrNoSpeech)
	}

	endpoint, err := p.buildURL(utterances)
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio.EncodeWAV(w)))
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return deepgramResponse{}, fmt.Errorf("deepgram: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out deepgramResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return deepgramResponse{}, fmt.Errorf("deepgram: parse JSON response: %w", err)
	}
	return out, nil
}

// ---- response ----

// deepgramResponse is the subset of the pre-recorded response voxclone uses.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			DetectedLanguage string `json:"detected_language"`
			Alternatives     []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
		Utterances []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"utterances"`
	} `json:"results"`
}

func (r deepgramResponse) transcript(lang string, withSegments bool) stt.Transcript {
	t := stt.Transcript{Language: lang}
	if chs := r.Results.Channels; len(chs) > 0 {
		if chs[0].DetectedLanguage != "" {
			t.Language = chs[0].DetectedLanguage
		}
		if alts := chs[0].Alternatives; len(alts) > 0 {
			t.Text = strings.TrimSpace(alts[0].Transcript)
		}
	}
	if !withSegments {
		return t
	}
	for _, u := range r.Results.Utterances {
		t.Segments = append(t.Segments, stt.Segment{
			Start:        seconds(u.Start),
			End:          seconds(u.End),
			Text:         strings.TrimSpace(u.Transcript),
			NoSpeechProb: math.Max(0, 1-u.Confidence),
		})
	}
	if t.Text == "" {
		t.Text = stt.JoinSegments(t.Segments)
	}
	return t
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
