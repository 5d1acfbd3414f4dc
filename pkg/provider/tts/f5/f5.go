// Package f5 provides a TTS provider that talks to a voice-cloning synthesis
// server over HTTP. It implements the tts.Provider interface.
//
// Two API modes are supported:
//
//   - APIModeF5 (default): targets an F5-TTS inference server. Synthesis is
//     performed via POST /synthesize with a multipart body carrying the
//     reference recording, its transcript, the text to speak and the
//     sampling parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is performed
//     via POST /tts_to_audio/ with a JSON body; the reference recording is
//     uploaded once via POST /clone_speaker and the returned speaker name is
//     reused for later calls. XTTS ignores the sampling parameters except
//     speed.
//
// Both servers answer with a WAV file, which is decoded into a mono
// audio.Waveform.
//
// Typical usage:
//
//	p, err := f5.New("http://localhost:7860",
//	    f5.WithModel("F5TTS_v1_Base"),
//	    f5.WithTimeout(2*time.Minute),
//	)
//	w, err := p.Synthesize(ctx, tts.Request{Text: "Hola", RefAudioPath: ref, RefText: refText})
package f5

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// Compile-time interface assertions.
var (
	_ tts.Provider  = (*Provider)(nil)
	_ tts.Describer = (*Provider)(nil)
)

// ---- constants ----

const (
	defaultLanguage = "es"
	defaultTimeout  = 120 * time.Second

	synthesizeEndpoint   = "/synthesize"
	xttsEndpoint         = "/tts_to_audio/"
	cloneSpeakerEndpoint = "/clone_speaker"
)

// ---- APIMode ----

// APIMode selects which server API the provider will target.
type APIMode string

const (
	// APIModeF5 targets an F5-TTS server (/synthesize). This is the default.
	APIModeF5 APIMode = "f5"

	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"
)

// ---- options ----

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the language code sent to the server (e.g., "es", "en").
// Only XTTS uses it. Defaults to "es".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout. Synthesis on CPU can take
// a long time; defaults to 120 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithAPIMode sets the server API mode.
func WithAPIMode(mode APIMode) Option {
	return func(p *Provider) {
		p.apiMode = mode
	}
}

// WithModel sets the model name forwarded to the server and reported by
// Describe.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithDevice sets the device reported by Describe (e.g., "cuda", "cpu").
// The server decides where it actually runs.
func WithDevice(device string) Option {
	return func(p *Provider) {
		p.device = device
	}
}

// ---- Provider ----

// Provider implements tts.Provider backed by an HTTP synthesis server.
type Provider struct {
	serverURL  string
	language   string
	model      string
	device     string
	httpClient *http.Client
	apiMode    APIMode

	// speakers maps reference paths to the XTTS speaker cloned from them,
	// tagged with the content hash it was cloned from.
	mu       sync.Mutex
	speakers map[string]clonedSpeaker
}

// New creates a new Provider that targets the server at serverURL
// (e.g., "http://localhost:7860"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("f5: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		device:    "remote",
		apiMode:   APIModeF5,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		speakers: make(map[string]clonedSpeaker),
	}
	for _, o := range opts {
		o(p)
	}
	switch p.apiMode {
	case APIModeF5, APIModeXTTS:
	default:
		return nil, fmt.Errorf("f5: unknown API mode %q", p.apiMode)
	}
	return p, nil
}

// Describe implements tts.Describer.
func (p *Provider) Describe() tts.Info {
	model := p.model
	if model == "" {
		model = string(p.apiMode)
	}
	return tts.Info{Provider: "f5", Model: model, Device: p.device}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Waveform, error) {
	if strings.TrimSpace(req.Text) == "" {
		return audio.Waveform{}, errors.New("f5: text must not be empty")
	}
	if req.RefAudioPath == "" {
		return audio.Waveform{}, errors.New("f5: reference audio path must not be empty")
	}

	var (
		wav []byte
		err error
	)
	if p.apiMode == APIModeXTTS {
		wav, err = p.synthesizeXTTS(ctx, req)
	} else {
		wav, err = p.synthesizeF5(ctx, req)
	}
	if err != nil {
		return audio.Waveform{}, err
	}

	w, err := audio.Decode(wav, ".wav")
	if err != nil {
		return audio.Waveform{}, fmt.Errorf("f5: decode WAV response: %w", err)
	}
	return w, nil
}

// synthesizeF5 performs a single POST /synthesize call and returns the WAV
// body.
func (p *Provider) synthesizeF5(ctx context.Context, req tts.Request) ([]byte, error) {
	ref, err := os.ReadFile(req.RefAudioPath)
	if err != nil {
		return nil, fmt.Errorf("f5: read reference audio: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("ref_audio", filepath.Base(req.RefAudioPath))
	if err != nil {
		return nil, fmt.Errorf("f5: create form file: %w", err)
	}
	if _, err := fw.Write(ref); err != nil {
		return nil, fmt.Errorf("f5: write form file: %w", err)
	}

	q := req.Quality
	fields := [][2]string{
		{"ref_text", req.RefText},
		{"gen_text", req.Text},
		{"nfe_step", strconv.Itoa(q.NFEStep)},
		{"sway_sampling_coef", strconv.FormatFloat(q.SwaySampling, 'f', -1, 64)},
		{"speed", strconv.FormatFloat(q.Speed, 'f', -1, 64)},
		{"remove_silence", strconv.FormatBool(q.RemoveSilence)},
	}
	if p.model != "" {
		fields = append(fields, [2]string{"model", p.model})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, fmt.Errorf("f5: write %s field: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("f5: close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesizeEndpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("f5: create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	httpReq.Header.Set("Accept", "audio/wav")

	return p.doAudio(httpReq, synthesizeEndpoint)
}

// xttsRequest is the JSON body sent to POST /tts_to_audio/.
type xttsRequest struct {
	Text       string  `json:"text"`
	SpeakerWav string  `json:"speaker_wav"`
	Language   string  `json:"language"`
	Speed      float64 `json:"speed,omitempty"`
}

// cloneSpeakerResponse is the JSON body returned by POST /clone_speaker.
type cloneSpeakerResponse struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call, cloning the
// reference speaker first if this provider has not seen it yet.
func (p *Provider) synthesizeXTTS(ctx context.Context, req tts.Request) ([]byte, error) {
	speaker, err := p.speaker(ctx, req.RefAudioPath)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(xttsRequest{
		Text:       req.Text,
		SpeakerWav: speaker,
		Language:   p.language,
		Speed:      req.Quality.Speed,
	})
	if err != nil {
		return nil, fmt.Errorf("f5: marshal tts request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("f5: create tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")

	return p.doAudio(httpReq, xttsEndpoint)
}

type clonedSpeaker struct {
	sum  [sha256.Size]byte
	name string
}

// speaker returns the XTTS speaker name for the reference at path, uploading
// it via POST /clone_speaker on first use and again whenever the file's
// content changes.
func (p *Provider) speaker(ctx context.Context, path string) (string, error) {
	ref, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("f5: read reference audio: %w", err)
	}
	sum := sha256.Sum256(ref)

	p.mu.Lock()
	cached, ok := p.speakers[path]
	p.mu.Unlock()
	if ok && cached.sum == sum {
		return cached.name, nil
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("wav_files", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("f5: create form file: %w", err)
	}
	if _, err := fw.Write(ref); err != nil {
		return "", fmt.Errorf("f5: write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("f5: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+cloneSpeakerEndpoint, &body)
	if err != nil {
		return "", fmt.Errorf("f5: create clone-speaker request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("f5: POST %s: %w", cloneSpeakerEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("f5: POST %s returned status %d", cloneSpeakerEndpoint, resp.StatusCode)
	}

	var cloneResp cloneSpeakerResponse
	if err := json.NewDecoder(resp.Body).Decode(&cloneResp); err != nil {
		return "", fmt.Errorf("f5: decode clone-speaker response: %w", err)
	}
	if cloneResp.Name == "" {
		return "", errors.New("f5: clone-speaker response missing name")
	}

	p.mu.Lock()
	p.speakers[path] = clonedSpeaker{sum: sum, name: cloneResp.Name}
	p.mu.Unlock()
	return cloneResp.Name, nil
}

// doAudio sends req and returns the response body of a 200 answer.
func (p *Provider) doAudio(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("f5: POST %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("f5: POST %s returned status %d: %s", endpoint, resp.StatusCode, bytes.TrimSpace(msg))
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("f5: read WAV response: %w", err)
	}
	return wav, nil
}
