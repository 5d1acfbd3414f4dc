// Package httpapi exposes the voice store and the synthesis orchestrator
// over HTTP:
//
//   - GET  /health        server status and sampling parameters
//   - GET  /voices        cached reference voices
//   - POST /upload_voice  multipart upload of a new reference recording
//   - POST /tts           synthesize text in a stored voice
//   - POST /tts_batch     alias of /tts
//
// Every error response is a JSON object with an "error" field.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrWong99/voxclone/internal/synth"
	"github.com/MrWong99/voxclone/internal/voice"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// DefaultMaxUploadBytes caps multipart uploads when no limit is configured.
const DefaultMaxUploadBytes = 50 << 20

// maxJSONBytes caps synthesis request bodies.
const maxJSONBytes = 1 << 20

// VoiceStore is the part of *voice.Store the API uses.
type VoiceStore interface {
	ListVoices() []voice.Summary
	IDs() []string
	Len() int
	Dir() string
	ProcessUpload(ctx context.Context, path, id string) (voice.Record, error)
}

// Synthesizer is the part of *synth.Orchestrator the API uses.
type Synthesizer interface {
	GenerateForVoice(ctx context.Context, text, voiceID string) (synth.Result, error)
	Quality() tts.Quality
	Info() tts.Info
}

var (
	_ VoiceStore  = (*voice.Store)(nil)
	_ Synthesizer = (*synth.Orchestrator)(nil)
)

// Option configures an [API].
type Option func(*API)

// WithMaxUploadBytes caps the size of an upload request body.
func WithMaxUploadBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxUpload = n
		}
	}
}

// WithUploadLimit rate-limits uploads per client address to rps requests
// per second with the given burst. rps <= 0 disables the limit.
func WithUploadLimit(rps float64, burst int) Option {
	return func(a *API) {
		if rps > 0 {
			a.uploads = newClientLimiter(rps, max(burst, 1))
		} else {
			a.uploads = nil
		}
	}
}

// WithCORSOrigins sets the origins allowed to call the API from a browser.
func WithCORSOrigins(origins ...string) Option {
	return func(a *API) { a.corsOrigins = origins }
}

// API serves the HTTP endpoints. Create it with [New].
type API struct {
	voices      VoiceStore
	synth       Synthesizer
	maxUpload   int64
	uploads     *clientLimiter
	corsOrigins []string
}

// New returns an API backed by voices and s.
func New(voices VoiceStore, s Synthesizer, opts ...Option) (*API, error) {
	if voices == nil {
		return nil, errors.New("httpapi: voice store must not be nil")
	}
	if s == nil {
		return nil, errors.New("httpapi: synthesizer must not be nil")
	}
	a := &API{
		voices:    voices,
		synth:     s,
		maxUpload: DefaultMaxUploadBytes,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Register adds the API routes to mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("GET /voices", a.handleVoices)
	mux.Handle("POST /upload_voice", a.limitUploads(http.HandlerFunc(a.handleUpload)))
	mux.HandleFunc("POST /tts", a.handleTTS)
	mux.HandleFunc("POST /tts_batch", a.handleTTS)
}

// Handler returns a mux with the API routes wrapped in the CORS middleware.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.Register(mux)
	return a.CORS(mux)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error           string   `json:"error"`
	AvailableVoices []string `json:"available_voices,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
