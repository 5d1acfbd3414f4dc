// Package voice manages the reference voices used to condition synthesis.
//
// A [Store] owns a directory of reference recordings. Uploads are
// preprocessed, trimmed to the best 5–10 s stretch of speech, transcribed
// and analysed, then written back as {id}_processed.wav and cached as a
// [Record]. Lookups of ids that are not cached yet are resolved from the
// directory (or an optional [Mirror]) on demand.
//
// The Store is safe for concurrent use. At most one upload per id is
// processed at a time, and concurrent lookups of the same uncached id share
// one processing run.
package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/MrWong99/voxclone/internal/audioproc"
	"github.com/MrWong99/voxclone/internal/observe"
)

// Sentinel errors.
var (
	// ErrVoiceNotFound is returned when an id is neither cached nor
	// resolvable from the reference directory.
	ErrVoiceNotFound = errors.New("voice: not found")

	// ErrUnsupportedUpload is returned when an upload holds no decodable
	// audio or carries an unusable id.
	ErrUnsupportedUpload = errors.New("voice: unsupported upload")

	// ErrTranscriptionUnavailable wraps speech-recognition failures. Uploads
	// never fail with it; it is logged and the voice gets an empty
	// transcript and default stats.
	ErrTranscriptionUnavailable = errors.New("voice: transcription unavailable")
)

// Record is a processed reference voice. Records are replaced whole, never
// mutated.
type Record struct {
	ID                  string
	ReferenceAudioPath  string
	ReferenceTranscript string
	Stats               audioproc.VoiceStats
}

// Summary describes a cached voice for listings.
type Summary struct {
	ID                   string
	DisplayName          string
	Language             string
	HasTranscription     bool
	TranscriptionPreview string
}

// previewRunes is the length of [Summary.TranscriptionPreview] before the
// ellipsis.
const previewRunes = 50

// Mirror is a remote copy of processed reference clips. Upload is called
// after every successful processing run; Download is tried when an id is
// missing locally.
type Mirror interface {
	Upload(ctx context.Context, name, path string) error
	Download(ctx context.Context, name, path string) error
}

// Option configures a [Store].
type Option func(*Store)

// WithLanguage sets the language reported in listings. Defaults to "es".
func WithLanguage(lang string) Option {
	return func(s *Store) {
		if lang != "" {
			s.language = lang
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithMirror attaches a remote mirror for processed clips.
func WithMirror(m Mirror) Option {
	return func(s *Store) {
		s.mirror = m
	}
}

// WithPreloadWorkers sets how many voices [Store.PreloadAll] processes in
// parallel. Defaults to 1.
func WithPreloadWorkers(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.preloadWorkers = n
		}
	}
}

// Store is the reference-voice cache.
type Store struct {
	dir            string
	proc           *audioproc.Processor
	transcriber    *Transcriber
	mirror         Mirror
	metrics        *observe.Metrics
	language       string
	preloadWorkers int

	mu     sync.RWMutex
	voices map[string]Record

	ids   keyedMutex
	group singleflight.Group
}

// New returns a Store over dir, creating the directory when missing. tr may
// be nil, in which case every voice is stored without a transcript.
func New(dir string, proc *audioproc.Processor, tr *Transcriber, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("voice: directory must not be empty")
	}
	if proc == nil {
		return nil, errors.New("voice: audio processor must not be nil")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("voice: create %s: %w", dir, err)
	}
	s := &Store{
		dir:            dir,
		proc:           proc,
		transcriber:    tr,
		metrics:        observe.DefaultMetrics(),
		language:       "es",
		preloadWorkers: 1,
		voices:         make(map[string]Record),
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Dir returns the reference directory.
func (s *Store) Dir() string { return s.dir }

// Len returns the number of cached voices.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.voices)
}

func (s *Store) cached(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.voices[id]
	return rec, ok
}

func (s *Store) put(rec Record) {
	s.mu.Lock()
	s.voices[rec.ID] = rec
	s.mu.Unlock()
}

// GetVoice returns the record for id. An id that is not cached is looked up
// in the reference directory (and the mirror, when configured) and
// processed before returning. Unknown ids yield [ErrVoiceNotFound].
func (s *Store) GetVoice(ctx context.Context, id string) (Record, error) {
	id = NormalizeID(id)
	if !validID(id) {
		return Record{}, fmt.Errorf("voice: %q: %w", id, ErrVoiceNotFound)
	}
	if rec, ok := s.cached(id); ok {
		return rec, nil
	}

	v, err, _ := s.group.Do(id, func() (any, error) {
		unlock := s.ids.Lock(id)
		defer unlock()

		// An upload may have finished while we waited for the lock.
		if rec, ok := s.cached(id); ok {
			return rec, nil
		}
		path, ok := s.locate(ctx, id)
		if !ok {
			return Record{}, fmt.Errorf("voice: %q: %w", id, ErrVoiceNotFound)
		}
		observe.Logger(ctx).Info("voice: resolving from disk", "voice_id", id, "path", path)
		return s.process(ctx, path, id)
	})
	if err != nil {
		return Record{}, err
	}
	return v.(Record), nil
}

// ListVoices returns a summary of every cached voice, sorted by id.
func (s *Store) ListVoices() []Summary {
	s.mu.RLock()
	recs := make([]Record, 0, len(s.voices))
	for _, rec := range s.voices {
		recs = append(recs, rec)
	}
	s.mu.RUnlock()

	slices.SortFunc(recs, func(a, b Record) int { return strings.Compare(a.ID, b.ID) })

	title := cases.Title(language.Und)
	spaces := strings.NewReplacer("_", " ", "-", " ")
	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Summary{
			ID:                   rec.ID,
			DisplayName:          title.String(spaces.Replace(rec.ID)),
			Language:             s.language,
			HasTranscription:     rec.ReferenceTranscript != "",
			TranscriptionPreview: preview(rec.ReferenceTranscript),
		})
	}
	return out
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes]) + "..."
}

// IDs returns the cached voice ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.voices))
	for id := range s.voices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
