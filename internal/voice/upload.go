package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voxclone/internal/observe"
	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// probeSuffixes are tried in order when resolving an uncached id on disk.
var probeSuffixes = []string{"", ".wav", ".mp3", ".m4a", ".flac", processedSuffix}

const (
	processedSuffix = "_processed.wav"
	tempSuffix      = "_temp.wav"
)

// ProcessedPath returns where the processed clip for id is written.
func (s *Store) ProcessedPath(id string) string {
	return filepath.Join(s.dir, id+processedSuffix)
}

// ProcessUpload turns the recording at path into the reference voice id,
// replacing any cached record for that id. An empty id is derived from the
// file content with [HashID]; a supplied id is passed through
// [NormalizeID].
//
// Recordings longer than 10 s are cut down to the best scoring recognised
// segment (see [SelectSegment]); without segments the first 10 s are kept.
// Recognition failures do not fail the upload: the voice is stored with an
// empty transcript and default stats.
func (s *Store) ProcessUpload(ctx context.Context, path, id string) (Record, error) {
	if id == "" {
		var err error
		if id, err = HashID(path); err != nil {
			return Record{}, fmt.Errorf("%w: %w", ErrUnsupportedUpload, err)
		}
	} else {
		id = NormalizeID(id)
	}
	if !validID(id) {
		return Record{}, fmt.Errorf("%w: invalid voice id %q", ErrUnsupportedUpload, id)
	}

	unlock := s.ids.Lock(id)
	defer unlock()
	return s.process(ctx, path, id)
}

// process runs the upload pipeline. The caller holds the id lock.
func (s *Store) process(ctx context.Context, path, id string) (rec Record, err error) {
	ctx, span := observe.StartSpan(ctx, "voice.process",
		trace.WithAttributes(attribute.String("voice.id", id)),
	)
	defer func() {
		observe.RecordError(span, err)
		span.End()
		s.metrics.RecordUpload(ctx, observe.StatusOf(err))
	}()

	log := observe.Logger(ctx).With("voice_id", id)

	w, err := s.proc.PreprocessReference(ctx, path)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrUnsupportedUpload, err)
	}
	if w.Empty() {
		return Record{}, fmt.Errorf("%w: %s holds no audio", ErrUnsupportedUpload, filepath.Base(path))
	}
	log.Info("voice: processing", "duration", w.Duration().Round(100*time.Millisecond))

	var (
		clip       = w
		transcript string
		known      bool
	)
	if w.Duration() > maxReference {
		clip, transcript, known = s.selectReference(ctx, id, w)
	}

	out := s.ProcessedPath(id)
	if err := audio.WriteFile(out, clip); err != nil {
		return Record{}, fmt.Errorf("voice: write %s: %w", out, err)
	}

	if !known {
		tr, err := s.transcribe(ctx, out, false)
		if err != nil {
			log.Warn("voice: continuing without transcript", "err", err)
		}
		transcript = tr.Text
	}

	rec = Record{
		ID:                  id,
		ReferenceAudioPath:  out,
		ReferenceTranscript: transcript,
		Stats:               s.proc.CalculateSpeechRate(clip, transcript),
	}

	if s.mirror != nil {
		if err := s.mirror.Upload(ctx, filepath.Base(out), out); err != nil {
			log.Warn("voice: mirror upload failed", "err", err)
		}
	}

	s.put(rec)
	log.Info("voice: ready",
		"duration", clip.Duration().Round(100*time.Millisecond),
		"transcript", preview(transcript),
		"wpm", rec.Stats.WordsPerMinute,
	)
	return rec, nil
}

// selectReference cuts a long recording down to its best segment. known
// reports whether transcript already belongs to clip.
func (s *Store) selectReference(ctx context.Context, id string, w audio.Waveform) (clip audio.Waveform, transcript string, known bool) {
	log := observe.Logger(ctx).With("voice_id", id)

	temp := filepath.Join(s.dir, id+tempSuffix)
	if err := audio.WriteFile(temp, w); err != nil {
		log.Warn("voice: write temp clip", "err", err)
		return w.Slice(0, maxReference.Seconds()), "", false
	}
	defer func() {
		if err := os.Remove(temp); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("voice: remove temp clip", "err", err)
		}
	}()

	tr, err := s.transcribe(ctx, temp, true)
	if err != nil {
		log.Warn("voice: segmentation failed", "err", err)
	}
	best, ok := SelectSegment(tr.Segments)
	if ok {
		seg := w.Slice(best.Start.Seconds(), best.End.Seconds())
		if !seg.Empty() {
			log.Info("voice: selected segment",
				"start", best.Start, "end", best.End, "score", best.Score)
			return seg, best.Text, true
		}
	}
	log.Info("voice: no usable segment, keeping first 10s")
	return w.Slice(0, maxReference.Seconds()), "", false
}

// transcribe runs the transcriber on path. A recording without speech
// yields an empty transcript and no error; every other failure is wrapped
// in [ErrTranscriptionUnavailable].
func (s *Store) transcribe(ctx context.Context, path string, segments bool) (stt.Transcript, error) {
	p, release, err := s.transcriber.Acquire(ctx)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("%w: %w", ErrTranscriptionUnavailable, err)
	}
	defer release()

	kind := "text"
	if segments {
		kind = "segments"
	}
	ctx, span := observe.StartSpan(ctx, "voice.transcribe",
		trace.WithAttributes(attribute.String("kind", kind)),
	)
	defer span.End()

	start := time.Now()
	var tr stt.Transcript
	if segments {
		tr, err = p.TranscribeSegments(ctx, path)
	} else {
		tr, err = p.Transcribe(ctx, path)
	}
	if errors.Is(err, stt.ErrNoSpeech) {
		err = nil
		tr = stt.Transcript{}
	}
	s.metrics.TranscriptionDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			observe.Attr("kind", kind),
			observe.Attr("status", observe.StatusOf(err)),
		),
	)
	if err != nil {
		observe.RecordError(span, err)
		return stt.Transcript{}, fmt.Errorf("%w: %w", ErrTranscriptionUnavailable, err)
	}
	return tr, nil
}

// locate finds a source recording for id in the reference directory,
// falling back to the mirror.
func (s *Store) locate(ctx context.Context, id string) (string, bool) {
	for _, suffix := range probeSuffixes {
		p := filepath.Join(s.dir, id+suffix)
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			return p, true
		}
	}
	if p, ok := s.locateFolded(id); ok {
		return p, true
	}
	if s.mirror == nil {
		return "", false
	}
	dst := s.ProcessedPath(id)
	if err := s.mirror.Download(ctx, filepath.Base(dst), dst); err != nil {
		observe.Logger(ctx).Debug("voice: not in mirror", "voice_id", id, "err", err)
		return "", false
	}
	return dst, true
}

// locateFolded matches the extensions of probeSuffixes case-insensitively,
// so Ana.WAV resolves as Ana on case-sensitive filesystems too.
func (s *Store) locateFolded(id string) (string, bool) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return "", false
	}
	for _, suffix := range probeSuffixes[1:] {
		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || len(name) != len(id)+len(suffix) || !strings.HasPrefix(name, id) {
				continue
			}
			if strings.EqualFold(name[len(id):], suffix) {
				return filepath.Join(s.dir, name), true
			}
		}
	}
	return "", false
}
