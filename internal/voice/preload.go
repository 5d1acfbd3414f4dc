package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxclone/internal/observe"
)

// PreloadReport counts the outcome of [Store.PreloadAll].
type PreloadReport struct {
	Loaded  int
	Failed  int
	Skipped int
}

// PreloadAll processes every raw recording in the reference directory so
// that first requests do not pay for it. Processed outputs and ids that
// are already cached are skipped; per-file failures are logged and counted
// without stopping the scan. The transcriber is unloaded afterwards.
//
// The returned error is non-nil only when the directory cannot be read or
// ctx is cancelled.
func (s *Store) PreloadAll(ctx context.Context) (PreloadReport, error) {
	defer s.transcriber.Unload()

	log := observe.Logger(ctx)
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return PreloadReport{}, nil
	}
	if err != nil {
		return PreloadReport{}, fmt.Errorf("voice: preload: %w", err)
	}

	var (
		mu     sync.Mutex
		report PreloadReport
		seen   = make(map[string]bool)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.preloadWorkers)

	log.Info("voice: preloading", "dir", s.dir)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isSourceRecording(name) {
			continue
		}
		id := NormalizeID(name)
		// ana.wav and ana.mp3 resolve to the same voice.
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := s.cached(id); ok {
			report.Skipped++
			continue
		}

		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.GetVoice(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				log.Warn("voice: preload failed", "file", name, "err", err)
				report.Failed++
				return nil
			}
			report.Loaded++
			return nil
		})
	}
	err = g.Wait()

	log.Info("voice: preload complete",
		"loaded", report.Loaded,
		"failed", report.Failed,
		"skipped", report.Skipped,
	)
	if err != nil {
		return report, fmt.Errorf("voice: preload: %w", err)
	}
	return report, nil
}

// isSourceRecording reports whether name is a raw recording rather than
// one of the store's own outputs or a hidden upload in progress.
func isSourceRecording(name string) bool {
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, processedSuffix) || strings.HasSuffix(name, tempSuffix) {
		return false
	}
	return slices.Contains(audioExtensions, strings.ToLower(filepath.Ext(name)))
}
