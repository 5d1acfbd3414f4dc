package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxclone/internal/config"
)

const baseYAML = `
server:
  log_level: info
providers:
  tts:
    name: f5
synthesis:
  crossfade_ms: 75
`

// revisions rewrites a config file and moves its mtime forward on every write,
// so revisions are distinguishable on filesystems with coarse timestamps.
type revisions struct {
	t    *testing.T
	path string
	at   time.Time
}

func newRevisions(t *testing.T, name, content string) *revisions {
	t.Helper()
	r := &revisions{t: t, path: filepath.Join(t.TempDir(), name), at: time.Now()}
	r.write(content)
	return r
}

func (r *revisions) write(content string) {
	r.t.Helper()
	if err := os.WriteFile(r.path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", r.path, err)
	}
	r.touch()
}

func (r *revisions) touch() {
	r.t.Helper()
	r.at = r.at.Add(2 * time.Second)
	if err := os.Chtimes(r.path, r.at, r.at); err != nil {
		r.t.Fatalf("chtimes %s: %v", r.path, err)
	}
}

// manual returns a watcher whose ticker never fires during the test.
func manual(t *testing.T, path string, onChange func(old, new *config.Config)) *config.Watcher {
	t.Helper()
	w, err := config.NewWatcher(path, onChange, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_Revisions(t *testing.T) {
	t.Parallel()
	rev := newRevisions(t, "config.yaml", baseYAML)

	var diffs []config.ConfigDiff
	w := manual(t, rev.path, func(old, new *config.Config) {
		diffs = append(diffs, config.Diff(old, new))
	})
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Fatalf("initial log_level = %q", got)
	}

	steps := []struct {
		name    string
		apply   func()
		applied bool
		level   config.LogLevel
	}{
		{"unchanged", func() {}, false, config.LogInfo},
		{"touch only", rev.touch, false, config.LogInfo},
		{"valid change", func() {
			rev.write("server:\n  log_level: debug\nproviders:\n  tts:\n    name: f5\nsynthesis:\n  crossfade_ms: 40\n")
		}, true, config.LogDebug},
		{"invalid level", func() { rev.write("server:\n  log_level: bananas\n") }, false, config.LogDebug},
		{"missing file", func() { _ = os.Remove(rev.path) }, false, config.LogDebug},
		{"restored", func() { rev.write(baseYAML) }, true, config.LogInfo},
	}
	for _, s := range steps {
		s.apply()
		if got := w.Reload(); got != s.applied {
			t.Errorf("%s: Reload() = %v, want %v", s.name, got, s.applied)
		}
		if got := w.Current().Server.LogLevel; got != s.level {
			t.Errorf("%s: log_level = %q, want %q", s.name, got, s.level)
		}
	}

	if len(diffs) != 2 {
		t.Fatalf("callbacks = %d, want 2", len(diffs))
	}
	if !diffs[0].LogLevelChanged || !diffs[0].CrossfadeChanged || diffs[0].NewCrossfadeMs != 40 {
		t.Errorf("first diff = %+v", diffs[0])
	}
	if diffs[1].NewLogLevel != config.LogInfo || diffs[1].NewCrossfadeMs != 75 {
		t.Errorf("second diff = %+v", diffs[1])
	}
}

func TestWatcher_PollsInBackground(t *testing.T) {
	t.Parallel()
	rev := newRevisions(t, "config.yaml", baseYAML)

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(rev.path, func(_, new *config.Config) {
		changed <- new
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	rev.write("server:\n  log_level: warn\nproviders:\n  tts:\n    name: f5\n")

	select {
	case cfg := <-changed:
		if cfg.Server.LogLevel != config.LogWarn {
			t.Errorf("log_level = %q, want warn", cfg.Server.LogLevel)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("change not picked up")
	}
}

func TestWatcher_InitialLoadFails(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Error("NewWatcher on a missing file should fail")
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	rev := newRevisions(t, "config.yaml", baseYAML)
	w := manual(t, rev.path, nil)
	w.Stop()
	w.Stop()
}

func TestWatcher_ReloadTOML(t *testing.T) {
	t.Parallel()
	rev := newRevisions(t, "voxclone.toml", "[providers.tts]\nname = \"f5\"\n")

	var got config.ConfigDiff
	w := manual(t, rev.path, func(old, new *config.Config) {
		got = config.Diff(old, new)
	})

	rev.write("[providers.tts]\nname = \"f5\"\n[synthesis]\nmax_chunk_chars = 90\n")
	if !w.Reload() {
		t.Fatal("Reload did not pick up the change")
	}
	if !got.MaxChunkCharsChanged || got.NewMaxChunkChars != 90 {
		t.Errorf("diff = %+v, want max_chunk_chars 90", got)
	}
	if w.Current().Synthesis.MaxChunkChars != 90 {
		t.Errorf("Current() max_chunk_chars = %d", w.Current().Synthesis.MaxChunkChars)
	}
}
