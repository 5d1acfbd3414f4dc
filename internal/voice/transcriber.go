package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
)

// TranscriberFactory builds the speech-recognition backend. It is called on
// first use and again after every [Transcriber.Unload].
type TranscriberFactory func(ctx context.Context) (stt.Provider, error)

// Transcriber is a lazily created, lease-counted handle on an
// [stt.Provider]. Backends that hold a loaded model implement io.Closer and
// are closed by [Transcriber.Unload] once no lease is outstanding.
type Transcriber struct {
	factory TranscriberFactory

	mu      sync.Mutex
	p       stt.Provider
	leases  int
	pending bool // Unload called while leases were out
	loads   int
}

// NewTranscriber returns a handle that builds its backend with factory.
func NewTranscriber(factory TranscriberFactory) *Transcriber {
	return &Transcriber{factory: factory}
}

// Acquire returns the backend, creating it if needed, together with the
// function that releases the lease. Creation happens under the handle's
// lock, so concurrent first calls build exactly one backend. release is
// safe to call more than once.
func (t *Transcriber) Acquire(ctx context.Context) (stt.Provider, func(), error) {
	if t == nil || t.factory == nil {
		return nil, nil, errors.New("voice: no transcriber configured")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.p == nil {
		p, err := t.factory(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("voice: load transcriber: %w", err)
		}
		if p == nil {
			return nil, nil, errors.New("voice: transcriber factory returned nil")
		}
		t.p = p
		t.loads++
		slog.Info("voice: transcriber loaded", "loads", t.loads)
	}
	t.leases++
	return t.p, sync.OnceFunc(t.release), nil
}

func (t *Transcriber) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leases--
	if t.leases == 0 && t.pending {
		t.closeLocked()
	}
}

// Unload releases the backend. When leases are outstanding the backend is
// closed as soon as the last one is released.
func (t *Transcriber) Unload() {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.p == nil {
		return
	}
	if t.leases > 0 {
		t.pending = true
		return
	}
	t.closeLocked()
}

func (t *Transcriber) closeLocked() {
	if c, ok := t.p.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("voice: closing transcriber", "err", err)
		}
	}
	t.p = nil
	t.pending = false
	slog.Info("voice: transcriber unloaded")
}

// Loaded reports whether a backend is currently held.
func (t *Transcriber) Loaded() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.p != nil
}
