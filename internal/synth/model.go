package synth

import (
	"context"
	"sync"

	"github.com/MrWong99/voxclone/pkg/audio"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// Model is the single shared synthesis backend. Every call holds the
// model's lock, so requests queue on it and the backend never sees two
// syntheses at once.
type Model struct {
	mu sync.Mutex
	p  tts.Provider
}

// NewModel wraps p.
func NewModel(p tts.Provider) *Model {
	return &Model{p: p}
}

// Synthesize runs one synthesis under the model lock.
func (m *Model) Synthesize(ctx context.Context, req tts.Request) (audio.Waveform, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.p.Synthesize(ctx, req)
}

// Info describes the backend, if it can describe itself.
func (m *Model) Info() tts.Info {
	if d, ok := m.p.(tts.Describer); ok {
		return d.Describe()
	}
	return tts.Info{}
}
