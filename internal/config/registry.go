package config

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/MrWong99/voxclone/pkg/provider/stt"
	"github.com/MrWong99/voxclone/pkg/provider/tts"
)

// ErrProviderNotRegistered is returned when a [ProviderEntry] names a
// provider nobody registered.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its config entry.
type Factory[P any] func(ProviderEntry) (P, error)

// factories is one kind's name → constructor table.
type factories[P any] struct {
	kind string
	m    map[string]Factory[P]
}

func (f *factories[P]) create(entry ProviderEntry) (P, error) {
	build, ok := f.m[entry.Name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s/%q (have %v)", ErrProviderNotRegistered, f.kind, entry.Name, slices.Sorted(maps.Keys(f.m)))
	}
	p, err := build(entry)
	if err != nil {
		return p, fmt.Errorf("config: build %s/%s: %w", f.kind, entry.Name, err)
	}
	return p, nil
}

// Registry resolves provider names from the config file to constructors.
// The binary registers its built-ins at startup; it is safe for concurrent
// use.
type Registry struct {
	mu  sync.RWMutex
	stt factories[stt.Provider]
	tts factories[tts.Provider]
}

func NewRegistry() *Registry {
	return &Registry{
		stt: factories[stt.Provider]{kind: "stt", m: map[string]Factory[stt.Provider]{}},
		tts: factories[tts.Provider]{kind: "tts", m: map[string]Factory[tts.Provider]{}},
	}
}

// RegisterSTT registers a transcription backend, replacing any previous
// factory of that name.
func (r *Registry) RegisterSTT(name string, f Factory[stt.Provider]) {
	r.mu.Lock()
	r.stt.m[name] = f
	r.mu.Unlock()
}

// RegisterTTS registers a synthesis backend, replacing any previous factory
// of that name.
func (r *Registry) RegisterTTS(name string, f Factory[tts.Provider]) {
	r.mu.Lock()
	r.tts.m[name] = f
	r.mu.Unlock()
}

// CreateSTT builds the transcription backend entry names.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stt.create(entry)
}

// CreateTTS builds the synthesis backend entry names.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tts.create(entry)
}

// Names lists the registered names for kind ("stt" or "tts") in order.
func (r *Registry) Names(kind string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	switch kind {
	case r.stt.kind:
		return slices.Sorted(maps.Keys(r.stt.m))
	case r.tts.kind:
		return slices.Sorted(maps.Keys(r.tts.m))
	}
	return nil
}
