package config

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/llm"
	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

// ErrProviderNotRegistered means no factory exists for the requested name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Factory builds a provider from its configuration entry.
type Factory[T any] func(ProviderEntry) (T, error)

// factories is one kind's name-to-constructor table.
type factories[T any] struct {
	kind   string
	mu     sync.RWMutex
	byName map[string]Factory[T]
}

func newFactories[T any](kind string) *factories[T] {
	return &factories[T]{kind: kind, byName: make(map[string]Factory[T])}
}

func (f *factories[T]) register(name string, fn Factory[T]) {
	f.mu.Lock()
	f.byName[name] = fn
	f.mu.Unlock()
}

func (f *factories[T]) create(entry ProviderEntry) (T, error) {
	f.mu.RLock()
	fn, ok := f.byName[entry.Name]
	f.mu.RUnlock()
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s/%q", ErrProviderNotRegistered, f.kind, entry.Name)
	}
	return fn(entry)
}

func (f *factories[T]) names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.byName))
	for name := range f.byName {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// Registry maps provider names to constructors for the LLM, STT and TTS
// kinds. Registering a name twice replaces the earlier factory. It is safe
// for concurrent use.
type Registry struct {
	llm *factories[llm.Provider]
	stt *factories[stt.Provider]
	tts *factories[tts.Provider]
}

// NewRegistry returns an empty [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm: newFactories[llm.Provider]("llm"),
		stt: newFactories[stt.Provider]("stt"),
		tts: newFactories[tts.Provider]("tts"),
	}
}

func (r *Registry) RegisterLLM(name string, fn Factory[llm.Provider]) { r.llm.register(name, fn) }
func (r *Registry) RegisterSTT(name string, fn Factory[stt.Provider]) { r.stt.register(name, fn) }
func (r *Registry) RegisterTTS(name string, fn Factory[tts.Provider]) { r.tts.register(name, fn) }

// CreateLLM runs the factory registered under entry.Name, or returns an
// error wrapping [ErrProviderNotRegistered].
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) { return r.llm.create(entry) }
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) { return r.stt.create(entry) }
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) { return r.tts.create(entry) }

// Registered returns the sorted provider names registered for kind ("llm",
// "stt" or "tts"). Unknown kinds yield nil.
func (r *Registry) Registered(kind string) []string {
	switch kind {
	case "llm":
		return r.llm.names()
	case "stt":
		return r.stt.names()
	case "tts":
		return r.tts.names()
	}
	return nil
}
