// Package storage provides the durable key-value slot used to keep session
// transcripts across restarts.
//
// A [Store] holds opaque string values under string keys. Three backends are
// available: [Memory] (process lifetime only), [File] (one file per key in a
// directory) and the postgres subpackage (a single table managed by
// migrations).
package storage

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by [Store.Get] when no value is stored under a key.
var ErrNotFound = errors.New("storage: key not found")

// Store is a durable key-value slot. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key or an error wrapping
	// ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Close releases the backend's resources. The store must not be used
	// afterwards.
	Close() error
}

// Memory is an in-process [Store]. The zero value is ready to use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Set implements [Store].
func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Close is a no-op; it lets Memory satisfy the same shutdown path as the
// other backends.
func (m *Memory) Close() error { return nil }

var (
	_ Store = (*Memory)(nil)
	_ Store = (*File)(nil)
)
