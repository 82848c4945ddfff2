package transcript

import (
	"context"
	"fmt"

	"github.com/MrWong99/solace/internal/storage"
)

// DefaultKey is the slot name used when none is configured. It matches the
// key the browser client used for its local storage.
const DefaultKey = "chat_messages"

// Persister saves and restores a full log in a single key-value slot.
// It is safe for concurrent use if the underlying store is.
type Persister struct {
	store storage.Store
	key   string
}

// NewPersister returns a Persister writing to key in store. An empty key
// selects [DefaultKey].
func NewPersister(store storage.Store, key string) *Persister {
	if key == "" {
		key = DefaultKey
	}
	return &Persister{store: store, key: key}
}

// Key returns the slot name.
func (p *Persister) Key() string { return p.key }

// Save serialises entries and overwrites the slot.
func (p *Persister) Save(ctx context.Context, entries []Entry) error {
	data, err := Marshal(entries)
	if err != nil {
		return err
	}
	if err := p.store.Set(ctx, p.key, string(data)); err != nil {
		return fmt.Errorf("transcript: save %q: %w", p.key, err)
	}
	return nil
}

// Load reads and decodes the slot. It returns an error wrapping
// [storage.ErrNotFound] when the slot is absent or holds an empty list, and
// one wrapping [ErrCorrupt] when it cannot be decoded.
func (p *Persister) Load(ctx context.Context) ([]Entry, error) {
	raw, err := p.store.Get(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("transcript: load %q: %w", p.key, err)
	}
	entries, err := Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("transcript: load %q: %w", p.key, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("transcript: load %q: empty log: %w", p.key, storage.ErrNotFound)
	}
	return entries, nil
}
