package transcript

import (
	"sync"
	"time"
)

// Log is an ordered, append-only list of entries. It is safe for concurrent
// use; readers always receive a copy.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	newID   IDFunc
	now     func() time.Time
}

// LogOption configures a [Log].
type LogOption func(*Log)

// WithIDFunc overrides the identifier generator. Default: [NewID].
func WithIDFunc(fn IDFunc) LogOption {
	return func(l *Log) {
		if fn != nil {
			l.newID = fn
		}
	}
}

// WithClock overrides the time source used to stamp new entries.
func WithClock(now func() time.Time) LogOption {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLog returns a log pre-populated with entries (copied).
func NewLog(entries []Entry, opts ...LogOption) *Log {
	l := &Log{
		entries: append([]Entry(nil), entries...),
		newID:   NewID,
		now:     time.Now,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// New builds an entry stamped with a fresh id and the current time. The entry
// is not appended.
func (l *Log) New(speaker Speaker, text string) Entry {
	return Entry{
		ID:        l.newID(),
		Text:      text,
		Speaker:   speaker,
		Timestamp: l.now(),
	}
}

// Append adds e at the end of the log.
func (l *Log) Append(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

// Reset replaces the whole log with seed.
func (l *Log) Reset(seed ...Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]Entry(nil), seed...)
}

// Entries returns a copy of all entries in order.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
