// Package transcript holds the conversation log of a voice session.
//
// A log is an ordered, append-only list of [Entry] values. Entries are
// immutable once appended; the only destructive operation is [Log.Reset],
// which replaces the whole log with a fresh seed (used when a session is
// restarted).
//
// The package also owns the durable form of a log: [Marshal] and [Unmarshal]
// convert a list of entries to and from JSON with RFC 3339 timestamps, and
// [Persister] stores that JSON in a key-value slot.
package transcript

import (
	"time"

	"github.com/google/uuid"
)

// Speaker identifies who produced an [Entry].
type Speaker string

const (
	// SpeakerUser marks text spoken or typed by the human.
	SpeakerUser Speaker = "user"

	// SpeakerAssistant marks text produced by the companion.
	SpeakerAssistant Speaker = "assistant"
)

// IsValid reports whether s is a recognised speaker.
func (s Speaker) IsValid() bool {
	return s == SpeakerUser || s == SpeakerAssistant
}

// Entry is one line of the conversation.
type Entry struct {
	// ID is an opaque identifier, unique within a log.
	ID string

	// Text is the spoken or typed content.
	Text string

	// Speaker is either [SpeakerUser] or [SpeakerAssistant].
	Speaker Speaker

	// Timestamp is when the entry was created.
	Timestamp time.Time

	// Emotion is the emotion label attached by the responder, if any.
	Emotion string

	// Mode is the conversational mode reported by the responder
	// (e.g. "supportive", "cbt"), if any.
	Mode string
}

// IDFunc produces entry identifiers.
type IDFunc func() string

// NewID returns a random UUIDv4 string. It is the default [IDFunc].
func NewID() string {
	return uuid.NewString()
}
