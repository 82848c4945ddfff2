package gateway

import (
	"time"

	"github.com/MrWong99/solace/internal/transcript"
	"github.com/MrWong99/solace/internal/voice"
)

// Control frame types sent by clients.
const (
	ControlStart       = "start"
	ControlStop        = "stop"
	ControlToggleVoice = "toggle_voice"
	ControlReset       = "reset"
	ControlText        = "text"
)

// Frame types sent to clients.
const (
	FrameSession    = "session"
	FrameState      = "state"
	FrameEntry      = "entry"
	FrameTranscript = "transcript"
	FrameError      = "error"
)

// ControlFrame is a client command.
type ControlFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SessionFrame is the first frame of every connection.
type SessionFrame struct {
	Type    string `json:"type"`
	Session string `json:"session"`
}

// StateFrame carries a controller snapshot.
type StateFrame struct {
	Type string `json:"type"`
	voice.Snapshot
	Error string `json:"error,omitempty"`
}

// Entry is the wire form of a transcript entry.
type Entry struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Speaker   string    `json:"speaker"`
	Timestamp time.Time `json:"timestamp"`
	Emotion   string    `json:"emotion,omitempty"`
	Mode      string    `json:"mode,omitempty"`
}

// EntryFrame carries one appended entry.
type EntryFrame struct {
	Type string `json:"type"`
	Entry
}

// TranscriptFrame carries the whole transcript.
type TranscriptFrame struct {
	Type    string  `json:"type"`
	Entries []Entry `json:"entries"`
}

// ErrorFrame reports a rejected command.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func stateFrame(s voice.Snapshot) StateFrame {
	f := StateFrame{Type: FrameState, Snapshot: s}
	if s.Err != nil {
		f.Error = s.Err.Error()
	}
	return f
}

func wireEntry(e transcript.Entry) Entry {
	return Entry{
		ID:        e.ID,
		Text:      e.Text,
		Speaker:   string(e.Speaker),
		Timestamp: e.Timestamp,
		Emotion:   e.Emotion,
		Mode:      e.Mode,
	}
}

func transcriptFrame(entries []transcript.Entry) TranscriptFrame {
	f := TranscriptFrame{Type: FrameTranscript, Entries: make([]Entry, len(entries))}
	for i, e := range entries {
		f.Entries[i] = wireEntry(e)
	}
	return f
}
