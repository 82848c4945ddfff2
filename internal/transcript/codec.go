package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrCorrupt is returned by [Unmarshal] when stored data cannot be turned
// back into a list of entries.
var ErrCorrupt = errors.New("transcript: stored data is corrupt")

// record is the durable JSON form of an Entry.
//
// Sender and TherapyMode are read (never written) so that logs saved by the
// earlier browser client still load.
type record struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Speaker     string `json:"speaker,omitempty"`
	Sender      string `json:"sender,omitempty"`
	Timestamp   string `json:"timestamp"`
	Emotion     string `json:"emotion,omitempty"`
	Mode        string `json:"mode,omitempty"`
	TherapyMode string `json:"therapyMode,omitempty"`
}

// speakerAliases maps legacy sender values onto speakers.
var speakerAliases = map[string]Speaker{
	"user":      SpeakerUser,
	"assistant": SpeakerAssistant,
	"therapist": SpeakerAssistant,
	"bot":       SpeakerAssistant,
}

// Marshal encodes entries as a JSON array. Timestamps are written as
// RFC 3339 with nanoseconds in UTC, which sorts lexically.
func Marshal(entries []Entry) ([]byte, error) {
	recs := make([]record, len(entries))
	for i, e := range entries {
		recs[i] = record{
			ID:        e.ID,
			Text:      e.Text,
			Speaker:   string(e.Speaker),
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339Nano),
			Emotion:   e.Emotion,
			Mode:      e.Mode,
		}
	}
	data, err := json.Marshal(recs)
	if err != nil {
		return nil, fmt.Errorf("transcript: marshal: %w", err)
	}
	return data, nil
}

// Unmarshal decodes data produced by [Marshal]. Any structural problem
// (bad JSON, unknown speaker, unparsable timestamp, missing id) yields an
// error wrapping [ErrCorrupt].
func Unmarshal(data []byte) ([]Entry, error) {
	var recs []record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	entries := make([]Entry, 0, len(recs))
	for i, r := range recs {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", ErrCorrupt, i)
		}
		who := r.Speaker
		if who == "" {
			who = r.Sender
		}
		speaker, ok := speakerAliases[who]
		if !ok {
			return nil, fmt.Errorf("%w: entry %d has unknown speaker %q", ErrCorrupt, i, who)
		}
		ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d timestamp: %v", ErrCorrupt, i, err)
		}
		mode := r.Mode
		if mode == "" {
			mode = r.TherapyMode
		}
		entries = append(entries, Entry{
			ID:        r.ID,
			Text:      r.Text,
			Speaker:   speaker,
			Timestamp: ts,
			Emotion:   r.Emotion,
			Mode:      mode,
		})
	}
	return entries, nil
}
