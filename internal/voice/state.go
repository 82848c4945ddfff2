// Package voice implements the session controller that drives one spoken
// conversation between a user and the companion.
//
// The [Controller] is a finite-state machine with four states ([Idle],
// [Listening], [Thinking], [Speaking]). It arbitrates between a speech input
// source, a speech output sink and a responder, all injected as capability
// interfaces, and records the conversation in a transcript log.
//
// Every input to the machine is an [Event] passed to [Controller.Dispatch].
// Events are processed one at a time in arrival order; an event fired by a
// collaborator while another is being processed is queued, never run
// re-entrantly. Listens, utterances, responder turns and timers each capture
// an id drawn from one monotonically increasing epoch counter, and any event
// whose id is no longer current is dropped. This is what keeps a late "speech
// ended" from an interrupted utterance from restarting the microphone.
package voice

import "strings"

// State is the conversational state of a session.
type State int

const (
	// Idle: nothing is running; the user is in control.
	Idle State = iota

	// Listening: the input source is capturing the user.
	Listening

	// Thinking: a responder turn is in flight.
	Thinking

	// Speaking: the output sink is playing an assistant utterance.
	Speaking
)

// String returns the lower-case name of s.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Connection is the last known status of the upstream responder.
type Connection string

const (
	ConnectionChecking     Connection = "checking"
	ConnectionConnected    Connection = "connected"
	ConnectionDisconnected Connection = "disconnected"
	ConnectionError        Connection = "error"
)

// Style carries tone-of-voice modifiers for one utterance.
type Style struct {
	// Pitch shift in [-1, 1]; 0 is the voice's natural pitch.
	Pitch float64 `json:"pitch"`

	// Speed multiplier in [0.5, 2]; 1 is normal rate.
	Speed float64 `json:"speed"`

	// Warmth in [0, 1].
	Warmth float64 `json:"warmth"`

	// Energy in [0, 1].
	Energy float64 `json:"energy"`
}

// Clamp returns s with every field forced into its valid range.
func (s Style) Clamp() Style {
	return Style{
		Pitch:  clamp(s.Pitch, -1, 1),
		Speed:  clamp(s.Speed, 0.5, 2),
		Warmth: clamp(s.Warmth, 0, 1),
		Energy: clamp(s.Energy, 0, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var (
	// GreetingStyle is used for greetings.
	GreetingStyle = Style{Pitch: 0, Speed: 1.0, Warmth: 0.9, Energy: 0.6}

	// FallbackStyle is used for the canned reply spoken when the responder
	// fails.
	FallbackStyle = Style{Pitch: 0, Speed: 0.9, Warmth: 1.0, Energy: 0.5}
)

const (
	// GreetingText seeds a brand new transcript.
	GreetingText = "Hello, I'm your therapy companion. I'm here to listen, support you, and help you work through whatever you're experiencing. How are you feeling today?"

	// ResetGreetingText seeds the transcript after a reset.
	ResetGreetingText = "Let's start fresh. I'm here to listen. What would you like to talk about?"

	// FallbackText is appended when a responder turn fails.
	FallbackText = "I'm here with you. Could you tell me again what's on your mind?"
)

// Reply is the outcome of a successful responder turn.
type Reply struct {
	// Text is the assistant's answer. Never empty in a valid reply.
	Text string

	// Emotion is the emotion the responder detected in the user message.
	Emotion string

	// Mode is the conversational approach chosen (e.g. "supportive", "cbt").
	Mode string

	// CopingSuggestion is an optional short exercise for the user.
	CopingSuggestion string

	// Style, when non-nil, asks for the reply to be spoken with these
	// modifiers. A reply without a style is shown but not spoken.
	Style *Style
}

// wantsTip reports whether the coping suggestion should be shown.
func (r Reply) wantsTip() bool {
	if strings.TrimSpace(r.CopingSuggestion) == "" {
		return false
	}
	switch strings.ToLower(r.Emotion) {
	case "happy", "neutral":
		return false
	}
	return true
}

// Snapshot is an immutable view of a controller's observable state.
type Snapshot struct {
	State        State      `json:"state"`
	VoiceEnabled bool       `json:"voice_enabled"`
	InterimText  string     `json:"interim_text"`
	AudioLevel   float64    `json:"audio_level"`
	Connection   Connection `json:"connection"`

	// Err is the last condition that sent the session to Idle on its own
	// (playback failure, input unavailable). Cleared by the next user action.
	Err error `json:"-"`
}

// same reports whether a and b would render identically.
func (a Snapshot) same(b Snapshot) bool {
	return a.State == b.State &&
		a.VoiceEnabled == b.VoiceEnabled &&
		a.InterimText == b.InterimText &&
		a.AudioLevel == b.AudioLevel &&
		a.Connection == b.Connection &&
		errText(a.Err) == errText(b.Err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
