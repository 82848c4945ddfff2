package voice

import (
	"context"
	"time"
)

// Emitter delivers an event back to the controller. It is safe to call from
// any goroutine, including synchronously from inside Start, Speak or Stop.
type Emitter func(Event)

// SpeechInput is a continuous speech-to-text source.
//
// Start begins capturing and tags every event it emits with id. The source
// may end on its own at any time (silence, network hiccup) and reports that
// with [InputEnded]. Stop ends the current capture; no events for the
// stopped id need be emitted afterwards, and any that are will be ignored.
type SpeechInput interface {
	Start(id uint64, emit Emitter) error
	Stop() error
}

// SpeechOutput is a text-to-speech sink.
//
// For every successful Speak call the sink emits [SpeechStarted] and then
// exactly one of [SpeechEnded] or [SpeechFailed], all tagged with id. A
// non-nil error from Speak means none of these will be emitted. Cancel halts
// the current utterance; the controller stops listening for its id first, so
// whatever the sink emits for it afterwards is dropped.
type SpeechOutput interface {
	Speak(id uint64, text string, style Style, emit Emitter) error
	Cancel()
}

// Responder produces the assistant's reply to one user message.
// Implementations must honour ctx cancellation.
type Responder interface {
	Respond(ctx context.Context, message string) (Reply, error)
}

// Resetter is implemented by responders that keep conversation state. The
// controller calls Reset when its session is reset.
type Resetter interface {
	Reset()
}

// ResponderFunc adapts a function to [Responder].
type ResponderFunc func(ctx context.Context, message string) (Reply, error)

// Respond implements [Responder].
func (f ResponderFunc) Respond(ctx context.Context, message string) (Reply, error) {
	return f(ctx, message)
}

// Scheduler runs deferred and background work for the controller. The
// default uses real timers and goroutines; tests inject a manual one.
type Scheduler interface {
	// AfterFunc calls f once d has elapsed. The returned stop function
	// prevents the call if it has not happened yet.
	AfterFunc(d time.Duration, f func()) (stop func() bool)

	// Go runs f in the background.
	Go(f func())
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

func (realScheduler) Go(f func()) { go f() }
