package voice

// Event is anything that can drive the controller. Collaborators construct
// the exported event types below and hand them to the [Emitter] they were
// given; user controls and timers use unexported types behind the
// controller's methods.
type Event interface {
	event()
}

// --- Speech input ---

// Interim carries a transcript fragment that may still change.
type Interim struct {
	ListenID uint64
	Text     string
}

// Final carries a stable transcript for one user utterance.
type Final struct {
	ListenID uint64
	Text     string
}

// InputEnded reports that the input source stopped on its own. Err is nil
// for a clean end (silence timeout, stream closed).
type InputEnded struct {
	ListenID uint64
	Err      error
}

// AudioLevel reports instantaneous input loudness in [0, 1].
type AudioLevel struct {
	ListenID uint64
	Level    float64
}

// --- Speech output ---

// SpeechStarted reports that audio for an utterance began playing.
type SpeechStarted struct {
	UtteranceID uint64
}

// SpeechEnded reports natural completion of an utterance.
type SpeechEnded struct {
	UtteranceID uint64
}

// SpeechFailed reports that an utterance could not be played to the end.
type SpeechFailed struct {
	UtteranceID uint64
	Err         error
}

// --- Responder ---

// ReplyReceived delivers the result of a responder turn.
type ReplyReceived struct {
	TurnID uint64
	Reply  Reply
}

// ReplyFailed reports a responder turn that produced no usable reply.
type ReplyFailed struct {
	TurnID uint64
	Err    error
}

// --- Controls and timers ---

type (
	openSession   struct{}
	startTalking  struct{}
	stopTalking   struct{}
	toggleVoice   struct{}
	resetSession  struct{}
	closeSession  struct{}
	submitText    struct{ text string }
	setConnection struct{ status Connection }
)

// timerAction says what an expired timer should do.
type timerAction int

const (
	actionListen timerAction = iota
	actionGreet
)

type timerFired struct {
	id     uint64
	action timerAction
}

func (Interim) event()       {}
func (Final) event()         {}
func (InputEnded) event()    {}
func (AudioLevel) event()    {}
func (SpeechStarted) event() {}
func (SpeechEnded) event()   {}
func (SpeechFailed) event()  {}
func (ReplyReceived) event() {}
func (ReplyFailed) event()   {}
func (openSession) event()   {}
func (startTalking) event()  {}
func (stopTalking) event()   {}
func (toggleVoice) event()   {}
func (resetSession) event()  {}
func (closeSession) event()  {}
func (submitText) event()    {}
func (setConnection) event() {}
func (timerFired) event()    {}
