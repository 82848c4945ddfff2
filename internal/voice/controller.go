package voice

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/storage"
	"github.com/MrWong99/solace/internal/transcript"
)

// persistTimeout bounds a single transcript save.
const persistTimeout = 5 * time.Second

// Config holds the tunables of a [Controller].
type Config struct {
	// VoiceEnabled is the initial value of the speak-replies switch.
	VoiceEnabled bool

	// BargeIn keeps the input source running while the assistant speaks,
	// so the user can interrupt it.
	BargeIn bool

	// CopingTips appends a "Tip: ..." entry when a reply carries a coping
	// suggestion for a non-neutral emotion.
	CopingTips bool

	// GraceDelay is the pause before the input source is (re)started after
	// speaking or thinking. Default: 500ms.
	GraceDelay time.Duration

	// GreetDelay is the pause before the first greeting is spoken.
	// Default: 1s.
	GreetDelay time.Duration

	// RespondTimeout bounds one responder turn. Default: 30s.
	RespondTimeout time.Duration

	// MaxInputRestarts is how many consecutive times the input source may
	// end without a transcript before the session gives up and goes idle.
	// Default: 5.
	MaxInputRestarts int
}

// DefaultConfig returns the configuration used by the web client.
func DefaultConfig() Config {
	return Config{
		VoiceEnabled:     true,
		BargeIn:          true,
		CopingTips:       true,
		GraceDelay:       500 * time.Millisecond,
		GreetDelay:       time.Second,
		RespondTimeout:   30 * time.Second,
		MaxInputRestarts: 5,
	}
}

func (c *Config) setDefaults() {
	d := DefaultConfig()
	if c.GraceDelay <= 0 {
		c.GraceDelay = d.GraceDelay
	}
	if c.GreetDelay <= 0 {
		c.GreetDelay = d.GreetDelay
	}
	if c.RespondTimeout <= 0 {
		c.RespondTimeout = d.RespondTimeout
	}
	if c.MaxInputRestarts <= 0 {
		c.MaxInputRestarts = d.MaxInputRestarts
	}
}

// Option configures a [Controller].
type Option func(*Controller)

// WithInput sets the speech input source. Without one, StartTalking fails
// with [ErrUnsupportedCapability] and only text turns are possible.
func WithInput(in SpeechInput) Option {
	return func(c *Controller) { c.input = in }
}

// WithOutput sets the speech output sink. Without one, replies are never
// spoken.
func WithOutput(out SpeechOutput) Option {
	return func(c *Controller) { c.output = out }
}

// WithScheduler replaces the real timer/goroutine scheduler.
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) {
		if s != nil {
			c.sched = s
		}
	}
}

// WithPersister makes the transcript durable. The saved log is restored by
// [New] and rewritten after every change.
func WithPersister(p *transcript.Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithLogOptions configures the transcript log (id generator, clock).
func WithLogOptions(opts ...transcript.LogOption) Option {
	return func(c *Controller) { c.logOpts = append(c.logOpts, opts...) }
}

// WithLogger sets the structured logger. Default: [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithOnChange registers a callback invoked with every new snapshot that
// differs from the previous one. Callbacks run on the dispatching goroutine
// and must not block or call back into the controller synchronously.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithOnEntry registers a callback invoked for every appended entry.
func WithOnEntry(fn func(transcript.Entry)) Option {
	return func(c *Controller) { c.onEntry = fn }
}

// WithOnTranscript registers a callback invoked with the whole log after a
// reset.
func WithOnTranscript(fn func([]transcript.Entry)) Option {
	return func(c *Controller) { c.onTranscript = fn }
}

// Controller is the voice session state machine. All methods are safe for
// concurrent use.
type Controller struct {
	cfg       Config
	responder Responder
	input     SpeechInput
	output    SpeechOutput
	sched     Scheduler
	persister *transcript.Persister
	logOpts   []transcript.LogOption
	log       *transcript.Log
	logger    *slog.Logger
	metrics   *observe.Metrics

	onChange     func(Snapshot)
	onEntry      func(transcript.Entry)
	onTranscript func([]transcript.Entry)

	ctx    context.Context
	cancel context.CancelFunc

	// mailbox
	mu       sync.Mutex
	queue    []Event
	draining bool
	closed   bool
	done     chan struct{}

	snap atomic.Pointer[Snapshot]

	// Everything below is owned by the draining goroutine.
	state         State
	voiceEnabled  bool
	interim       string
	level         float64
	connection    Connection
	err           error
	epoch         uint64
	listenID      uint64
	listenStart   time.Time
	utteranceID   uint64
	turnID        uint64
	turnCancel    context.CancelFunc
	turnVoice     bool
	detached      map[uint64]context.CancelFunc
	timerID       uint64
	timerStop     func() bool
	inputRestarts int
	seeded        bool
	opened        bool
	greeting      string
}

// New builds a controller in state [Idle]. The transcript is restored from
// the persister when one is configured; when nothing usable is stored the
// log is seeded with a greeting. ctx bounds the whole session: cancelling it
// cancels in-flight responder turns.
func New(ctx context.Context, responder Responder, cfg Config, opts ...Option) (*Controller, error) {
	if responder == nil {
		return nil, errors.New("voice: responder is required")
	}
	cfg.setDefaults()
	c := &Controller{
		cfg:          cfg,
		responder:    responder,
		sched:        realScheduler{},
		logger:       slog.Default(),
		done:         make(chan struct{}),
		voiceEnabled: cfg.VoiceEnabled,
		connection:   ConnectionChecking,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.log = transcript.NewLog(c.restore(ctx), c.logOpts...)
	if c.log.Len() == 0 {
		c.seeded = true
		c.greeting = GreetingText
		c.log.Reset(c.log.New(transcript.SpeakerAssistant, GreetingText))
		c.persist()
	}
	snap := c.snapshot()
	c.snap.Store(&snap)
	return c, nil
}

// restore loads the persisted transcript. Absent or corrupt data yields nil.
func (c *Controller) restore(ctx context.Context) []transcript.Entry {
	if c.persister == nil {
		return nil
	}
	entries, err := c.persister.Load(ctx)
	switch {
	case err == nil:
		return entries
	case errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, transcript.ErrCorrupt):
		c.logger.Warn("voice: discarding corrupt transcript", "key", c.persister.Key(), "err", err)
	default:
		c.logger.Warn("voice: failed to load transcript", "key", c.persister.Key(), "err", err)
	}
	return nil
}

// Open starts the session. If the transcript was freshly seeded and voice is
// enabled, the greeting is spoken after the greet delay. Calling Open more
// than once has no further effect.
func (c *Controller) Open() { c.Dispatch(openSession{}) }

// StartTalking asks the controller to listen. It fails with
// [ErrUnsupportedCapability] when the session has no speech input.
func (c *Controller) StartTalking() error {
	if c.input == nil {
		return ErrUnsupportedCapability
	}
	if c.isClosed() {
		return ErrClosed
	}
	c.Dispatch(startTalking{})
	return nil
}

// StopTalking returns the session to [Idle]. It is a no-op when already idle.
func (c *Controller) StopTalking() { c.Dispatch(stopTalking{}) }

// ToggleVoice flips whether replies are spoken. Turning voice off while
// speaking halts the utterance and leaves the session idle.
func (c *Controller) ToggleVoice() { c.Dispatch(toggleVoice{}) }

// Reset cancels all running work and replaces the transcript with a fresh
// greeting.
func (c *Controller) Reset() { c.Dispatch(resetSession{}) }

// SubmitText runs a typed turn. It works without any speech capability.
func (c *Controller) SubmitText(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	if c.isClosed() {
		return ErrClosed
	}
	c.Dispatch(submitText{text: text})
	return nil
}

// SetConnection records the latest upstream status.
func (c *Controller) SetConnection(status Connection) {
	c.Dispatch(setConnection{status: status})
}

// Snapshot returns the state published after the last processed event.
func (c *Controller) Snapshot() Snapshot { return *c.snap.Load() }

// Entries returns a copy of the transcript.
func (c *Controller) Entries() []transcript.Entry { return c.log.Entries() }

// Close tears the session down: the responder turn is cancelled, input and
// output are stopped and every later event is ignored. Close blocks until
// teardown has run and must not be called from an observer callback.
func (c *Controller) Close() error {
	c.Dispatch(closeSession{})
	<-c.done
	return nil
}

func (c *Controller) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dispatch queues ev. If no other goroutine is processing events, the caller
// drains the queue before returning; otherwise ev is processed by the
// goroutine already draining. Events dispatched after Close are dropped.
func (c *Controller) Dispatch(ev Event) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, ev)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	for len(c.queue) > 0 && !c.closed {
		next := c.queue[0]
		c.queue[0] = nil
		c.queue = c.queue[1:]
		c.mu.Unlock()

		c.handle(next)
		c.publish()

		c.mu.Lock()
	}
	c.queue = nil
	c.draining = false
	c.mu.Unlock()
}

func (c *Controller) handle(ev Event) {
	switch ev := ev.(type) {
	case Interim:
		c.onInterim(ev)
	case Final:
		c.onFinal(ev)
	case InputEnded:
		c.onInputEnded(ev)
	case AudioLevel:
		if c.live(ev.ListenID) {
			c.level = clamp(ev.Level, 0, 1)
		}
	case SpeechStarted:
		if ev.UtteranceID == c.utteranceID && ev.UtteranceID != 0 {
			c.logger.Debug("voice: speech started", "utterance", ev.UtteranceID)
		}
	case SpeechEnded:
		c.onSpeechEnded(ev)
	case SpeechFailed:
		if ev.UtteranceID == c.utteranceID && ev.UtteranceID != 0 {
			c.utteranceID = 0
			c.playbackFailed(&PlaybackError{UtteranceID: ev.UtteranceID, Err: ev.Err})
		}
	case ReplyReceived:
		c.onReply(ev)
	case ReplyFailed:
		c.onReplyFailed(ev)
	case timerFired:
		c.onTimer(ev)
	case openSession:
		c.onOpen()
	case startTalking:
		c.onStartTalking()
	case stopTalking:
		c.onStopTalking()
	case toggleVoice:
		c.onToggleVoice()
	case resetSession:
		c.onReset()
	case submitText:
		c.onSubmitText(ev.text)
	case setConnection:
		c.connection = ev.status
	case closeSession:
		c.onClose()
	}
}

// --- user controls ---

func (c *Controller) onOpen() {
	if c.opened {
		return
	}
	c.opened = true
	if c.seeded && c.canSpeak() {
		c.arm(c.cfg.GreetDelay, actionGreet)
	}
}

func (c *Controller) onStartTalking() {
	if c.input == nil {
		return
	}
	switch c.state {
	case Idle:
		c.err = nil
		c.disarm()
		c.inputRestarts = 0
		c.setState(Listening)
		c.startInput()
	case Speaking:
		c.err = nil
		c.haltOutput()
		c.disarm()
		c.setState(Listening)
		if c.listenID == 0 {
			c.startInput()
		}
	}
}

func (c *Controller) onStopTalking() {
	if c.state == Idle {
		return
	}
	c.disarm()
	c.haltOutput()
	c.stopInput()
	if c.state == Thinking {
		c.detachTurn()
	}
	c.err = nil
	c.setState(Idle)
}

func (c *Controller) onToggleVoice() {
	c.voiceEnabled = !c.voiceEnabled
	if c.voiceEnabled {
		return
	}
	switch c.state {
	case Speaking:
		c.haltOutput()
		c.stopInput()
		c.disarm()
		c.setState(Idle)
	case Idle:
		// A greeting may be waiting to be spoken.
		c.disarm()
	}
}

func (c *Controller) onReset() {
	c.cancelTurn()
	c.cancelDetached()
	if r, ok := c.responder.(Resetter); ok {
		r.Reset()
	}
	c.disarm()
	c.haltOutput()
	c.stopInput()
	c.err = nil
	c.inputRestarts = 0
	c.setState(Idle)
	c.interim = ""

	c.greeting = ResetGreetingText
	c.log.Reset(c.log.New(transcript.SpeakerAssistant, ResetGreetingText))
	c.persist()
	if c.onTranscript != nil {
		c.onTranscript(c.log.Entries())
	}
	if c.canSpeak() {
		c.arm(c.cfg.GraceDelay, actionGreet)
	}
}

func (c *Controller) onSubmitText(text string) {
	switch c.state {
	case Thinking:
		c.logger.Info("voice: ignoring message while a reply is pending")
		return
	case Speaking:
		c.interrupt()
	}
	c.beginTurn(text, false)
}

func (c *Controller) onClose() {
	c.cancelTurn()
	c.cancelDetached()
	c.disarm()
	c.haltOutput()
	c.stopInput()
	c.setState(Idle)
	c.cancel()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

// --- speech input ---

// live reports whether id is the running listen.
func (c *Controller) live(id uint64) bool {
	return id != 0 && id == c.listenID
}

func (c *Controller) onInterim(ev Interim) {
	if !c.live(ev.ListenID) {
		return
	}
	c.inputRestarts = 0
	c.interim = ev.Text
}

func (c *Controller) onFinal(ev Final) {
	if !c.live(ev.ListenID) {
		return
	}
	c.inputRestarts = 0
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		c.interim = ""
		return
	}
	if !c.listenStart.IsZero() {
		c.metrics.STTDuration.Record(c.ctx, time.Since(c.listenStart).Seconds())
	}
	if c.state == Speaking {
		c.interrupt()
	}
	c.beginTurn(text, true)
}

func (c *Controller) onInputEnded(ev InputEnded) {
	if !c.live(ev.ListenID) {
		return
	}
	c.listenID = 0
	c.level = 0
	if ev.Err != nil {
		c.logger.Warn("voice: speech input ended", "listen", ev.ListenID, "err", ev.Err)
	}
	if c.state != Listening && c.state != Speaking {
		return
	}
	c.inputRestarts++
	if c.inputRestarts > c.cfg.MaxInputRestarts {
		c.logger.Warn("voice: speech input keeps ending, giving up", "restarts", c.inputRestarts-1)
		if c.state == Listening {
			c.err = ErrInputUnavailable
			c.disarm()
			c.setState(Idle)
		}
		return
	}
	c.arm(c.cfg.GraceDelay, actionListen)
}

func (c *Controller) startInput() {
	id := c.next()
	c.listenID = id
	c.listenStart = time.Now()
	if err := c.input.Start(id, c.Dispatch); err != nil {
		c.listenID = 0
		c.logger.Warn("voice: failed to start speech input", "listen", id, "err", err)
		if c.state == Listening {
			c.err = err
			c.setState(Idle)
		}
	}
}

func (c *Controller) stopInput() {
	if c.listenID == 0 {
		return
	}
	c.listenID = 0
	c.level = 0
	if err := c.input.Stop(); err != nil {
		c.logger.Warn("voice: failed to stop speech input", "err", err)
	}
}

// --- speech output ---

func (c *Controller) canSpeak() bool {
	return c.voiceEnabled && c.output != nil
}

func (c *Controller) speak(text string, style Style) {
	id := c.next()
	c.utteranceID = id
	c.setState(Speaking)
	if err := c.output.Speak(id, text, style, c.Dispatch); err != nil {
		c.utteranceID = 0
		c.playbackFailed(&PlaybackError{UtteranceID: id, Err: err})
		return
	}
	if c.cfg.BargeIn && c.input != nil && c.listenID == 0 {
		c.startInput()
	}
}

// haltOutput forgets the current utterance before cancelling it, so anything
// the sink reports for it afterwards is stale.
func (c *Controller) haltOutput() {
	if c.utteranceID == 0 {
		return
	}
	c.utteranceID = 0
	c.output.Cancel()
}

// interrupt cuts the assistant off in favour of new user input.
func (c *Controller) interrupt() {
	if c.utteranceID == 0 {
		return
	}
	c.logger.Debug("voice: interrupting assistant", "utterance", c.utteranceID)
	c.haltOutput()
	c.metrics.RecordInterrupt(c.ctx)
}

func (c *Controller) onSpeechEnded(ev SpeechEnded) {
	if ev.UtteranceID == 0 || ev.UtteranceID != c.utteranceID {
		return
	}
	c.utteranceID = 0
	if !c.voiceEnabled || c.input == nil {
		c.stopInput()
		c.setState(Idle)
		return
	}
	c.resumeListening()
}

func (c *Controller) playbackFailed(err error) {
	c.logger.Warn("voice: speech output failed", "err", err)
	c.err = err
	c.disarm()
	c.stopInput()
	c.setState(Idle)
}

// --- responder ---

func (c *Controller) beginTurn(text string, spoken bool) {
	c.disarm()
	c.appendEntry(c.log.New(transcript.SpeakerUser, text))
	c.interim = ""
	c.stopInput()
	c.err = nil
	c.cancelTurn()
	c.setState(Thinking)

	id := c.next()
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RespondTimeout)
	c.turnID = id
	c.turnCancel = cancel
	c.turnVoice = spoken

	c.sched.Go(func() {
		defer cancel()
		reply, err := c.responder.Respond(ctx, text)
		if err == nil && strings.TrimSpace(reply.Text) == "" {
			err = errors.New("voice: responder returned an empty reply")
		}
		if err != nil {
			c.Dispatch(ReplyFailed{TurnID: id, Err: err})
			return
		}
		c.Dispatch(ReplyReceived{TurnID: id, Reply: reply})
	})
}

func (c *Controller) cancelTurn() {
	if c.turnCancel != nil {
		c.turnCancel()
	}
	c.turnID = 0
	c.turnCancel = nil
}

// detachTurn lets the running turn finish in the background. Its reply is
// appended to the transcript but no longer drives the state machine, and a
// later turn does not cancel it.
func (c *Controller) detachTurn() {
	if c.turnID == 0 {
		return
	}
	if c.detached == nil {
		c.detached = make(map[uint64]context.CancelFunc)
	}
	c.detached[c.turnID] = c.turnCancel
	c.turnID = 0
	c.turnCancel = nil
}

func (c *Controller) cancelDetached() {
	for id, cancel := range c.detached {
		cancel()
		delete(c.detached, id)
	}
}

// finishTurn claims the turn behind id. It reports whether id was known and
// whether its outcome should still drive the state machine.
func (c *Controller) finishTurn(id uint64) (known, attached, spoken bool) {
	if id == 0 {
		return false, false, false
	}
	if _, ok := c.detached[id]; ok {
		delete(c.detached, id)
		return true, false, false
	}
	if id != c.turnID {
		return false, false, false
	}
	attached = c.state == Thinking
	spoken = c.turnVoice
	c.turnID = 0
	c.turnCancel = nil
	return true, attached, spoken
}

func (c *Controller) onReply(ev ReplyReceived) {
	known, attached, spoken := c.finishTurn(ev.TurnID)
	if !known {
		return
	}

	r := ev.Reply
	e := c.log.New(transcript.SpeakerAssistant, r.Text)
	e.Emotion = r.Emotion
	e.Mode = r.Mode
	c.appendEntry(e)
	if c.cfg.CopingTips && r.wantsTip() {
		c.appendEntry(c.log.New(transcript.SpeakerAssistant, "Tip: "+r.CopingSuggestion))
	}
	if !attached {
		return
	}
	if r.Style != nil && c.canSpeak() {
		c.speak(r.Text, r.Style.Clamp())
		return
	}
	c.afterTurn(spoken)
}

func (c *Controller) onReplyFailed(ev ReplyFailed) {
	known, attached, spoken := c.finishTurn(ev.TurnID)
	if !known {
		return
	}
	c.logger.Warn("voice: responder failed", "turn", ev.TurnID, "err", ev.Err)

	c.appendEntry(c.log.New(transcript.SpeakerAssistant, FallbackText))
	if !attached {
		return
	}
	if c.canSpeak() {
		c.speak(FallbackText, FallbackStyle)
		return
	}
	c.afterTurn(spoken)
}

// afterTurn picks the state that follows an unspoken reply. Typed turns only
// return to listening when the session could hold a spoken conversation.
func (c *Controller) afterTurn(spoken bool) {
	if c.input != nil && (spoken || c.voiceEnabled) {
		c.resumeListening()
		return
	}
	c.setState(Idle)
}

// resumeListening enters Listening and schedules an input restart unless the
// input is still running.
func (c *Controller) resumeListening() {
	c.setState(Listening)
	if c.listenID == 0 {
		c.arm(c.cfg.GraceDelay, actionListen)
	}
}

// --- timers ---

func (c *Controller) arm(d time.Duration, action timerAction) {
	c.disarm()
	id := c.next()
	c.timerID = id
	c.timerStop = c.sched.AfterFunc(d, func() {
		c.Dispatch(timerFired{id: id, action: action})
	})
}

func (c *Controller) disarm() {
	if c.timerStop != nil {
		c.timerStop()
	}
	c.timerID = 0
	c.timerStop = nil
}

func (c *Controller) onTimer(ev timerFired) {
	if ev.id == 0 || ev.id != c.timerID {
		return
	}
	c.timerID = 0
	c.timerStop = nil
	switch ev.action {
	case actionGreet:
		if c.state == Idle && c.canSpeak() {
			c.speak(c.greeting, GreetingStyle)
		}
	case actionListen:
		if c.listenID != 0 || c.input == nil {
			return
		}
		if c.state == Listening || (c.state == Speaking && c.cfg.BargeIn) {
			c.startInput()
		}
	}
}

// --- bookkeeping ---

func (c *Controller) next() uint64 {
	c.epoch++
	return c.epoch
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	from := c.state
	c.state = s
	c.interim = ""
	c.logger.Debug("voice: transition", "from", from, "to", s, "epoch", c.epoch)
	c.metrics.RecordTransition(c.ctx, from.String(), s.String())
}

func (c *Controller) appendEntry(e transcript.Entry) {
	c.log.Append(e)
	c.persist()
	if c.onEntry != nil {
		c.onEntry(e)
	}
}

func (c *Controller) persist() {
	if c.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), persistTimeout)
	defer cancel()
	if err := c.persister.Save(ctx, c.log.Entries()); err != nil {
		c.logger.Warn("voice: failed to save transcript", "key", c.persister.Key(), "err", err)
	}
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:        c.state,
		VoiceEnabled: c.voiceEnabled,
		InterimText:  c.interim,
		AudioLevel:   c.level,
		Connection:   c.connection,
		Err:          c.err,
	}
}

func (c *Controller) publish() {
	snap := c.snapshot()
	prev := c.snap.Swap(&snap)
	if c.onChange != nil && (prev == nil || !prev.same(snap)) {
		c.onChange(snap)
	}
}
