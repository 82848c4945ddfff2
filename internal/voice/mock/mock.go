// Package mock provides test doubles for the voice package capabilities.
//
// Input and Output record every call and hand the captured emitter back to
// the test, so events can be fired exactly when a scenario needs them.
// Scheduler is a manual clock: timers fire only on Advance and background
// work runs only on RunTasks.
//
// Example:
//
//	sched := mock.NewScheduler()
//	in := &mock.Input{}
//	out := &mock.Output{AutoEnd: true}
//	resp := &mock.Responder{Reply: voice.Reply{Text: "I hear you"}}
//	c, _ := voice.New(ctx, resp, cfg, voice.WithInput(in), voice.WithOutput(out), voice.WithScheduler(sched))
//	_ = c.StartTalking()
//	in.Final("I'm feeling anxious")
//	sched.RunTasks()
package mock

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/voice"
)

// Input is a mock implementation of voice.SpeechInput.
type Input struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by every Start call.
	StartErr error

	// StopErr, if non-nil, is returned by every Stop call.
	StopErr error

	// StartCalls records the listen id of every Start call in order.
	StartCalls []uint64

	// StopCallCount is the number of times Stop was called.
	StopCallCount int

	id   uint64
	emit voice.Emitter
}

// Start records the call and captures the emitter.
func (m *Input) Start(id uint64, emit voice.Emitter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls = append(m.StartCalls, id)
	if m.StartErr != nil {
		return m.StartErr
	}
	m.id = id
	m.emit = emit
	return nil
}

// Stop records the call. The captured emitter is kept, so tests can still
// fire stale events for the stopped listen.
func (m *Input) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCallCount++
	return m.StopErr
}

// ListenID returns the id of the last successful Start.
func (m *Input) ListenID() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id
}

// Starts returns the number of Start calls.
func (m *Input) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.StartCalls)
}

// Stops returns the number of Stop calls.
func (m *Input) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCallCount
}

func (m *Input) fire(build func(id uint64) voice.Event) {
	m.mu.Lock()
	emit, id := m.emit, m.id
	m.mu.Unlock()
	if emit != nil {
		emit(build(id))
	}
}

// Interim emits an interim transcript for the last started listen.
func (m *Input) Interim(text string) {
	m.fire(func(id uint64) voice.Event { return voice.Interim{ListenID: id, Text: text} })
}

// Final emits a final transcript for the last started listen.
func (m *Input) Final(text string) {
	m.fire(func(id uint64) voice.Event { return voice.Final{ListenID: id, Text: text} })
}

// Level emits an audio level for the last started listen.
func (m *Input) Level(l float64) {
	m.fire(func(id uint64) voice.Event { return voice.AudioLevel{ListenID: id, Level: l} })
}

// End reports that the last started listen ended on its own.
func (m *Input) End(err error) {
	m.fire(func(id uint64) voice.Event { return voice.InputEnded{ListenID: id, Err: err} })
}

// SpeakCall records a single invocation of Output.Speak.
type SpeakCall struct {
	ID    uint64
	Text  string
	Style voice.Style
}

// Output is a mock implementation of voice.SpeechOutput.
type Output struct {
	mu sync.Mutex

	// AutoEnd makes Speak emit SpeechStarted and SpeechEnded synchronously,
	// the way an instant sink would.
	AutoEnd bool

	// SpeakErr, if non-nil, is returned by every Speak call.
	SpeakErr error

	// SpeakCalls records every call to Speak in order.
	SpeakCalls []SpeakCall

	// CancelCallCount is the number of times Cancel was called.
	CancelCallCount int

	// OnCancel, if set, is called from Cancel after the count is updated.
	OnCancel func()

	emit voice.Emitter
}

// Speak records the call and captures the emitter.
func (m *Output) Speak(id uint64, text string, style voice.Style, emit voice.Emitter) error {
	m.mu.Lock()
	m.SpeakCalls = append(m.SpeakCalls, SpeakCall{ID: id, Text: text, Style: style})
	if m.SpeakErr != nil {
		m.mu.Unlock()
		return m.SpeakErr
	}
	m.emit = emit
	auto := m.AutoEnd
	m.mu.Unlock()

	if auto {
		emit(voice.SpeechStarted{UtteranceID: id})
		emit(voice.SpeechEnded{UtteranceID: id})
	}
	return nil
}

// Cancel records the call.
func (m *Output) Cancel() {
	m.mu.Lock()
	m.CancelCallCount++
	fn := m.OnCancel
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Cancels returns the number of Cancel calls.
func (m *Output) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CancelCallCount
}

// Calls returns a copy of the recorded Speak calls.
func (m *Output) Calls() []SpeakCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SpeakCall(nil), m.SpeakCalls...)
}

// Last returns the most recent Speak call. ok is false if there was none.
func (m *Output) Last() (call SpeakCall, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SpeakCalls) == 0 {
		return SpeakCall{}, false
	}
	return m.SpeakCalls[len(m.SpeakCalls)-1], true
}

func (m *Output) fire(ev voice.Event) {
	m.mu.Lock()
	emit := m.emit
	m.mu.Unlock()
	if emit != nil {
		emit(ev)
	}
}

// Started emits SpeechStarted for utterance id.
func (m *Output) Started(id uint64) { m.fire(voice.SpeechStarted{UtteranceID: id}) }

// Ended emits SpeechEnded for utterance id.
func (m *Output) Ended(id uint64) { m.fire(voice.SpeechEnded{UtteranceID: id}) }

// Failed emits SpeechFailed for utterance id.
func (m *Output) Failed(id uint64, err error) {
	m.fire(voice.SpeechFailed{UtteranceID: id, Err: err})
}

// Responder is a mock implementation of voice.Responder.
type Responder struct {
	mu sync.Mutex

	// Reply is returned when Err is nil.
	Reply voice.Reply

	// Err, if non-nil, is returned by every Respond call.
	Err error

	// RespondFunc, if set, replaces Reply/Err.
	RespondFunc func(ctx context.Context, message string) (voice.Reply, error)

	// Messages records the message of every Respond call in order.
	Messages []string

	// ResetCount is the number of times Reset was called.
	ResetCount int
}

// Respond records the call and returns Reply, Err.
func (m *Responder) Respond(ctx context.Context, message string) (voice.Reply, error) {
	m.mu.Lock()
	m.Messages = append(m.Messages, message)
	fn, reply, err := m.RespondFunc, m.Reply, m.Err
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, message)
	}
	return reply, err
}

// Calls returns the number of Respond calls.
func (m *Responder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}

// Reset implements voice.Resetter.
func (m *Responder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResetCount++
}

// Resets returns the number of Reset calls.
func (m *Responder) Resets() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ResetCount
}

// timer is one pending AfterFunc registration.
type timer struct {
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

// Scheduler is a manual implementation of voice.Scheduler.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*timer
	tasks  []func()
}

// NewScheduler returns a scheduler at virtual time zero.
func NewScheduler() *Scheduler { return &Scheduler{} }

// AfterFunc registers f to run once the virtual clock has advanced by d.
func (s *Scheduler) AfterFunc(d time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &timer{at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		if t.fired || t.stopped {
			return false
		}
		t.stopped = true
		return true
	}
}

// Go queues f until the next RunTasks.
func (s *Scheduler) Go(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, f)
}

// RunTasks runs queued background work, including work queued while
// running, and returns how many functions ran.
func (s *Scheduler) RunTasks() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 {
			s.mu.Unlock()
			return n
		}
		f := s.tasks[0]
		s.tasks = s.tasks[1:]
		s.mu.Unlock()
		f()
		n++
	}
}

// Tasks returns the number of queued background functions.
func (s *Scheduler) Tasks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Advance moves the virtual clock forward by d and fires every timer that
// became due, in deadline order.
func (s *Scheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	s.mu.Unlock()
	for {
		s.mu.Lock()
		var due []*timer
		for _, t := range s.timers {
			if !t.fired && !t.stopped && t.at <= s.now {
				due = append(due, t)
			}
		}
		if len(due) == 0 {
			s.mu.Unlock()
			return
		}
		sort.Slice(due, func(i, j int) bool {
			if due[i].at != due[j].at {
				return due[i].at < due[j].at
			}
			return due[i].seq < due[j].seq
		})
		t := due[0]
		t.fired = true
		s.mu.Unlock()
		t.f()
	}
}

// Pending returns the number of timers that are neither fired nor stopped.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

var (
	_ voice.SpeechInput  = (*Input)(nil)
	_ voice.SpeechOutput = (*Output)(nil)
	_ voice.Responder    = (*Responder)(nil)
	_ voice.Scheduler    = (*Scheduler)(nil)
)
