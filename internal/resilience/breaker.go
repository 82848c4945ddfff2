// Package resilience guards calls to remote dependencies.
//
// [Breaker] is a three-state circuit breaker (closed, open, half-open) that
// stops hammering an upstream which keeps failing and lets a few probe calls
// through once it has had time to recover. [Failover] tries a list of
// equivalent backends in order, each behind its own breaker.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrOpen] until the reset timeout elapses.
	Open

	// HalfOpen lets a bounded number of probe calls through. Enough
	// successes close the breaker; any failure re-opens it.
	HalfOpen
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker]. Zero fields take defaults.
type Config struct {
	// Name labels log lines.
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 5.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenProbes is the number of successful probes needed to close
	// again. Default: 1.
	HalfOpenProbes int
}

func (c *Config) setDefaults() {
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenProbes <= 0 {
		c.HalfOpenProbes = 1
	}
}

// Option configures a [Breaker].
type Option func(*Breaker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithOnStateChange registers fn to be called after every transition. fn
// runs with the breaker unlocked.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker implements the circuit breaker pattern.
type Breaker struct {
	cfg      Config
	now      func() time.Time
	onChange func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int // half-open probes currently running
	probesOK int
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg Config, opts ...Option) *Breaker {
	cfg.setDefaults()
	b := &Breaker{cfg: cfg, now: time.Now}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Do runs fn if the breaker admits the call. A failure is any non-nil error
// except one caused by the caller's own ctx ending, which leaves the
// breaker untouched.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.release(probe)
		return err
	}
	b.record(probe, err == nil)
	return err
}

// State returns the current state. An open breaker whose timeout has
// elapsed reports HalfOpen; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state, b.failures, b.inFlight, b.probesOK = Closed, 0, 0, 0
	b.mu.Unlock()
	b.notify(from, Closed)
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Open:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.state, b.inFlight, b.probesOK = HalfOpen, 0, 0
	case HalfOpen:
		if b.inFlight+b.probesOK >= b.cfg.HalfOpenProbes {
			b.mu.Unlock()
			return false, ErrOpen
		}
	}
	probe = b.state == HalfOpen
	if probe {
		b.inFlight++
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
	return probe, nil
}

func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	if b.state == HalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

func (b *Breaker) record(probe, ok bool) {
	b.mu.Lock()
	from := b.state
	switch {
	case probe && b.state == HalfOpen:
		b.inFlight--
		if !ok {
			b.trip()
			break
		}
		b.probesOK++
		if b.probesOK >= b.cfg.HalfOpenProbes {
			b.state, b.failures = Closed, 0
		}
	case b.state == Closed:
		if ok {
			b.failures = 0
			break
		}
		b.failures++
		if b.failures >= b.cfg.MaxFailures {
			b.trip()
		}
	}
	to := b.state
	b.mu.Unlock()
	b.notify(from, to)
}

// trip opens the breaker. Must be called with b.mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.inFlight, b.probesOK = 0, 0
}

func (b *Breaker) notify(from, to State) {
	if from == to {
		return
	}
	switch to {
	case Open:
		slog.Warn("resilience: breaker opened", "name", b.cfg.Name, "from", from.String())
	default:
		slog.Info("resilience: breaker state changed", "name", b.cfg.Name, "from", from.String(), "to", to.String())
	}
	if b.onChange != nil {
		b.onChange(b.cfg.Name, from, to)
	}
}
