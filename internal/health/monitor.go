package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/respond"
	"github.com/MrWong99/solace/internal/voice"
)

// DefaultInterval is how often the upstream flight check is polled.
const DefaultInterval = 30 * time.Second

// ErrUpstreamNotReady is reported by [Monitor.Checker] while the last probe
// did not find the upstream ready.
var ErrUpstreamNotReady = errors.New("health: upstream not ready")

// Prober fetches an upstream flight check. [respond.Readiness] implements it.
type Prober interface {
	Check(ctx context.Context) (respond.FlightCheck, error)
}

// ProberFunc adapts a function to [Prober].
type ProberFunc func(ctx context.Context) (respond.FlightCheck, error)

// Check implements [Prober].
func (f ProberFunc) Check(ctx context.Context) (respond.FlightCheck, error) { return f(ctx) }

// AlwaysReady is a Prober for deployments without an upstream backend.
var AlwaysReady Prober = ProberFunc(func(context.Context) (respond.FlightCheck, error) {
	return respond.FlightCheck{OverallStatus: respond.StatusReady}, nil
})

// MonitorOption configures a [Monitor].
type MonitorOption func(*Monitor)

// WithInterval sets the polling interval. Default: [DefaultInterval].
func WithInterval(d time.Duration) MonitorOption {
	return func(m *Monitor) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(mt *observe.Metrics) MonitorOption {
	return func(m *Monitor) {
		if mt != nil {
			m.metrics = mt
		}
	}
}

// Status messages recorded alongside the connection status.
const (
	msgReady       = "All systems operational"
	msgNotReady    = "Some services are not ready"
	msgUnreachable = "Cannot connect to API server"
	msgNotRunning  = "API server is not running"
)

// Monitor polls an upstream flight check and publishes the connection
// status. Probe failures only change the status; they are never returned.
//
// A reachable upstream that is not ready is reported as disconnected; a
// failed fetch is reported as error.
type Monitor struct {
	prober   Prober
	interval time.Duration
	metrics  *observe.Metrics

	// deliver orders subscriber calls so none sees a stale status last.
	deliver sync.Mutex

	mu      sync.Mutex
	status  voice.Connection
	message string
	subs    map[int]func(voice.Connection)
	nextID  int
}

// NewMonitor returns a Monitor in the checking state.
func NewMonitor(p Prober, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		prober:   p,
		interval: DefaultInterval,
		metrics:  observe.DefaultMetrics(),
		status:   voice.ConnectionChecking,
		subs:     make(map[int]func(voice.Connection)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Run probes immediately and then once per interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		m.Probe(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Probe runs one flight check, bounded by [checkTimeout], and returns the
// resulting status.
func (m *Monitor) Probe(ctx context.Context) voice.Connection {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	fc, err := m.prober.Check(ctx)
	status, msg := voice.ConnectionConnected, msgReady
	var se *respond.StatusError
	switch {
	case errors.As(err, &se):
		status, msg = voice.ConnectionError, msgUnreachable
		slog.Warn("health: flight check failed", "err", err)
	case err != nil:
		status, msg = voice.ConnectionError, msgNotRunning
		slog.Warn("health: flight check failed", "err", err)
	case !fc.Ready():
		status, msg = voice.ConnectionDisconnected, fc.Message
		if msg == "" {
			msg = msgNotReady
		}
		slog.Info("health: upstream not ready", "message", msg)
	}
	m.metrics.SetUpstreamReady(ctx, status == voice.ConnectionConnected)
	m.set(status, msg)
	return status
}

// Status returns the latest connection status.
func (m *Monitor) Status() voice.Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Message returns the text describing the latest status.
func (m *Monitor) Message() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.message
}

// Subscribe calls fn with the current status and then on every change until
// the returned function is called. Calls to fn never overlap and the last
// one always carries the latest status. fn must not call back into m.
func (m *Monitor) Subscribe(fn func(voice.Connection)) (unsubscribe func()) {
	m.deliver.Lock()
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	status := m.status
	m.mu.Unlock()

	fn(status)
	m.deliver.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Checker exposes the latest status as a readiness check named "upstream".
func (m *Monitor) Checker() Checker {
	return Checker{Name: "upstream", Check: func(context.Context) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.status != voice.ConnectionConnected {
			if m.message == "" {
				return ErrUpstreamNotReady
			}
			return fmt.Errorf("%w: %s", ErrUpstreamNotReady, m.message)
		}
		return nil
	}}
}

func (m *Monitor) set(status voice.Connection, message string) {
	m.mu.Lock()
	m.message = message
	if m.status == status {
		m.mu.Unlock()
		return
	}
	m.status = status
	m.mu.Unlock()
	m.notify()
}

// notify delivers the current status to every subscriber. Deliveries are
// serialised and each reads the status afresh, so a slow subscriber cannot
// leave an older status in place of a newer one.
func (m *Monitor) notify() {
	m.deliver.Lock()
	defer m.deliver.Unlock()

	m.mu.Lock()
	status := m.status
	subs := make([]func(voice.Connection), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}
