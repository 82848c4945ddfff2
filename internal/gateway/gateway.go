// Package gateway exposes voice sessions and the companion backend over HTTP.
//
// Routes:
//
//	GET  /ws                 one voice session per WebSocket connection
//	POST /api/therapy        backend-compatible reply with emotion and tone
//	POST /api/chat           backend-compatible plain chat reply
//	POST /api/reset          forget the in-process conversation history
//	GET  /healthz, /readyz, /api/flight-check
//	GET  /metrics
//
// The /api routes are only mounted when an in-process responder is set with
// [WithTurner]; the health and metrics routes only when their handlers are
// set.
package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrWong99/solace/internal/health"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/respond"
	"github.com/MrWong99/solace/internal/transcript"
	"github.com/MrWong99/solace/internal/voice"
)

// ErrSessionActive is returned by [Sessions.Open] when id already has a live
// connection.
var ErrSessionActive = errors.New("gateway: session already active")

// Hooks carries a session's output back to its connection. The callbacks run
// on the controller's event loop and must not block.
type Hooks struct {
	OnChange     func(voice.Snapshot)
	OnEntry      func(transcript.Entry)
	OnTranscript func([]transcript.Entry)

	// Audio receives synthesised PCM.
	Audio io.Writer
}

// Session is one live voice session.
type Session interface {
	StartTalking() error
	StopTalking()
	ToggleVoice()
	Reset()
	SubmitText(text string) error
	SetConnection(status voice.Connection)
	Snapshot() voice.Snapshot
	Entries() []transcript.Entry

	// Feed pushes one frame of client microphone PCM.
	Feed(pcm []byte) error
}

// Sessions opens and closes sessions by id.
type Sessions interface {
	Open(ctx context.Context, id string, hooks Hooks) (Session, error)
	Close(id string) error
}

// StatusSource publishes upstream connection status. [health.Monitor]
// implements it.
type StatusSource interface {
	Subscribe(fn func(voice.Connection)) (unsubscribe func())
}

// Turner answers backend-style requests in-process. [respond.Local]
// implements it.
type Turner interface {
	Turn(ctx context.Context, message string) (respond.Turn, error)
	Reset()
}

// Option configures a [Server].
type Option func(*Server)

// WithTurner mounts the /api routes backed by t.
func WithTurner(t Turner) Option {
	return func(s *Server) { s.turner = t }
}

// WithHealth mounts the health routes.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithStatus forwards upstream status changes to every session.
func WithStatus(src StatusSource) Option {
	return func(s *Server) { s.status = src }
}

// WithOriginPatterns accepts WebSocket upgrades from these extra origins.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, patterns...) }
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server routes HTTP and WebSocket traffic to sessions.
type Server struct {
	sessions       Sessions
	turner         Turner
	health         *health.Handler
	metricsHandler http.Handler
	status         StatusSource
	origins        []string
	metrics        *observe.Metrics
	logger         *slog.Logger

	// base outlives requests; cancelling it ends every WebSocket session.
	base   context.Context
	cancel context.CancelFunc
}

// New returns a Server for sessions.
func New(sessions Sessions, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.base, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler returns the routed handler wrapped in the observe middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	if s.turner != nil {
		mux.HandleFunc("POST /api/therapy", s.handleTherapy)
		mux.HandleFunc("POST /api/chat", s.handleChat)
		mux.HandleFunc("POST /api/reset", s.handleReset)
	}
	if s.health != nil {
		s.health.Register(mux)
	}
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
	return observe.Middleware(s.metrics)(mux)
}

// Close ends every WebSocket session. Hijacked connections are invisible to
// http.Server.Shutdown, so call this alongside it.
func (s *Server) Close() {
	s.cancel()
}
