// Package app wires all solace subsystems into a running server.
//
// The App struct owns the full lifecycle: New builds storage, the responder
// chain, the upstream monitor, the session manager and the HTTP gateway; Run
// serves until the context ends; Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithResponder, WithProber, ...). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/gateway"
	"github.com/MrWong99/solace/internal/health"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/respond"
	"github.com/MrWong99/solace/internal/storage"
	"github.com/MrWong99/solace/internal/storage/postgres"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/llm"
	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// storageProbeKey is read by the storage readiness check.
const storageProbeKey = "solace:health"

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	// Subsystems, initialised in New and torn down in Shutdown.
	store          storage.Store
	responder      voice.Responder
	newResponder   func(sessionID string) voice.Responder
	local          *respond.Local
	prober         health.Prober
	monitor        *health.Monitor
	sessions       *SessionManager
	gateway        *gateway.Server
	server         *http.Server
	listener       net.Listener
	watcher        *config.Watcher
	metrics        *observe.Metrics
	metricsHandler http.Handler
	level          *slog.LevelVar

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a transcript store instead of creating one from config.
func WithStore(s storage.Store) Option {
	return func(a *App) { a.store = s }
}

// WithResponder injects the responder instead of building the chain from
// respond.mode.
func WithResponder(r voice.Responder) Option {
	return func(a *App) { a.responder = r }
}

// WithProber injects the upstream flight-check probe.
func WithProber(p health.Prober) Option {
	return func(a *App) { a.prober = p }
}

// WithListener serves on l instead of listening on server.listen_addr.
func WithListener(l net.Listener) Option {
	return func(a *App) { a.listener = l }
}

// WithMetrics sets the metric instruments shared by every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLevelVar lets config reloads change the log level live.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithWatcher applies config reloads reported by w.
func WithWatcher(w *config.Watcher) Option {
	return func(a *App) { a.watcher = w }
}

// WithCloser registers fn to run last during Shutdown.
func WithCloser(fn func() error) Option {
	return func(a *App) { a.closers = append(a.closers, fn) }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry).
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	// Closers from options run after the subsystems New creates.
	extra := a.closers
	a.closers = nil
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Transcript storage ────────────────────────────────────────────
	if err := a.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("app: init storage: %w", err)
	}

	// ── 2. Responder chain ───────────────────────────────────────────────
	if err := a.initResponder(); err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init responder: %w", err)
	}

	// ── 3. Upstream monitor ──────────────────────────────────────────────
	a.initMonitor()

	// ── 4. Sessions ──────────────────────────────────────────────────────
	sessions, err := NewSessionManager(SessionManagerConfig{
		Responder:      a.responder,
		NewResponder:   a.newResponder,
		STT:            providers.STT,
		TTS:            providers.TTS,
		Store:          a.store,
		Session:        cfg.Session,
		RespondTimeout: cfg.Respond.Timeout,
		Voice:          cfg.Providers.TTS.Option("voice_id"),
		Language:       cfg.Providers.STT.Option("language"),
		Metrics:        a.metrics,
	})
	if err != nil {
		a.runClosers()
		return nil, fmt.Errorf("app: init sessions: %w", err)
	}
	a.sessions = sessions

	// ── 5. Gateway + HTTP server ─────────────────────────────────────────
	a.initGateway()
	a.closers = append(a.closers, extra...)
	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStorage opens the configured transcript store unless one was injected.
func (a *App) initStorage(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch a.cfg.Storage.Backend {
	case config.StorageFile:
		f, err := storage.NewFile(a.cfg.Storage.Dir)
		if err != nil {
			return err
		}
		a.store = f
	case config.StoragePostgres:
		p, err := postgres.New(ctx, a.cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = p
	default:
		a.store = storage.NewMemory()
	}
	a.closers = append(a.closers, a.store.Close)
	slog.Info("transcript storage ready", "backend", a.cfg.Storage.Backend)
	return nil
}

// initResponder builds the responder for respond.mode. The in-process
// responder is kept separately so the gateway can serve /api with it.
func (a *App) initResponder() error {
	rc := a.cfg.Respond
	if a.providers.LLM != nil {
		local, err := respond.NewLocal(a.providers.LLM,
			respond.WithSystemPrompt(firstNonEmpty(rc.SystemPrompt, respond.SystemPrompt)),
			respond.WithHistory(historyOrDefault(rc.History)),
			respond.WithTemperature(rc.Temperature),
			respond.WithLocalMetrics(a.metrics),
		)
		if err != nil {
			return err
		}
		a.local = local
	}
	if a.responder != nil {
		return nil
	}

	breakerCfg := resilience.Config{
		Name:           "respond",
		MaxFailures:    rc.Breaker.MaxFailures,
		ResetTimeout:   rc.Breaker.ResetTimeout,
		HalfOpenProbes: rc.Breaker.HalfOpenProbes,
	}
	onState := resilience.WithOnStateChange(func(name string, from, to resilience.State) {
		slog.Warn("respond breaker state changed", "backend", name, "from", from, "to", to)
	})

	switch rc.Mode {
	case config.RespondRemote:
		client, err := respond.NewClient(rc.BaseURL,
			respond.WithBreaker(resilience.NewBreaker(breakerCfg, onState)),
			respond.WithMetrics(a.metrics),
		)
		if err != nil {
			return err
		}
		a.responder = client
	case config.RespondFailover:
		if a.local == nil {
			return errors.New("failover mode requires an LLM provider")
		}
		client, err := respond.NewClient(rc.BaseURL, respond.WithMetrics(a.metrics))
		if err != nil {
			return err
		}
		chain := respond.NewFailover(breakerCfg, onState).
			Add("remote", client).
			Add("local", a.local)
		a.responder = chain
		a.newResponder = func(string) voice.Responder { return chain.Fork() }
	default:
		if a.local == nil {
			return errors.New("local mode requires an LLM provider")
		}
		a.responder = a.local
		a.newResponder = func(string) voice.Responder { return a.local.Fork() }
	}
	slog.Info("responder ready", "mode", rc.Mode)
	return nil
}

// initMonitor sets up upstream polling. Without a flight-check URL the
// upstream is always considered ready.
func (a *App) initMonitor() {
	if a.prober == nil {
		a.prober = health.AlwaysReady
		if u := a.cfg.Health.FlightCheckURL; u != "" {
			a.prober = respond.NewReadiness(u, nil)
		}
	}
	a.monitor = health.NewMonitor(a.prober,
		health.WithInterval(a.cfg.Health.Interval),
		health.WithMetrics(a.metrics),
	)
}

// initGateway builds the HTTP surface.
func (a *App) initGateway() {
	checkers := []health.Checker{
		{Name: "storage", Check: a.checkStorage},
		a.monitor.Checker(),
	}
	opts := []gateway.Option{
		gateway.WithHealth(health.New(checkers...)),
		gateway.WithStatus(a.monitor),
		gateway.WithOriginPatterns(a.cfg.Server.AllowedOrigins...),
		gateway.WithMetrics(a.metrics),
	}
	if a.local != nil {
		opts = append(opts, gateway.WithTurner(a.local))
	}
	if a.metricsHandler != nil {
		opts = append(opts, gateway.WithMetricsHandler(a.metricsHandler))
	}
	a.gateway = gateway.New(a.sessions, opts...)
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func (a *App) checkStorage(ctx context.Context) error {
	if _, err := a.store.Get(ctx, storageProbeKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP, polls the upstream and applies config reloads until ctx
// is cancelled or one of them fails. A cancelled ctx returns nil.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return a.monitor.Run(gctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(gctx) })
	}
	g.Go(func() error {
		<-gctx.Done()
		a.gateway.Close()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(sctx)
	})

	slog.Info("solace running", "addr", a.Addr(), "respond_mode", a.cfg.Respond.Mode)
	return g.Wait()
}

func (a *App) serve() error {
	tls := a.cfg.Server.TLS
	if a.listener != nil {
		if tls != nil {
			return a.server.ServeTLS(a.listener, tls.CertFile, tls.KeyFile)
		}
		return a.server.Serve(a.listener)
	}
	if tls != nil {
		return a.server.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
	}
	return a.server.ListenAndServe()
}

// Addr returns the address the server listens on.
func (a *App) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.server.Addr
}

// Sessions returns the session manager.
func (a *App) Sessions() *SessionManager { return a.sessions }

// ApplyConfig applies a reloaded config: the log level changes live,
// session defaults apply to new sessions, everything else is logged as
// needing a restart. Pass it to [config.NewWatcher].
func (a *App) ApplyConfig(_, newCfg *config.Config, d config.ConfigDiff) {
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.SessionChanged {
		a.sessions.SetSessionConfig(newCfg.Session)
		slog.Info("session defaults updated; applies to new sessions")
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config change requires restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: HTTP first, then live sessions, then
// storage and the remaining closers. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "sessions", len(a.sessions.Sessions()), "closers", len(a.closers))

		a.gateway.Close()
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
		if err := a.sessions.CloseAll(ctx); err != nil {
			shutdownErr = err
			return
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// runClosers releases what New acquired before failing.
func (a *App) runClosers() {
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// ParseLevel converts a config log level to a slog level.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func historyOrDefault(n int) int {
	if n <= 0 {
		return respond.DefaultHistory
	}
	return n
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
