package app

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/gateway"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/speech"
	"github.com/MrWong99/solace/internal/storage"
	"github.com/MrWong99/solace/internal/transcript"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/stt"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

// SessionInfo holds metadata about a live session.
type SessionInfo struct {
	// SessionID is the client-chosen or generated identifier.
	SessionID string

	// StorageKey is the transcript slot the session persists to.
	StorageKey string

	// StartedAt is when the session was opened.
	StartedAt time.Time
}

// Session is one live voice session: a controller plus the speech adapters
// built for its connection.
type Session struct {
	*voice.Controller

	info   SessionInfo
	input  *speech.Input
	output *speech.Output
	cancel context.CancelFunc
}

var _ gateway.Session = (*Session)(nil)

// Feed forwards microphone PCM to the speech input.
func (s *Session) Feed(pcm []byte) error {
	if s.input == nil {
		return voice.ErrUnsupportedCapability
	}
	return s.input.Feed(pcm)
}

// Info returns the session metadata.
func (s *Session) Info() SessionInfo { return s.info }

// close tears the controller down and waits for in-flight synthesis.
func (s *Session) close() error {
	err := s.Controller.Close()
	if s.output != nil {
		s.output.Wait()
	}
	s.cancel()
	return err
}

// SessionManagerConfig holds all dependencies for a [SessionManager].
type SessionManagerConfig struct {
	// Responder answers user turns of every session. Either Responder or
	// NewResponder is required.
	Responder voice.Responder

	// NewResponder, if set, builds a responder per session so sessions
	// never share a conversation. It takes precedence over Responder.
	NewResponder func(sessionID string) voice.Responder

	// STT and TTS are optional; without them sessions are text-only or
	// silent respectively.
	STT stt.Provider
	TTS tts.Provider

	// Store persists transcripts. Default: in-memory.
	Store storage.Store

	// Session holds the controller defaults. Replace it at runtime with
	// [SessionManager.SetSessionConfig].
	Session config.SessionConfig

	// RespondTimeout bounds one responder turn.
	RespondTimeout time.Duration

	// Voice is the TTS voice id and Language the STT language hint.
	Voice    string
	Language string

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// SessionManager builds, tracks and tears down sessions. Any number of
// sessions may be live, but each id only once. All exported methods are safe
// for concurrent use.
type SessionManager struct {
	cfg SessionManagerConfig

	mu       sync.Mutex
	session  config.SessionConfig
	sessions map[string]*Session
}

var _ gateway.Sessions = (*SessionManager)(nil)

// NewSessionManager creates a SessionManager with the given dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Responder == nil && cfg.NewResponder == nil {
		return nil, fmt.Errorf("app: session manager requires a responder")
	}
	if cfg.Store == nil {
		cfg.Store = storage.NewMemory()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SessionManager{
		cfg:      cfg,
		session:  cfg.Session,
		sessions: make(map[string]*Session),
	}, nil
}

// SetSessionConfig replaces the controller defaults for sessions opened
// from now on. Live sessions keep the settings they started with.
func (sm *SessionManager) SetSessionConfig(c config.SessionConfig) {
	sm.mu.Lock()
	sm.session = c
	sm.mu.Unlock()
}

// Open builds a session for id wired to hooks and opens it. It returns
// [gateway.ErrSessionActive] when id is already live.
func (sm *SessionManager) Open(ctx context.Context, id string, hooks gateway.Hooks) (gateway.Session, error) {
	sm.mu.Lock()
	if _, ok := sm.sessions[id]; ok {
		sm.mu.Unlock()
		return nil, fmt.Errorf("%w (id=%s)", gateway.ErrSessionActive, id)
	}
	// Reserve the id while the session is built outside the lock.
	sm.sessions[id] = nil
	sc := sm.session
	sm.mu.Unlock()

	s, err := sm.build(ctx, id, sc, hooks)

	sm.mu.Lock()
	if err != nil {
		delete(sm.sessions, id)
		sm.mu.Unlock()
		return nil, err
	}
	sm.sessions[id] = s
	sm.mu.Unlock()

	sm.cfg.Metrics.ActiveSessions.Add(ctx, 1)
	s.Open()
	sm.cfg.Logger.Info("session started",
		"session", id,
		"key", s.info.StorageKey,
		"speech_in", s.input != nil,
		"speech_out", s.output != nil,
	)
	return s, nil
}

func (sm *SessionManager) build(ctx context.Context, id string, sc config.SessionConfig, hooks gateway.Hooks) (*Session, error) {
	logger := sm.cfg.Logger.With("session", id)
	key := sessionKey(sc.StorageKey, id)
	sctx, cancel := context.WithCancel(ctx)

	s := &Session{
		info:   SessionInfo{SessionID: id, StorageKey: key, StartedAt: time.Now().UTC()},
		cancel: cancel,
	}
	opts := []voice.Option{
		voice.WithPersister(transcript.NewPersister(sm.cfg.Store, key)),
		voice.WithLogger(logger),
		voice.WithMetrics(sm.cfg.Metrics),
		voice.WithOnChange(hooks.OnChange),
		voice.WithOnEntry(hooks.OnEntry),
		voice.WithOnTranscript(hooks.OnTranscript),
	}
	if sm.cfg.STT != nil {
		format := speech.DefaultFormat
		if sc.InputSampleRate > 0 {
			format.SampleRate = sc.InputSampleRate
		}
		if sc.InputChannels > 0 {
			format.Channels = sc.InputChannels
		}
		s.input = speech.NewInput(sctx, sm.cfg.STT,
			speech.WithSourceFormat(format),
			speech.WithLanguage(sm.cfg.Language),
			speech.WithInputMetrics(sm.cfg.Metrics),
			speech.WithInputLogger(logger),
		)
		opts = append(opts, voice.WithInput(s.input))
	}
	if sm.cfg.TTS != nil && hooks.Audio != nil {
		s.output = speech.NewOutput(sctx, sm.cfg.TTS, hooks.Audio,
			speech.WithVoice(sm.cfg.Voice),
			speech.WithOutputMetrics(sm.cfg.Metrics),
			speech.WithOutputLogger(logger),
		)
		opts = append(opts, voice.WithOutput(s.output))
	}

	responder := sm.cfg.Responder
	if sm.cfg.NewResponder != nil {
		responder = sm.cfg.NewResponder(id)
	}
	c, err := voice.New(sctx, responder, controllerConfig(sc, sm.cfg.RespondTimeout), opts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("app: new controller: %w", err)
	}
	s.Controller = c
	return s, nil
}

// Close ends the session id. Closing an unknown id is a no-op.
func (sm *SessionManager) Close(id string) error {
	sm.mu.Lock()
	s, ok := sm.sessions[id]
	if !ok || s == nil {
		sm.mu.Unlock()
		return nil
	}
	delete(sm.sessions, id)
	sm.mu.Unlock()

	err := s.close()
	sm.cfg.Metrics.ActiveSessions.Add(context.Background(), -1)
	sm.cfg.Logger.Info("session stopped", "session", id, "duration", time.Since(s.info.StartedAt).Round(time.Second))
	return err
}

// CloseAll ends every live session. It stops early when ctx expires.
func (sm *SessionManager) CloseAll(ctx context.Context) error {
	for _, info := range sm.Sessions() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sm.Close(info.SessionID); err != nil {
			slog.Warn("session: close error", "session", info.SessionID, "err", err)
		}
	}
	return nil
}

// Get returns the live session id.
func (sm *SessionManager) Get(id string) (*Session, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s, ok := sm.sessions[id]
	return s, ok && s != nil
}

// Sessions returns metadata about every live session, oldest first.
func (sm *SessionManager) Sessions() []SessionInfo {
	sm.mu.Lock()
	infos := make([]SessionInfo, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		if s != nil {
			infos = append(infos, s.info)
		}
	}
	sm.mu.Unlock()
	sort.Slice(infos, func(i, j int) bool { return infos[i].StartedAt.Before(infos[j].StartedAt) })
	return infos
}

// sessionKey is the transcript slot of session id.
func sessionKey(prefix, id string) string {
	if prefix == "" {
		prefix = transcript.DefaultKey
	}
	return prefix + ":" + id
}

// controllerConfig applies config defaults to the controller tunables.
func controllerConfig(sc config.SessionConfig, respondTimeout time.Duration) voice.Config {
	d := voice.DefaultConfig()
	return voice.Config{
		VoiceEnabled:     config.Bool(sc.VoiceEnabled, d.VoiceEnabled),
		BargeIn:          config.Bool(sc.BargeIn, d.BargeIn),
		CopingTips:       config.Bool(sc.CopingTips, d.CopingTips),
		GraceDelay:       sc.GraceDelay,
		GreetDelay:       sc.GreetDelay,
		RespondTimeout:   respondTimeout,
		MaxInputRestarts: sc.MaxInputRestarts,
	}
}
