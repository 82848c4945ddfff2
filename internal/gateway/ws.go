package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/transcript"
	"github.com/MrWong99/solace/internal/voice"
)

const (
	// readLimit bounds one client frame. 64 KiB holds two seconds of
	// 16 kHz mono PCM.
	readLimit = 64 << 10

	// writeTimeout bounds one frame write.
	writeTimeout = 10 * time.Second

	// maxQueued bounds the JSON frames waiting for one client. A client
	// that falls this far behind is disconnected.
	maxQueued = 256
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// handleWS upgrades the request and runs one session until either side
// goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = uuid.NewString()
	} else if !sessionIDPattern.MatchString(id) {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.logger.Warn("gateway: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stop := context.AfterFunc(s.base, cancel)
	defer stop()

	logger := observe.LoggerFrom(ctx, s.logger).With("session", id)
	out := newOutbox(maxQueued)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		out.run(ctx, conn, logger)
		cancel()
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	sess, err := s.sessions.Open(ctx, id, Hooks{
		OnChange:     func(snap voice.Snapshot) { out.push(stateFrame(snap)) },
		OnEntry:      func(e transcript.Entry) { out.push(EntryFrame{Type: FrameEntry, Entry: wireEntry(e)}) },
		OnTranscript: func(es []transcript.Entry) { out.push(transcriptFrame(es)) },
		Audio:        &audioSink{ctx: ctx, conn: conn},
	})
	if err != nil {
		logger.Warn("gateway: open session failed", "err", err)
		if errors.Is(err, ErrSessionActive) {
			conn.Close(websocket.StatusPolicyViolation, "session already active")
			return
		}
		conn.Close(websocket.StatusInternalError, "session unavailable")
		return
	}
	defer func() {
		if err := s.sessions.Close(id); err != nil {
			logger.Warn("gateway: close session", "err", err)
		}
	}()
	logger.Info("gateway: session connected", "remote", r.RemoteAddr)

	out.push(SessionFrame{Type: FrameSession, Session: id})
	out.push(transcriptFrame(sess.Entries()))
	out.push(stateFrame(sess.Snapshot()))

	if s.status != nil {
		unsubscribe := s.status.Subscribe(sess.SetConnection)
		defer unsubscribe()
	}

	s.readLoop(ctx, conn, sess, out, logger)
}

// readLoop dispatches client frames until the connection ends.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess Session, out *outbox, logger *slog.Logger) {
	var feedErr error
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure, status == websocket.StatusGoingAway:
				logger.Info("gateway: session disconnected")
			case ctx.Err() != nil:
				logger.Info("gateway: session closed by server")
			default:
				logger.Warn("gateway: read failed", "err", err)
			}
			return
		}

		switch typ {
		case websocket.MessageBinary:
			if err := sess.Feed(data); err != nil && !errors.Is(err, feedErr) {
				feedErr = err
				logger.Debug("gateway: dropping audio", "err", err)
			}
		case websocket.MessageText:
			if err := control(sess, data); err != nil {
				out.push(ErrorFrame{Type: FrameError, Error: err.Error()})
			}
		}
	}
}

// control applies one JSON command to sess.
func control(sess Session, data []byte) error {
	var f ControlFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return errors.New("malformed control frame")
	}
	switch f.Type {
	case ControlStart:
		return sess.StartTalking()
	case ControlStop:
		sess.StopTalking()
	case ControlToggleVoice:
		sess.ToggleVoice()
	case ControlReset:
		sess.Reset()
	case ControlText:
		return sess.SubmitText(f.Text)
	default:
		return errors.New("unknown control type " + f.Type)
	}
	return nil
}

// audioSink writes synthesised PCM as binary frames.
type audioSink struct {
	ctx  context.Context
	conn *websocket.Conn
}

func (a *audioSink) Write(p []byte) (int, error) {
	ctx, cancel := context.WithTimeout(a.ctx, writeTimeout)
	defer cancel()
	if err := a.conn.Write(ctx, websocket.MessageBinary, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// outbox queues JSON frames for a single writer goroutine. push never
// blocks, so controller callbacks can call it from the event loop. Once more
// than limit frames are waiting the outbox closes and drops everything.
type outbox struct {
	limit int

	mu     sync.Mutex
	queue  [][]byte
	closed bool
	wake   chan struct{}
	full   chan struct{}
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit, wake: make(chan struct{}, 1), full: make(chan struct{})}
}

func (o *outbox) push(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("gateway: encode frame", "err", err)
		return
	}
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	if len(o.queue) >= o.limit {
		o.closed = true
		o.queue = nil
		close(o.full)
		o.mu.Unlock()
		return
	}
	o.queue = append(o.queue, data)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *outbox) take() [][]byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	q := o.queue
	o.queue = nil
	return q
}

// run writes queued frames until ctx is done, a write fails or the queue
// overflows.
func (o *outbox) run(ctx context.Context, conn *websocket.Conn, logger *slog.Logger) {
	defer func() {
		o.mu.Lock()
		o.closed = true
		o.queue = nil
		o.mu.Unlock()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case <-o.full:
			logger.Warn("gateway: client too slow, closing", "queued", o.limit)
			conn.Close(websocket.StatusTryAgainLater, "client too slow")
			return
		case <-o.wake:
		}
		for _, data := range o.take() {
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("gateway: write failed", "err", err)
				}
				return
			}
		}
	}
}
