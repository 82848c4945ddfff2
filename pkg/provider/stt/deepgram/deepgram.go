// Package deepgram provides an stt.Provider backed by the Deepgram streaming
// WebSocket API.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/solace/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// Deepgram drops a stream that sees neither audio nor a KeepAlive
	// for ten seconds.
	defaultKeepAlive = 5 * time.Second
)

var (
	msgKeepAlive   = []byte(`{"type":"KeepAlive"}`)
	msgCloseStream = []byte(`{"type":"CloseStream"}`)
)

// ErrClosed is returned by SendAudio after the session ended.
var ErrClosed = errors.New("deepgram: session is closed")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default BCP-47 language.
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithEndpointing sets the silence in milliseconds after which Deepgram
// finalises an utterance. Zero keeps the server default.
func WithEndpointing(ms int) Option {
	return func(p *Provider) { p.endpointing = ms }
}

// WithKeepAlive sets how long the stream may go without audio before a
// KeepAlive message is sent. Zero or negative disables keepalives.
func WithKeepAlive(d time.Duration) Option {
	return func(p *Provider) { p.keepAlive = d }
}

// Provider opens one Deepgram live-transcription socket per listen.
type Provider struct {
	apiKey      string
	endpoint    string
	model       string
	language    string
	sampleRate  int
	endpointing int
	keepAlive   time.Duration
}

var _ stt.Provider = (*Provider)(nil)

// New returns a Deepgram provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		keepAlive:  defaultKeepAlive,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming session. The session lives until Close,
// until ctx ends or until Deepgram closes the connection.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.Session, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &session{
		conn:        conn,
		keepAlive:   p.keepAlive,
		cancel:      cancel,
		audio:       make(chan []byte, 256),
		transcripts: make(chan stt.Transcript, 64),
		done:        make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)
	return s, nil
}

func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if p.endpointing > 0 {
		q.Set("endpointing", strconv.Itoa(p.endpointing))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// result is the subset of a Deepgram "Results" message that is used.
type result struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// parseResult turns a raw message into a transcript. ok is false for
// messages that carry no text (metadata, speech-started, empty results).
func parseResult(data []byte) (t stt.Transcript, ok bool) {
	var r result
	if err := json.Unmarshal(data, &r); err != nil {
		return stt.Transcript{}, false
	}
	if r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}
	alt := r.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return stt.Transcript{}, false
	}
	return stt.Transcript{Text: alt.Transcript, IsFinal: r.IsFinal, Confidence: alt.Confidence}, true
}

type session struct {
	conn        *websocket.Conn
	keepAlive   time.Duration
	cancel      context.CancelFunc
	audio       chan []byte
	transcripts chan stt.Transcript

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup

	mu  sync.Mutex
	err error
}

func (s *session) SendAudio(pcm []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.audio <- pcm:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *session) Transcripts() <-chan stt.Transcript { return s.transcripts }

func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *session) Close() error {
	s.shutdown()
	s.wg.Wait()
	return nil
}

// fail records why the session ended unless the caller already closed it.
func (s *session) fail(err error) {
	select {
	case <-s.done:
		return
	default:
	}
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// shutdown stops both loops once.
func (s *session) shutdown() {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = s.conn.Write(ctx, websocket.MessageText, msgCloseStream)
		cancel()
		s.cancel()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
}

func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()

	var idle <-chan time.Time
	if s.keepAlive > 0 {
		t := time.NewTicker(s.keepAlive)
		defer t.Stop()
		idle = t.C
	}
	sentAudio := false
	for {
		var (
			typ  websocket.MessageType
			data []byte
		)
		select {
		case pcm := <-s.audio:
			typ, data, sentAudio = websocket.MessageBinary, pcm, true
		case <-idle:
			if sentAudio {
				sentAudio = false
				continue
			}
			typ, data = websocket.MessageText, msgKeepAlive
		case <-s.done:
			return
		}
		if err := s.conn.Write(ctx, typ, data); err != nil {
			s.fail(fmt.Errorf("deepgram: write: %w", err))
			go s.shutdown()
			return
		}
	}
}

func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.transcripts)
	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.fail(fmt.Errorf("deepgram: read: %w", err))
			}
			go s.shutdown()
			return
		}
		t, ok := parseResult(msg)
		if !ok {
			continue
		}
		select {
		case s.transcripts <- t:
		case <-s.done:
			return
		}
	}
}
