// Package speech adapts streaming STT and TTS providers to the voice
// controller's capabilities.
//
// [Input] turns microphone PCM pushed with Feed into transcript events.
// [Output] synthesises utterances and writes the audio to a sink, usually the
// client connection.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/stt"
)

// DefaultFormat is what STT sessions are opened with: 16 kHz mono.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// InputOption configures an [Input].
type InputOption func(*Input)

// WithSourceFormat declares the format of audio passed to Feed. It is
// converted to mono at the stream sample rate before reaching the provider.
func WithSourceFormat(f Format) InputOption {
	return func(in *Input) { in.source = f }
}

// WithLanguage sets the recognition language for new streams.
func WithLanguage(lang string) InputOption {
	return func(in *Input) { in.stream.Language = lang }
}

// WithInputMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithInputMetrics(m *observe.Metrics) InputOption {
	return func(in *Input) {
		if m != nil {
			in.metrics = m
		}
	}
}

// WithInputLogger sets the logger. Default: [slog.Default].
func WithInputLogger(l *slog.Logger) InputOption {
	return func(in *Input) {
		if l != nil {
			in.logger = l
		}
	}
}

// Input implements [voice.SpeechInput] over an [stt.Provider]. At most one
// listen is active at a time; audio fed while none is active is dropped.
type Input struct {
	provider stt.Provider
	ctx      context.Context
	stream   stt.StreamConfig
	source   Format
	metrics  *observe.Metrics
	logger   *slog.Logger

	mu  sync.Mutex
	cur *listen
}

var _ voice.SpeechInput = (*Input)(nil)

type listen struct {
	id      uint64
	sess    stt.Session
	emit    voice.Emitter
	cancel  context.CancelFunc
	started time.Time
}

// NewInput returns an Input. Streams live no longer than ctx.
func NewInput(ctx context.Context, provider stt.Provider, opts ...InputOption) *Input {
	in := &Input{
		provider: provider,
		ctx:      ctx,
		stream:   stt.StreamConfig{SampleRate: DefaultFormat.SampleRate, Channels: DefaultFormat.Channels},
		source:   DefaultFormat,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Start opens a recognition stream for listen id, replacing any current one.
func (in *Input) Start(id uint64, emit voice.Emitter) error {
	in.halt()

	ctx, cancel := context.WithCancel(in.ctx)
	sess, err := in.provider.StartStream(ctx, in.stream)
	if err != nil {
		cancel()
		return fmt.Errorf("speech: start stream: %w", err)
	}
	l := &listen{id: id, sess: sess, emit: emit, cancel: cancel, started: time.Now()}

	in.mu.Lock()
	in.cur = l
	in.mu.Unlock()

	go in.pump(l)
	return nil
}

// Stop ends the current listen without reporting it as ended.
func (in *Input) Stop() error {
	in.halt()
	return nil
}

// Feed forwards a chunk of source-format PCM to the active stream and
// reports its loudness. It is a no-op while no listen is active.
func (in *Input) Feed(pcm []byte) error {
	in.mu.Lock()
	l := in.cur
	in.mu.Unlock()
	if l == nil {
		return nil
	}
	chunk := Convert(pcm, in.source, in.stream.SampleRate)
	l.emit(voice.AudioLevel{ListenID: l.id, Level: Level(chunk)})
	if err := l.sess.SendAudio(chunk); err != nil {
		return fmt.Errorf("speech: send audio: %w", err)
	}
	return nil
}

// Active reports whether a listen is running.
func (in *Input) Active() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cur != nil
}

func (in *Input) halt() {
	in.mu.Lock()
	l := in.cur
	in.cur = nil
	in.mu.Unlock()
	if l == nil {
		return
	}
	l.cancel()
	if err := l.sess.Close(); err != nil {
		in.logger.Debug("speech: close stream", "listen", l.id, "err", err)
	}
}

func (in *Input) current(l *listen) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cur == l
}

// pump relays transcripts of one listen until its stream closes. Nothing is
// emitted once the listen has been replaced or stopped.
func (in *Input) pump(l *listen) {
	timed := false
	for t := range l.sess.Transcripts() {
		if !in.current(l) {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if !t.IsFinal {
			l.emit(voice.Interim{ListenID: l.id, Text: text})
			continue
		}
		if !timed {
			timed = true
			in.metrics.RecordSTT(in.ctx, time.Since(l.started))
		}
		l.emit(voice.Final{ListenID: l.id, Text: text})
	}

	in.mu.Lock()
	ended := in.cur == l
	if ended {
		in.cur = nil
	}
	in.mu.Unlock()
	if !ended {
		return
	}
	err := l.sess.Err()
	l.cancel()
	_ = l.sess.Close()
	if err != nil {
		in.logger.Warn("speech: stream ended", "listen", l.id, "err", err)
		in.metrics.RecordProviderError(in.ctx, "stt", "stream")
	}
	l.emit(voice.InputEnded{ListenID: l.id, Err: err})
}
