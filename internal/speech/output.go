package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/tts"
)

// OutputOption configures an [Output].
type OutputOption func(*Output)

// WithVoice selects the provider voice. Empty keeps the provider default.
func WithVoice(voiceID string) OutputOption {
	return func(o *Output) { o.voiceID = voiceID }
}

// WithOutputMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithOutputMetrics(m *observe.Metrics) OutputOption {
	return func(o *Output) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithOutputLogger sets the logger. Default: [slog.Default].
func WithOutputLogger(l *slog.Logger) OutputOption {
	return func(o *Output) {
		if l != nil {
			o.logger = l
		}
	}
}

// Output implements [voice.SpeechOutput] over a [tts.Provider]. Synthesised
// PCM is written to the sink as it arrives. The sink must tolerate a write
// from a cancelled utterance racing with the next one.
type Output struct {
	provider tts.Provider
	sink     io.Writer
	ctx      context.Context
	voiceID  string
	metrics  *observe.Metrics
	logger   *slog.Logger

	mu     sync.Mutex
	id     uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ voice.SpeechOutput = (*Output)(nil)

// NewOutput returns an Output writing to sink. Utterances live no longer
// than ctx.
func NewOutput(ctx context.Context, provider tts.Provider, sink io.Writer, opts ...OutputOption) *Output {
	o := &Output{
		provider: provider,
		sink:     sink,
		ctx:      ctx,
		metrics:  observe.DefaultMetrics(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Speak starts synthesising text in the background, cancelling whatever was
// playing. Every accepted utterance emits SpeechStarted and then exactly one
// of SpeechEnded or SpeechFailed.
func (o *Output) Speak(id uint64, text string, style voice.Style, emit voice.Emitter) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return voice.ErrEmptyText
	}
	ctx, cancel := context.WithCancel(o.ctx)

	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
	}
	o.id, o.cancel = id, cancel
	o.wg.Add(1)
	o.mu.Unlock()

	req := tts.Request{Text: text, VoiceID: o.voiceID, Settings: Settings(style)}
	go o.play(ctx, cancel, id, req, emit)
	return nil
}

// Cancel halts the current utterance.
func (o *Output) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
}

// Wait blocks until every started utterance has emitted its terminal event.
func (o *Output) Wait() { o.wg.Wait() }

func (o *Output) play(ctx context.Context, cancel context.CancelFunc, id uint64, req tts.Request, emit voice.Emitter) {
	defer o.wg.Done()
	defer func() {
		o.mu.Lock()
		if o.id == id {
			o.cancel = nil
		}
		o.mu.Unlock()
		cancel()
	}()

	w := &utteranceWriter{ctx: ctx, sink: o.sink, start: func() { emit(voice.SpeechStarted{UtteranceID: id}) }}
	begin := time.Now()
	err := o.provider.Synthesize(ctx, req, w)
	w.begin()

	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		status = "canceled"
	default:
		status = "error"
		o.logger.Warn("speech: synthesis failed", "utterance", id, "err", err)
		o.metrics.RecordProviderError(o.ctx, "tts", "synthesize")
	}
	o.metrics.RecordTTS(o.ctx, status, time.Since(begin))

	if err != nil {
		emit(voice.SpeechFailed{UtteranceID: id, Err: err})
		return
	}
	emit(voice.SpeechEnded{UtteranceID: id})
}

// Settings maps tone-of-voice modifiers onto provider delivery settings.
// Pitch has no provider equivalent and is not carried.
func Settings(s voice.Style) tts.Settings {
	s = s.Clamp()
	return tts.Settings{
		Speed:           s.Speed,
		Stability:       0.3 + 0.5*(1-s.Energy),
		SimilarityBoost: 0.75,
		Style:           0.5 * s.Warmth,
	}
}

// utteranceWriter announces the utterance on its first audio and refuses
// writes once the utterance is cancelled.
type utteranceWriter struct {
	ctx   context.Context
	sink  io.Writer
	start func()
	once  sync.Once
}

func (w *utteranceWriter) begin() { w.once.Do(w.start) }

func (w *utteranceWriter) Write(p []byte) (int, error) {
	if err := w.ctx.Err(); err != nil {
		return 0, err
	}
	w.begin()
	return w.sink.Write(p)
}
