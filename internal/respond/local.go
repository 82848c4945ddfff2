package respond

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/llm"
)

// SystemPrompt is the default instruction given to the model.
const SystemPrompt = `You are an empathetic and supportive emotional assistance companion designed to help people who feel lonely or need emotional support.

Your core principles:
1. Be warm, compassionate, and non-judgmental
2. Listen actively and validate emotions
3. Ask thoughtful follow-up questions to understand better
4. Offer gentle encouragement and hope
5. Suggest healthy coping strategies when appropriate
6. Never diagnose or replace professional mental health care
7. If someone expresses suicidal thoughts or severe crisis, encourage them to contact emergency services or crisis hotlines

Your tone should be caring, patient, conversational and hopeful. Keep replies short enough to be spoken aloud.

Remember: your goal is to provide companionship, emotional support, and help users feel heard and less alone.`

// DefaultHistory is the number of past exchanges sent with each request.
const DefaultHistory = 10

// LocalOption configures a [Local].
type LocalOption func(*Local)

// WithAnalyzer replaces the default emotion analyzer.
func WithAnalyzer(a *emotion.Analyzer) LocalOption {
	return func(l *Local) { l.analyzer = a }
}

// WithSystemPrompt replaces [SystemPrompt].
func WithSystemPrompt(p string) LocalOption {
	return func(l *Local) { l.prompt = p }
}

// WithHistory sets how many past exchanges are sent to the model.
func WithHistory(n int) LocalOption {
	return func(l *Local) { l.history = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) LocalOption {
	return func(l *Local) { l.temperature = t }
}

// WithLocalMetrics records respond latency and outcomes into m.
func WithLocalMetrics(m *observe.Metrics) LocalOption {
	return func(l *Local) { l.metrics = m }
}

// Turn is the full outcome of a local turn.
type Turn struct {
	Reply     voice.Reply
	Crisis    bool
	Intensity float64
	Sentiment emotion.Sentiment
}

// Local answers in-process: it analyses the message, asks the model for a
// reply and decorates it with mode, tone and a coping suggestion. Crisis
// messages bypass the model and get [emotion.CrisisResponse].
//
// A Local keeps one conversation history and is safe for concurrent use.
type Local struct {
	provider    llm.Provider
	analyzer    *emotion.Analyzer
	prompt      string
	history     int
	temperature float64
	metrics     *observe.Metrics

	mu   sync.Mutex
	hist []llm.Message
}

var (
	_ voice.Responder = (*Local)(nil)
	_ voice.Resetter  = (*Local)(nil)
)

// NewLocal returns a Local backed by provider.
func NewLocal(provider llm.Provider, opts ...LocalOption) (*Local, error) {
	if provider == nil {
		return nil, fmt.Errorf("respond: llm provider must not be nil")
	}
	l := &Local{provider: provider, prompt: SystemPrompt, history: DefaultHistory}
	for _, o := range opts {
		o(l)
	}
	if l.analyzer == nil {
		l.analyzer = emotion.New()
	}
	if l.history < 0 {
		l.history = 0
	}
	return l, nil
}

// Fork returns a Local with the same provider and settings but an empty
// conversation.
func (l *Local) Fork() *Local {
	return &Local{
		provider:    l.provider,
		analyzer:    l.analyzer,
		prompt:      l.prompt,
		history:     l.history,
		temperature: l.temperature,
		metrics:     l.metrics,
	}
}

// Respond implements voice.Responder.
func (l *Local) Respond(ctx context.Context, message string) (voice.Reply, error) {
	t, err := l.Turn(ctx, message)
	if err != nil {
		return voice.Reply{}, err
	}
	return t.Reply, nil
}

// Turn answers message and returns the analysis alongside the reply.
func (l *Local) Turn(ctx context.Context, message string) (Turn, error) {
	start := time.Now()
	message = strings.TrimSpace(message)
	if message == "" {
		return Turn{}, voice.ErrEmptyText
	}
	a := l.analyzer.Analyze(message)

	if a.Crisis {
		slog.Warn("respond: crisis language detected")
		style := emotion.CrisisStyle
		l.remember(message, emotion.CrisisResponse)
		l.record(ctx, "crisis", time.Since(start))
		return Turn{
			Reply: voice.Reply{
				Text:    emotion.CrisisResponse,
				Emotion: a.Primary,
				Mode:    emotion.ModeCrisis,
				Style:   &style,
			},
			Crisis:    true,
			Intensity: a.Intensity,
			Sentiment: a.Sentiment,
		}, nil
	}

	mode := emotion.Mode(a.Primary, a.Intensity)
	coping := l.analyzer.CopingSuggestion(a.Primary)

	req := llm.Request{
		SystemPrompt: l.prompt + "\n\n" + hint(a.Primary, mode, coping),
		Messages:     append(l.recent(), llm.Message{Role: llm.RoleUser, Content: message}),
		Temperature:  l.temperature,
	}
	resp, err := l.provider.Complete(ctx, req)
	if err != nil {
		l.record(ctx, "error", time.Since(start))
		return Turn{}, fmt.Errorf("respond: complete: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		l.record(ctx, "empty", time.Since(start))
		return Turn{}, ErrEmptyResponse
	}
	l.remember(message, text)
	l.record(ctx, "ok", time.Since(start))

	style := emotion.Tone(a.Primary, a.Intensity)
	return Turn{
		Reply: voice.Reply{
			Text:             text,
			Emotion:          a.Primary,
			Mode:             mode,
			CopingSuggestion: coping,
			Style:            &style,
		},
		Intensity: a.Intensity,
		Sentiment: a.Sentiment,
	}, nil
}

// Reset forgets the conversation history.
func (l *Local) Reset() {
	l.mu.Lock()
	l.hist = nil
	l.mu.Unlock()
}

func hint(primary, mode, coping string) string {
	var b strings.Builder
	if primary != emotion.Neutral {
		fmt.Fprintf(&b, "The user seems to feel %s. ", primary)
	}
	fmt.Fprintf(&b, "Use a %s approach.", mode)
	if primary != emotion.Neutral && primary != emotion.Happy {
		fmt.Fprintf(&b, " If it fits naturally, you may gently suggest: %s.", coping)
	}
	return b.String()
}

// recent returns a copy of the last l.history exchanges.
func (l *Local) recent() []llm.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]llm.Message(nil), l.hist...)
}

func (l *Local) remember(user, assistant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hist = append(l.hist,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	if limit := 2 * l.history; len(l.hist) > limit {
		l.hist = append([]llm.Message(nil), l.hist[len(l.hist)-limit:]...)
	}
}

func (l *Local) record(ctx context.Context, status string, d time.Duration) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordRespond(context.WithoutCancel(ctx), "local", status, d)
	if status == "error" || status == "empty" {
		l.metrics.RecordProviderError(context.WithoutCancel(ctx), "llm", status)
	}
}
