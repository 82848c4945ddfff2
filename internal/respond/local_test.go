package respond

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/solace/internal/emotion"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/llm"
	llmmock "github.com/MrWong99/solace/pkg/provider/llm/mock"
)

func firstPick(int) int { return 0 }

func newLocal(t *testing.T, p llm.Provider, opts ...LocalOption) *Local {
	t.Helper()
	opts = append([]LocalOption{WithAnalyzer(emotion.New(emotion.WithPicker(firstPick)))}, opts...)
	l, err := NewLocal(p, opts...)
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	return l
}

func TestLocal_Turn(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.Response{Content: "  Let's slow down together.  "}}
	l := newLocal(t, p)

	turn, err := l.Turn(context.Background(), "I'm anxious about tomorrow")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	r := turn.Reply
	if r.Text != "Let's slow down together." {
		t.Errorf("Text = %q", r.Text)
	}
	if r.Emotion != emotion.Anxious || r.Mode != emotion.ModeCBT {
		t.Errorf("Emotion/Mode = %q/%q, want anxious/cbt", r.Emotion, r.Mode)
	}
	if r.CopingSuggestion != "Practice deep breathing: inhale for 4 counts, hold for 4, exhale for 4" {
		t.Errorf("CopingSuggestion = %q", r.CopingSuggestion)
	}
	if r.Style == nil || *r.Style != emotion.Tone(emotion.Anxious, 0.5) {
		t.Errorf("Style = %+v", r.Style)
	}
	if turn.Crisis {
		t.Error("Crisis = true")
	}

	req, ok := p.LastRequest()
	if !ok {
		t.Fatal("provider not called")
	}
	if !strings.HasPrefix(req.SystemPrompt, SystemPrompt) {
		t.Error("system prompt does not start with the default prompt")
	}
	if !strings.Contains(req.SystemPrompt, "feel anxious") || !strings.Contains(req.SystemPrompt, "cbt approach") {
		t.Errorf("system prompt lacks the emotion hint: %q", req.SystemPrompt[len(SystemPrompt):])
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != llm.RoleUser {
		t.Errorf("messages = %+v", req.Messages)
	}
}

func TestLocal_History(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.Response{Content: "ok"}}
	l := newLocal(t, p, WithHistory(1))
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := l.Respond(ctx, msg); err != nil {
			t.Fatalf("Respond(%q): %v", msg, err)
		}
	}
	req, _ := p.LastRequest()
	if len(req.Messages) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(req.Messages))
	}
	if req.Messages[0].Content != "two" || req.Messages[1].Role != llm.RoleAssistant || req.Messages[2].Content != "three" {
		t.Errorf("messages = %+v", req.Messages)
	}

	l.Reset()
	_, _ = l.Respond(ctx, "four")
	req, _ = p.LastRequest()
	if len(req.Messages) != 1 {
		t.Errorf("after Reset len(messages) = %d, want 1", len(req.Messages))
	}
}

func TestLocal_ForkStartsEmpty(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.Response{Content: "ok"}}
	l := newLocal(t, p, WithSystemPrompt("be kind"), WithTemperature(0.4))
	ctx := context.Background()
	_, _ = l.Respond(ctx, "secret")

	f := l.Fork()
	_, _ = f.Respond(ctx, "hello")
	req, _ := p.LastRequest()
	if len(req.Messages) != 1 || req.Messages[0].Content != "hello" {
		t.Errorf("fork messages = %+v, want only its own turn", req.Messages)
	}
	if !strings.HasPrefix(req.SystemPrompt, "be kind") || req.Temperature != 0.4 {
		t.Errorf("fork lost settings: prompt %q temperature %v", req.SystemPrompt, req.Temperature)
	}

	f.Reset()
	_, _ = l.Respond(ctx, "again")
	req, _ = p.LastRequest()
	if len(req.Messages) != 3 || req.Messages[0].Content != "secret" {
		t.Errorf("resetting the fork cleared the original: %+v", req.Messages)
	}
}

func TestLocal_ToneFallback(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.Response{Content: "That sounds rough."}}
	l := newLocal(t, p)

	turn, err := l.Turn(context.Background(), "everything went wrong, it was awful")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if turn.Reply.Emotion != emotion.Sad {
		t.Errorf("Emotion = %q, want sad from polarity", turn.Reply.Emotion)
	}
	if turn.Sentiment.Polarity != -0.75 {
		t.Errorf("Polarity = %v, want -0.75", turn.Sentiment.Polarity)
	}
	req, _ := p.LastRequest()
	if !strings.Contains(req.SystemPrompt, "feel sad") {
		t.Errorf("system prompt lacks the emotion hint: %q", req.SystemPrompt[len(SystemPrompt):])
	}
}

func TestLocal_Crisis(t *testing.T) {
	p := &llmmock.Provider{Response: &llm.Response{Content: "unused"}}
	l := newLocal(t, p)

	turn, err := l.Turn(context.Background(), "I just want to die")
	if err != nil {
		t.Fatalf("Turn: %v", err)
	}
	if !turn.Crisis {
		t.Error("Crisis = false")
	}
	if turn.Reply.Text != emotion.CrisisResponse || turn.Reply.Mode != emotion.ModeCrisis {
		t.Errorf("reply = %+v", turn.Reply)
	}
	if turn.Reply.Style == nil || *turn.Reply.Style != emotion.CrisisStyle {
		t.Errorf("Style = %+v", turn.Reply.Style)
	}
	if p.CallCount() != 0 {
		t.Errorf("provider calls = %d, want 0", p.CallCount())
	}
}

func TestLocal_Failures(t *testing.T) {
	errLLM := errors.New("model offline")
	tests := []struct {
		name    string
		p       *llmmock.Provider
		message string
		want    error
	}{
		{"provider error", &llmmock.Provider{Err: errLLM}, "hello", errLLM},
		{"blank reply", &llmmock.Provider{Response: &llm.Response{Content: "   "}}, "hello", ErrEmptyResponse},
		{"blank message", &llmmock.Provider{}, "  ", voice.ErrEmptyText},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			l := newLocal(t, tc.p)
			if _, err := l.Respond(context.Background(), tc.message); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLocal_FailedTurnIsNotRemembered(t *testing.T) {
	p := &llmmock.Provider{Err: errors.New("down")}
	l := newLocal(t, p)
	_, _ = l.Respond(context.Background(), "first")

	p.Err = nil
	p.Response = &llm.Response{Content: "ok"}
	_, _ = l.Respond(context.Background(), "second")
	req, _ := p.LastRequest()
	if len(req.Messages) != 1 {
		t.Errorf("len(messages) = %d, want 1", len(req.Messages))
	}
}

func TestNewLocal_NilProvider(t *testing.T) {
	if _, err := NewLocal(nil); err == nil {
		t.Fatal("expected error")
	}
}
