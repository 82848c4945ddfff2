package respond

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/voice"
	"github.com/MrWong99/solace/pkg/provider/llm"
	llmmock "github.com/MrWong99/solace/pkg/provider/llm/mock"
)

func TestFailover_RemoteThenLocal(t *testing.T) {
	srv := therapyServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	remote, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	local := newLocal(t, &llmmock.Provider{Response: &llm.Response{Content: "I'm here."}})

	f := NewFailover(resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour}).
		Add("remote", remote).
		Add("local", local)

	for range 2 {
		reply, err := f.Respond(context.Background(), "hello")
		if err != nil {
			t.Fatalf("Respond: %v", err)
		}
		if reply.Text != "I'm here." {
			t.Errorf("Text = %q", reply.Text)
		}
	}
	if got := f.Breaker("remote").State(); got != resilience.Open {
		t.Errorf("remote breaker = %v, want open", got)
	}
}

func TestFailover_AllFail(t *testing.T) {
	errDown := errors.New("down")
	down := voice.ResponderFunc(func(context.Context, string) (voice.Reply, error) {
		return voice.Reply{}, errDown
	})
	f := NewFailover(resilience.Config{}).Add("a", down).Add("b", down)

	_, err := f.Respond(context.Background(), "hello")
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, errDown) {
		t.Errorf("err = %v, want ErrAllFailed wrapping errDown", err)
	}
}

func TestFailover_ForkKeepsOwnLocalHistory(t *testing.T) {
	errDown := errors.New("down")
	remote := voice.ResponderFunc(func(context.Context, string) (voice.Reply, error) {
		return voice.Reply{}, errDown
	})
	p := &llmmock.Provider{Response: &llm.Response{Content: "I'm here."}}
	f := NewFailover(resilience.Config{MaxFailures: 1, ResetTimeout: time.Hour}).
		Add("remote", remote).
		Add("local", newLocal(t, p))
	a, b := f.Fork(), f.Fork()
	ctx := context.Background()

	if _, err := a.Respond(ctx, "alice here"); err != nil {
		t.Fatalf("a.Respond: %v", err)
	}
	if _, err := b.Respond(ctx, "bob here"); err != nil {
		t.Fatalf("b.Respond: %v", err)
	}
	req, _ := p.LastRequest()
	if len(req.Messages) != 1 || req.Messages[0].Content != "bob here" {
		t.Errorf("b saw a's history: %+v", req.Messages)
	}
	if a.Breaker("remote") != f.Breaker("remote") || f.Breaker("remote").State() != resilience.Open {
		t.Error("forks do not share the remote breaker")
	}

	a.Reset()
	_, _ = a.Respond(ctx, "fresh")
	req, _ = p.LastRequest()
	if len(req.Messages) != 1 {
		t.Errorf("after Reset messages = %+v, want one", req.Messages)
	}
}
