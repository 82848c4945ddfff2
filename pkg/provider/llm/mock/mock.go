// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Response: &llm.Response{Content: "I'm listening."}}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/llm"
)

// Call records a single invocation of Complete.
type Call struct {
	Ctx context.Context
	Req llm.Request
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Response is returned when Err is nil. A nil Response yields an empty
	// reply.
	Response *llm.Response

	// Err, if non-nil, is returned by every Complete call.
	Err error

	// CompleteFunc, if set, replaces Response/Err.
	CompleteFunc func(ctx context.Context, req llm.Request) (*llm.Response, error)

	// Calls records every Complete call in order.
	Calls []Call
}

// Complete records the call and returns the configured result.
func (p *Provider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.Response, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return &llm.Response{}, nil
	}
	out := *resp
	return &out, nil
}

// CallCount returns the number of Complete calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the request of the most recent call.
func (p *Provider) LastRequest() (llm.Request, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return llm.Request{}, false
	}
	return p.Calls[len(p.Calls)-1].Req, true
}

var _ llm.Provider = (*Provider)(nil)
