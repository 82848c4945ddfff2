// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to feed controlled audio chunks to consumers and to verify
// which requests reached the TTS backend.
//
// Example:
//
//	p := &mock.Provider{Chunks: [][]byte{[]byte("audio1"), []byte("audio2")}}
//	err := p.Synthesize(ctx, tts.Request{Text: "hello"}, &buf)
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.Request
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are written to w in order by Synthesize.
	Chunks [][]byte

	// Err, if non-nil, is returned by Synthesize after the chunks are written.
	Err error

	// SynthesizeFunc, if set, replaces the default behaviour entirely.
	SynthesizeFunc func(ctx context.Context, req tts.Request, w io.Writer) error

	// Calls records every call to Synthesize.
	Calls []SynthesizeCall
}

// Synthesize records the call, writes Chunks and returns Err.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request, w io.Writer) error {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Req: req})
	fn, chunks, err := p.SynthesizeFunc, p.Chunks, p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req, w)
	}
	for _, c := range chunks {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, werr := w.Write(c); werr != nil {
			return werr
		}
	}
	return err
}

// CallCount returns the number of Synthesize calls.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastRequest returns the request of the latest Synthesize call.
func (p *Provider) LastRequest() tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return tts.Request{}
	}
	return p.Calls[len(p.Calls)-1].Req
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
