package respond

import (
	"context"

	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/internal/voice"
)

// Failover tries responders in order, each behind its own circuit
// breaker. A typical chain is the remote backend followed by a [Local]
// responder.
type Failover struct {
	chain *resilience.Failover[voice.Responder]
}

var (
	_ voice.Responder = (*Failover)(nil)
	_ voice.Resetter  = (*Failover)(nil)
)

// NewFailover returns an empty chain whose breakers use cfg and opts.
func NewFailover(cfg resilience.Config, opts ...resilience.Option) *Failover {
	return &Failover{chain: resilience.NewFailover[voice.Responder](cfg, opts...)}
}

// Add appends a responder.
func (f *Failover) Add(name string, r voice.Responder) *Failover {
	f.chain.Add(name, r)
	return f
}

// Breaker returns the breaker guarding the named responder, or nil.
func (f *Failover) Breaker(name string) *resilience.Breaker { return f.chain.Breaker(name) }

// Fork returns a chain sharing f's breakers in which every [Local] member
// is replaced by its own fork. Other members are shared.
func (f *Failover) Fork() *Failover {
	return &Failover{chain: f.chain.Fork(func(_ string, r voice.Responder) voice.Responder {
		if l, ok := r.(*Local); ok {
			return l.Fork()
		}
		return r
	})}
}

// Reset clears the conversation of every member that keeps one.
func (f *Failover) Reset() {
	f.chain.Each(func(_ string, r voice.Responder) {
		if rs, ok := r.(voice.Resetter); ok {
			rs.Reset()
		}
	})
}

// Respond implements voice.Responder.
func (f *Failover) Respond(ctx context.Context, message string) (voice.Reply, error) {
	return resilience.Call(ctx, f.chain, func(ctx context.Context, r voice.Responder) (voice.Reply, error) {
		return r.Respond(ctx, message)
	})
}
