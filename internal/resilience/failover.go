package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when no backend of a [Failover] produced a result.
var ErrAllFailed = errors.New("resilience: all backends failed")

type backend[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Failover holds equivalent backends in preference order, each guarded by
// its own [Breaker].
type Failover[T any] struct {
	cfg      Config
	opts     []Option
	backends []backend[T]
}

// NewFailover returns an empty Failover. cfg and opts configure the
// breaker created for every added backend; cfg.Name is replaced by the
// backend name.
func NewFailover[T any](cfg Config, opts ...Option) *Failover[T] {
	return &Failover[T]{cfg: cfg, opts: opts}
}

// Add appends a backend. Backends are tried in the order they were added.
// Add must not be called concurrently with [Call].
func (f *Failover[T]) Add(name string, value T) *Failover[T] {
	cfg := f.cfg
	cfg.Name = name
	f.backends = append(f.backends, backend[T]{name: name, value: value, breaker: NewBreaker(cfg, f.opts...)})
	return f
}

// Fork returns a Failover over the same breakers with every value replaced
// by fn(name, value). Failures seen through either Failover trip the shared
// breakers.
func (f *Failover[T]) Fork(fn func(name string, value T) T) *Failover[T] {
	g := &Failover[T]{cfg: f.cfg, opts: f.opts, backends: make([]backend[T], len(f.backends))}
	for i, b := range f.backends {
		b.value = fn(b.name, b.value)
		g.backends[i] = b
	}
	return g
}

// Each calls fn for every backend in order.
func (f *Failover[T]) Each(fn func(name string, value T)) {
	for _, b := range f.backends {
		fn(b.name, b.value)
	}
}

// Len returns the number of backends.
func (f *Failover[T]) Len() int { return len(f.backends) }

// Breaker returns the breaker of the named backend, or nil.
func (f *Failover[T]) Breaker(name string) *Breaker {
	for i := range f.backends {
		if f.backends[i].name == name {
			return f.backends[i].breaker
		}
	}
	return nil
}

// Call runs fn against each backend of f in order and returns the first
// success. Backends with an open breaker are skipped. The caller's ctx
// ending stops the walk immediately.
func Call[T, R any](ctx context.Context, f *Failover[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range f.backends {
		b := &f.backends[i]
		var res R
		err := b.breaker.Do(ctx, func(ctx context.Context) error {
			var err error
			res, err = fn(ctx, b.value)
			return err
		})
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		if errors.Is(err, ErrOpen) {
			slog.Debug("resilience: skipping backend", "backend", b.name)
			continue
		}
		slog.Warn("resilience: backend failed", "backend", b.name, "err", err)
	}
	if lastErr == nil {
		return zero, ErrAllFailed
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
