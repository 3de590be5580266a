package memoize

import (
	"context"
	"fmt"

	"github.com/cenkalti/backoff/v4"

	"github.com/goliatone/go-memoize/cache"
)

// DeferredFunc memoizes a function that may block or fail. Concurrent calls with equal
// arguments share one in-flight computation; failed computations are not cached.
type DeferredFunc[R any] struct {
	*core[*cache.Deferred[R]]
	fn    func(ctx context.Context, args ...any) (R, error)
	retry func() backoff.BackOff
}

// NewDeferred memoizes fn. cfg.Deferred is implied.
func NewDeferred[R any](fn func(ctx context.Context, args ...any) (R, error), cfg cache.Config, opts ...Option) (*DeferredFunc[R], error) {
	if fn == nil {
		return nil, &cache.ConfigError{Field: "fn", Message: "function is required"}
	}
	cfg.Deferred = true

	o := buildOptions(opts, funcName(fn))
	c, err := newCore[*cache.Deferred[R]](cfg, nil, o)
	if err != nil {
		return nil, fmt.Errorf("memoize %s: %w", o.name, err)
	}
	return &DeferredFunc[R]{core: c, fn: fn, retry: o.retry}, nil
}

// Go returns the shared deferred result for args, starting the computation on a miss.
// The computation keeps the values of ctx but not its cancellation: it belongs to every
// caller sharing it, not to the one that started it.
func (d *DeferredFunc[R]) Go(ctx context.Context, args ...any) *cache.Deferred[R] {
	detached := context.WithoutCancel(ctx)
	result, err := d.lookupStart(args, func(args []any) (*cache.Deferred[R], func()) {
		pending := cache.NewDeferred[R]()
		return pending, func() {
			pending.Run(detached, func(ctx context.Context) (R, error) {
				return d.run(ctx, args)
			})
		}
	})
	if err != nil {
		return cache.Rejected[R](err)
	}
	return result
}

// Call waits for the result of Go. Cancelling ctx stops the wait, not the shared
// computation.
func (d *DeferredFunc[R]) Call(ctx context.Context, args ...any) (R, error) {
	return d.Go(ctx, args...).Await(ctx)
}

func (d *DeferredFunc[R]) run(ctx context.Context, args []any) (R, error) {
	return retrying(ctx, d.retry, d.log, func(ctx context.Context) (R, error) {
		return d.fn(ctx, args...)
	})
}
