// Package memoize wraps functions with the cache engine.
//
// # Overview
//
//   - Func: a synchronous function; Call returns the cached result or computes it
//   - Wrap1, Wrap2: typed closures over a Func
//   - DeferredFunc: a function that may block or fail; equal concurrent calls share one
//     computation and failures are never cached
//   - Shared: a function whose results live in a cache.CacheService shared by many
//     functions, addressed by namespace and serialized arguments
//
// # Basic Usage
//
//	square, handle, err := memoize.Wrap1(func(n int) int { return n * n },
//		cache.Config{MaxSize: 128, MaxArgs: 1})
//	if err != nil {
//		return err
//	}
//	square(4) // computes
//	square(4) // hit
//	handle.Stats().HitRatio()
//
// # Deferred Functions
//
//	load, err := memoize.NewDeferred(func(ctx context.Context, args ...any) (*User, error) {
//		return repo.GetByID(ctx, args[0].(string))
//	}, cache.Config{MaxSize: 1000, MaxAge: time.Minute},
//		memoize.WithRetry(func() backoff.BackOff { return backoff.NewExponentialBackOff() }))
//
//	user, err := load.Call(ctx, "42")
//
// The computation runs on its own goroutine with the context of the call that started
// it. Call waits for it; cancelling the caller's context ends the wait only.
//
// # Metrics
//
// WithMetrics accepts any MetricsCollector; WithPrometheus reports to a shared
// PrometheusMetrics under the function's name. Counters are fed from cache.Hooks.
package memoize
