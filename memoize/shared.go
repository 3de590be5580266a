package memoize

import (
	"context"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"github.com/goliatone/go-memoize/cache"
)

// Shared memoizes a function in a CacheService, so results are shared by every Shared
// function using the same service and namespace. Arguments are matched by their
// serialized form only.
type Shared[R any] struct {
	service    cache.CacheService
	namespace  string
	serializer cache.KeySerializer
	fn         func(ctx context.Context, args ...any) (R, error)
	retry      func() backoff.BackOff
	stats      Stats
	metrics    MetricsCollector
	log        zerolog.Logger
}

// NewShared memoizes fn in service under namespace. A nil serializer selects the
// default one.
func NewShared[R any](service cache.CacheService, namespace string, fn func(ctx context.Context, args ...any) (R, error), serializer cache.KeySerializer, opts ...Option) (*Shared[R], error) {
	switch {
	case service == nil:
		return nil, &cache.ConfigError{Field: "service", Message: "cache service is required"}
	case namespace == "":
		return nil, &cache.ConfigError{Field: "namespace", Message: "namespace is required"}
	case fn == nil:
		return nil, &cache.ConfigError{Field: "fn", Message: "function is required"}
	}
	if serializer == nil {
		serializer = cache.NewDefaultKeySerializer()
	}

	o := buildOptions(opts, namespace)
	log := zerolog.Nop()
	if o.logger != nil {
		log = *o.logger
	}

	return &Shared[R]{
		service:    service,
		namespace:  namespace,
		serializer: serializer,
		fn:         fn,
		retry:      o.retry,
		metrics:    o.metrics,
		log:        log.With().Str("component", "memoize").Str("cache", o.name).Logger(),
	}, nil
}

// Key returns the service key for args.
func (s *Shared[R]) Key(args ...any) (string, error) {
	text, err := s.serializer.SerializeKey(args...)
	if err != nil {
		return "", err
	}
	return s.namespace + cache.KeySeparator + text, nil
}

// Call returns the shared result for args, running the function on a miss.
func (s *Shared[R]) Call(ctx context.Context, args ...any) (R, error) {
	s.stats.calls.Inc()

	key, err := s.Key(args...)
	if err != nil {
		s.stats.misses.Inc()
		var zero R
		return zero, err
	}

	computed := atomic.NewBool(false)
	value, err := cache.GetOrFetch(ctx, s.service, key, func(ctx context.Context) (R, error) {
		if computed.CompareAndSwap(false, true) {
			s.stats.misses.Inc()
			s.metrics.IncMisses()
		}
		return s.run(ctx, args)
	})
	if !computed.Load() {
		s.metrics.IncHits()
	}
	return value, err
}

func (s *Shared[R]) run(ctx context.Context, args []any) (R, error) {
	return retrying(ctx, s.retry, s.log, func(ctx context.Context) (R, error) {
		return s.fn(ctx, args...)
	})
}

// Forget removes the shared result for args.
func (s *Shared[R]) Forget(ctx context.Context, args ...any) error {
	key, err := s.Key(args...)
	if err != nil {
		return err
	}
	return s.service.Delete(ctx, key)
}

// Purge removes every result of the namespace.
func (s *Shared[R]) Purge(ctx context.Context) error {
	s.log.Debug().Str("event", "purge").Msg("namespace purged")
	return s.service.DeleteByPrefix(ctx, s.namespace+cache.KeySeparator)
}

// Namespace returns the key prefix of this function.
func (s *Shared[R]) Namespace() string { return s.namespace }

// Stats returns a snapshot of the call counters.
func (s *Shared[R]) Stats() StatsSnapshot { return s.stats.Snapshot() }
