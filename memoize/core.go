package memoize

import (
	"reflect"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/goliatone/go-memoize/cache"
)

// core is the part shared by Func and DeferredFunc: the engine, its identity and its
// counters.
type core[V any] struct {
	id      uuid.UUID
	name    string
	cache   *cache.Cache[V]
	stats   Stats
	metrics MetricsCollector
	log     zerolog.Logger
}

func newCore[V any](cfg cache.Config, adapter cache.DeferredAdapter[V], o options) (*core[V], error) {
	c := &core[V]{
		id:      uuid.New(),
		name:    o.name,
		metrics: o.metrics,
	}

	if o.logger != nil {
		cfg.Logger = *o.logger
	}
	cfg.Logger = cfg.Logger.With().Str("cache", c.name).Logger()
	cfg.Hooks = cache.ChainHooks(cfg.Hooks, c.hooks())
	c.log = cfg.Logger

	engine, err := cache.NewWithAdapter[V](cfg, adapter)
	if err != nil {
		return nil, err
	}
	c.cache = engine
	return c, nil
}

func (c *core[V]) hooks() cache.Hooks {
	return cache.Hooks{
		OnEvict: func(cache.Key) {
			c.stats.evictions.Inc()
			c.metrics.AddEvictions(1)
		},
		OnChange: func(cache.Key) {
			if c.cache != nil {
				c.metrics.SetAmount(c.cache.Len())
			}
		},
	}
}

// lookup runs one call through the engine and accounts for it.
func (c *core[V]) lookup(args []any, compute func(args []any) V) (V, error) {
	c.stats.calls.Inc()

	computed := false
	value, err := c.cache.LookupOrCompute(args, func(args []any) V {
		computed = true
		c.stats.misses.Inc()
		c.metrics.IncMisses()
		return compute(args)
	})
	if err != nil {
		c.stats.misses.Inc()
		return value, err
	}
	if !computed {
		c.metrics.IncHits()
	}
	return value, nil
}

// lookupStart runs one call through the engine, publishing a created value before its
// work starts so concurrent equal calls share it.
func (c *core[V]) lookupStart(args []any, create func(args []any) (V, func())) (V, error) {
	c.stats.calls.Inc()

	value, created, err := c.cache.LookupOrStart(args, create)
	switch {
	case err != nil:
		c.stats.misses.Inc()
	case created:
		c.stats.misses.Inc()
		c.metrics.IncMisses()
	default:
		c.metrics.IncHits()
	}
	return value, err
}

// ID identifies this instance; two functions with the same name still have distinct ids.
func (c *core[V]) ID() uuid.UUID { return c.id }

// Name returns the name used in logs and metrics.
func (c *core[V]) Name() string { return c.name }

// Stats returns a snapshot of the call counters.
func (c *core[V]) Stats() StatsSnapshot { return c.stats.Snapshot() }

// Keys returns the raw key of every cached call, most recently used first.
func (c *core[V]) Keys() [][]any { return c.cache.Keys() }

// Values returns the cached results in the same order as Keys.
func (c *core[V]) Values() []V { return c.cache.Values() }

// Size returns the number of cached results.
func (c *core[V]) Size() int { return c.cache.Len() }

// Has reports whether a result for args is cached.
func (c *core[V]) Has(args ...any) bool { return c.cache.Has(args...) }

// Get returns the cached result for args without running the function.
func (c *core[V]) Get(args ...any) (V, bool) { return c.cache.Get(args...) }

// Set stores value as the result for args.
func (c *core[V]) Set(args []any, value V) error { return c.cache.Set(args, value) }

// Remove forgets the result for args.
func (c *core[V]) Remove(args ...any) bool { return c.cache.Remove(args...) }

// Clear forgets every result.
func (c *core[V]) Clear() {
	c.cache.Clear()
	c.log.Debug().Str("event", "clear").Msg("memoized results cleared")
}

// funcName returns the symbol name of fn, trimmed to package.function.
func funcName(fn any) string {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return "anonymous"
	}
	f := runtime.FuncForPC(rv.Pointer())
	if f == nil {
		return "anonymous"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}
