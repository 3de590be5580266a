package cache

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Cache stores the results of one computation keyed by its arguments.
//
// A single mutex serializes every operation. Expiration timers and deferred settlement
// run on other goroutines and take the same lock; user code (the computation, hooks,
// OnExpire, transforms and serializers) always runs with the lock released.
type Cache[V any] struct {
	mu       sync.Mutex
	cfg      Config
	resolver *resolver
	store    store[V]
	adapter  DeferredAdapter[V]
	log      zerolog.Logger
}

// New builds a cache from cfg. Deferred mode requires V to be a *Deferred[T]; use
// NewWithAdapter for other deferred representations.
func New[V any](cfg Config) (*Cache[V], error) {
	return NewWithAdapter[V](cfg, nil)
}

// NewWithAdapter builds a cache that follows deferred values through adapter.
// adapter is ignored unless cfg.Deferred is set.
func NewWithAdapter[V any](cfg Config, adapter DeferredAdapter[V]) (*Cache[V], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	if !cfg.Deferred {
		adapter = nil
	} else if adapter == nil {
		builtin, ok := defaultAdapter[V]()
		if !ok {
			return nil, &ConfigError{
				Field:   "Deferred",
				Message: ErrNoDeferredAdapter.Error(),
				Err:     ErrNoDeferredAdapter,
			}
		}
		adapter = builtin
	}

	return &Cache[V]{
		cfg:      cfg,
		resolver: newResolver(cfg),
		adapter:  adapter,
		log:      cfg.Logger.With().Str("component", "memoize").Logger(),
	}, nil
}

type notice struct {
	fn  func(Key)
	key Key
}

// notices collects hook calls made under the lock so they can run after it is released.
type notices []notice

func (n *notices) add(fn func(Key), key Key) {
	if fn != nil {
		*n = append(*n, notice{fn: fn, key: key})
	}
}

func (n notices) fire() {
	for _, x := range n {
		x.fn(x.key)
	}
}

func (c *Cache[V]) prepare(args []any) ([]any, error) {
	prepared, err := c.resolver.prepare(args)
	if err != nil {
		var keyErr *KeyError
		if !errors.As(err, &keyErr) {
			err = &KeyError{Err: err}
		}
		return nil, err
	}
	return prepared, nil
}

// LookupOrCompute returns the cached value for args, calling compute with the original
// args on a miss. The only error is a *KeyError from key serialization.
func (c *Cache[V]) LookupOrCompute(args []any, compute func(args []any) V) (V, error) {
	prepared, err := c.prepare(args)
	if err != nil {
		var zero V
		return zero, err
	}

	if value, ok := c.hit(prepared); ok {
		return value, nil
	}
	return c.insert(prepared, compute(args)), nil
}

// LookupOrStart is LookupOrCompute for values that must be published before their work
// begins. On a miss create runs with the lock held and returns the value to store and a
// start func; start runs once the lock is released, so concurrent callers with equal args
// find the stored value instead of creating their own. create must not block or call
// back into the cache. created reports whether this call stored the value.
func (c *Cache[V]) LookupOrStart(args []any, create func(args []any) (V, func())) (value V, created bool, err error) {
	prepared, err := c.prepare(args)
	if err != nil {
		return value, false, err
	}

	var n notices
	c.mu.Lock()
	key, i := resolve(c.resolver, &c.store, prepared)
	if i >= 0 {
		value = c.touchLocked(i, &n).value
		c.mu.Unlock()
		n.fire()
		return value, false, nil
	}

	value, start := create(args)
	settle := c.addLocked(key, value, &n)
	c.mu.Unlock()

	n.fire()
	if settle != nil {
		settle()
	}
	if start != nil {
		start()
	}
	return value, true, nil
}

func (c *Cache[V]) hit(args []any) (V, bool) {
	var n notices

	c.mu.Lock()
	i := lookup(c.resolver, &c.store, args)
	if i < 0 {
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	e := c.touchLocked(i, &n)
	value := e.value
	c.mu.Unlock()

	n.fire()
	return value, true
}

// touchLocked moves the entry at i to the head and, with UpdateExpire, restarts its
// expiration window.
func (c *Cache[V]) touchLocked(i int, n *notices) *entry[V] {
	e := c.store.touch(i)
	if c.cfg.UpdateExpire && !e.pending {
		c.arm(e)
	}
	n.add(c.cfg.Hooks.OnHit, e.key)
	if i > 0 {
		n.add(c.cfg.Hooks.OnChange, e.key)
	}
	return e
}

// insert stores value unless a concurrent caller stored an equal key while value was
// being computed, in which case the stored value wins and value is discarded.
func (c *Cache[V]) insert(args []any, value V) V {
	var n notices

	c.mu.Lock()
	key, i := resolve(c.resolver, &c.store, args)
	if i >= 0 {
		e := c.touchLocked(i, &n)
		stored := e.value
		c.mu.Unlock()
		n.fire()
		return stored
	}
	settle := c.addLocked(key, value, &n)
	c.mu.Unlock()

	n.fire()
	if settle != nil {
		settle()
	}
	return value
}

// addLocked prepends a new entry, arms its expiration (or defers arming until the value
// settles) and applies the size bound. The returned func subscribes to settlement and
// must be called after the lock is released.
func (c *Cache[V]) addLocked(key Key, value V, n *notices) func() {
	e := c.store.add(key, value)
	n.add(c.cfg.Hooks.OnAdd, key)
	n.add(c.cfg.Hooks.OnChange, key)

	var settle func()
	if c.adapter != nil && c.adapter.IsDeferred(value) {
		e.pending = true
		id := e.id
		settle = func() {
			c.adapter.Settle(value, func(settled V, err error) {
				c.settle(id, settled, err)
			})
		}
	} else {
		c.arm(e)
	}

	c.enforceSize(n)
	return settle
}

// settle records the outcome of a deferred value. Entries removed or replaced since
// insertion are left alone.
func (c *Cache[V]) settle(id uint64, settled V, err error) {
	var n notices

	c.mu.Lock()
	i := c.store.indexOfID(id)
	if i < 0 {
		c.mu.Unlock()
		c.log.Debug().Str("event", "settle_stale").Uint64("entry", id).Msg("settled entry no longer cached")
		return
	}

	e := c.store.at(i)
	if err != nil {
		c.store.removeAt(i)
		e.stopTimer()
		n.add(c.cfg.Hooks.OnChange, e.key)
		c.mu.Unlock()
		c.log.Debug().Str("event", "settle_rejected").Uint64("entry", id).Err(err).Msg("removed rejected value")
		n.fire()
		return
	}

	c.store.update(e.key, settled)
	e.pending = false
	c.arm(e)
	n.add(c.cfg.Hooks.OnChange, e.key)
	c.mu.Unlock()

	n.fire()
}

// Resolve returns the stored key matching args, or a fresh key and false.
func (c *Cache[V]) Resolve(args ...any) (Key, bool, error) {
	prepared, err := c.prepare(args)
	if err != nil {
		return nil, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	key, i := resolve(c.resolver, &c.store, prepared)
	return key, i >= 0, nil
}

// logKeyError records arguments the inspection methods could not key. Those methods
// report a miss instead of returning the error.
func (c *Cache[V]) logKeyError(op string, err error) {
	c.log.Debug().Str("event", "key_error").Str("op", op).Err(err).Msg("arguments could not be keyed")
}

// Has reports whether args resolve to a stored entry. It does not change recency. A
// *KeyError counts as absent and is logged at debug level.
func (c *Cache[V]) Has(args ...any) bool {
	_, ok := c.Get(args...)
	return ok
}

// Get returns the stored value for args without changing recency. Pending deferred
// values are returned as they are. A *KeyError counts as absent and is logged at debug
// level; use Resolve to receive it.
func (c *Cache[V]) Get(args ...any) (V, bool) {
	var zero V
	prepared, err := c.prepare(args)
	if err != nil {
		c.logKeyError("get", err)
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if i := lookup(c.resolver, &c.store, prepared); i >= 0 {
		return c.store.at(i).value, true
	}
	return zero, false
}

// Set stores value for args as the most recently used entry, replacing any equal key.
func (c *Cache[V]) Set(args []any, value V) error {
	prepared, err := c.prepare(args)
	if err != nil {
		return err
	}

	var n notices
	c.mu.Lock()
	key, i := resolve(c.resolver, &c.store, prepared)
	if i >= 0 {
		c.store.removeAt(i).stopTimer()
	}
	settle := c.addLocked(key, value, &n)
	c.mu.Unlock()

	n.fire()
	if settle != nil {
		settle()
	}
	return nil
}

// Remove deletes the entry for args. It reports whether one existed; a *KeyError is
// logged at debug level and reported as false.
func (c *Cache[V]) Remove(args ...any) bool {
	prepared, err := c.prepare(args)
	if err != nil {
		c.logKeyError("remove", err)
		return false
	}

	c.mu.Lock()
	i := lookup(c.resolver, &c.store, prepared)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	e := c.store.removeAt(i)
	e.stopTimer()
	c.mu.Unlock()

	c.cfg.Hooks.fire(c.cfg.Hooks.OnChange, e.key)
	return true
}

// Clear removes every entry. Pending timers and settlements become no-ops.
func (c *Cache[V]) Clear() {
	var n notices

	c.mu.Lock()
	for _, e := range c.store.clear() {
		e.stopTimer()
		n.add(c.cfg.Hooks.OnChange, e.key)
	}
	c.mu.Unlock()

	n.fire()
}

// Keys returns the raw key of every entry, most recently used first.
func (c *Cache[V]) Keys() [][]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.keys()
}

// Values returns every stored value in the same order as Keys.
func (c *Cache[V]) Values() []V {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.values()
}

// Len returns the number of entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.len()
}

// Pending returns the number of entries with an armed expiration timer.
func (c *Cache[V]) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, e := range c.store.entries {
		if e.timer != nil {
			count++
		}
	}
	return count
}

// Config returns the normalized configuration the cache was built with.
func (c *Cache[V]) Config() Config {
	return c.cfg
}
