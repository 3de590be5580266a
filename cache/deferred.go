package cache

import (
	"context"
	"reflect"
	"sync"

	"github.com/sourcegraph/conc/panics"
)

// Deferred is a value that settles exactly once, either with a result or an error.
// Subscribers registered before settlement run on the settling goroutine, before Done is
// closed; subscribers registered afterwards run immediately on the caller's goroutine.
type Deferred[T any] struct {
	mu      sync.Mutex
	done    chan struct{}
	settled bool
	value   T
	err     error
	subs    []func(T, error)
}

// NewDeferred returns a pending Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{done: make(chan struct{})}
}

// Resolved returns a Deferred already settled with v.
func Resolved[T any](v T) *Deferred[T] {
	d := NewDeferred[T]()
	d.Resolve(v)
	return d
}

// Rejected returns a Deferred already settled with err.
func Rejected[T any](err error) *Deferred[T] {
	d := NewDeferred[T]()
	d.Reject(err)
	return d
}

// Go runs fn on a new goroutine and settles the returned Deferred with its result.
// A panic inside fn rejects the Deferred instead of crashing the process.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Deferred[T] {
	d := NewDeferred[T]()
	d.Run(ctx, fn)
	return d
}

// Run starts fn on a new goroutine and settles d with its result, or rejects it if fn
// panics. Use it to publish a pending d before the work starts.
func (d *Deferred[T]) Run(ctx context.Context, fn func(ctx context.Context) (T, error)) {
	go func() {
		var (
			value T
			err   error
			pc    panics.Catcher
		)
		pc.Try(func() {
			value, err = fn(ctx)
		})
		if r := pc.Recovered(); r != nil {
			d.Reject(r.AsError())
			return
		}
		d.settle(value, err)
	}()
}

// Resolve settles d with v. It returns false if d had already settled.
func (d *Deferred[T]) Resolve(v T) bool {
	return d.settle(v, nil)
}

// Reject settles d with err. A nil err is replaced by ErrRejected so that a rejected
// Deferred never looks successful.
func (d *Deferred[T]) Reject(err error) bool {
	if err == nil {
		err = ErrRejected
	}
	var zero T
	return d.settle(zero, err)
}

func (d *Deferred[T]) settle(v T, err error) bool {
	d.mu.Lock()
	if d.settled {
		d.mu.Unlock()
		return false
	}
	d.settled = true
	d.value, d.err = v, err
	subs := d.subs
	d.subs = nil
	d.mu.Unlock()

	for _, fn := range subs {
		fn(v, err)
	}
	close(d.done)
	return true
}

// Subscribe registers fn to run once d settles.
func (d *Deferred[T]) Subscribe(fn func(T, error)) {
	d.mu.Lock()
	if !d.settled {
		d.subs = append(d.subs, fn)
		d.mu.Unlock()
		return
	}
	v, err := d.value, d.err
	d.mu.Unlock()
	fn(v, err)
}

// Done is closed when d settles.
func (d *Deferred[T]) Done() <-chan struct{} {
	return d.done
}

// Result returns the settled value and error. ok is false while d is pending.
func (d *Deferred[T]) Result() (value T, err error, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.value, d.err, d.settled
}

// Await blocks until d settles or ctx is done.
func (d *Deferred[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-d.done:
		d.mu.Lock()
		defer d.mu.Unlock()
		return d.value, d.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (d *Deferred[T]) subscribeSettled(fn func(err error)) {
	d.Subscribe(func(_ T, err error) { fn(err) })
}

// DeferredAdapter lets the cache follow a deferred value to settlement.
type DeferredAdapter[V any] interface {
	// IsDeferred reports whether v is a deferred value the cache must follow.
	IsDeferred(v V) bool
	// Settle calls done once v settles. settled replaces v in the cache on success.
	Settle(v V, done func(settled V, err error))
}

// settleNotifier is implemented by every *Deferred[T].
type settleNotifier interface {
	subscribeSettled(fn func(err error))
}

type builtinAdapter[V any] struct{}

func (builtinAdapter[V]) IsDeferred(v V) bool {
	n, ok := any(v).(settleNotifier)
	if !ok {
		return false
	}
	rv := reflect.ValueOf(n)
	return !(rv.Kind() == reflect.Pointer && rv.IsNil())
}

func (builtinAdapter[V]) Settle(v V, done func(settled V, err error)) {
	any(v).(settleNotifier).subscribeSettled(func(err error) {
		done(v, err)
	})
}

// defaultAdapter returns the built-in adapter when V is a *Deferred[T].
func defaultAdapter[V any]() (DeferredAdapter[V], bool) {
	var zero V
	if _, ok := any(zero).(settleNotifier); !ok {
		return nil, false
	}
	return builtinAdapter[V]{}, true
}
