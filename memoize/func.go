package memoize

import (
	"fmt"

	"github.com/goliatone/go-memoize/cache"
)

// Func is a memoized synchronous function.
type Func[R any] struct {
	*core[R]
	fn func(args ...any) R
}

// New memoizes fn. cfg.Deferred is rejected here; use NewDeferred for functions whose
// results settle later.
func New[R any](fn func(args ...any) R, cfg cache.Config, opts ...Option) (*Func[R], error) {
	if fn == nil {
		return nil, &cache.ConfigError{Field: "fn", Message: "function is required"}
	}
	if cfg.Deferred {
		return nil, &cache.ConfigError{Field: "Deferred", Message: "use NewDeferred for deferred results"}
	}

	o := buildOptions(opts, funcName(fn))
	c, err := newCore[R](cfg, nil, o)
	if err != nil {
		return nil, fmt.Errorf("memoize %s: %w", o.name, err)
	}
	return &Func[R]{core: c, fn: fn}, nil
}

// Call returns the cached result for args, running the function on a miss. It panics
// with a *cache.KeyError when args cannot be turned into a key; use TryCall to get the
// error instead.
func (f *Func[R]) Call(args ...any) R {
	value, err := f.TryCall(args...)
	if err != nil {
		panic(err)
	}
	return value
}

// TryCall is Call returning key construction failures as errors.
func (f *Func[R]) TryCall(args ...any) (R, error) {
	return f.lookup(args, func(args []any) R {
		return f.fn(args...)
	})
}

// Wrap1 memoizes a one argument function and returns a typed closure over it.
func Wrap1[A, R any](fn func(A) R, cfg cache.Config, opts ...Option) (func(A) R, *Func[R], error) {
	if fn == nil {
		return nil, nil, &cache.ConfigError{Field: "fn", Message: "function is required"}
	}
	opts = append([]Option{WithName(funcName(fn))}, opts...)
	f, err := New(func(args ...any) R {
		return fn(argAt[A](args, 0))
	}, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return func(a A) R { return f.Call(a) }, f, nil
}

// Wrap2 memoizes a two argument function and returns a typed closure over it.
func Wrap2[A, B, R any](fn func(A, B) R, cfg cache.Config, opts ...Option) (func(A, B) R, *Func[R], error) {
	if fn == nil {
		return nil, nil, &cache.ConfigError{Field: "fn", Message: "function is required"}
	}
	opts = append([]Option{WithName(funcName(fn))}, opts...)
	f, err := New(func(args ...any) R {
		return fn(argAt[A](args, 0), argAt[B](args, 1))
	}, cfg, opts...)
	if err != nil {
		return nil, nil, err
	}
	return func(a A, b B) R { return f.Call(a, b) }, f, nil
}

// argAt returns args[i] as T, or the zero T when it is missing or nil.
func argAt[T any](args []any, i int) T {
	var zero T
	if i >= len(args) || args[i] == nil {
		return zero
	}
	v, ok := args[i].(T)
	if !ok {
		return zero
	}
	return v
}
