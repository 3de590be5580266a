package cache

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigError through errors.Is.
var ErrConfiguration = errors.New("memoize: invalid configuration")

// ErrNoDeferredAdapter is reported when deferred mode is enabled but the cached value
// type cannot be followed to settlement.
var ErrNoDeferredAdapter = errors.New("deferred mode requires a DeferredAdapter or *Deferred[T] values")

// ErrRejected is the failure reported by a Deferred rejected without a reason.
var ErrRejected = errors.New("deferred value rejected")

// ErrCyclicValue is returned by the first serialization pass when an argument refers back
// to itself. Serializers recover from it locally.
var ErrCyclicValue = errors.New("cyclic value")

// ErrInvalidResultType is returned by GetOrFetch when the shared service holds a value of
// another type under the requested key.
var ErrInvalidResultType = errors.New("cached value has unexpected type")

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "config error in field " + e.Field + ": " + e.Message
}

// Is reports ErrConfiguration as a match so callers do not need errors.As.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// KeyError wraps a serialization failure that the reference-breaking fallback could not
// recover from.
type KeyError struct {
	Err error
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("cache key construction failed: %v", e.Err)
}

func (e *KeyError) Unwrap() error {
	return e.Err
}
