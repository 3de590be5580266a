package cacheinfra

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/viccon/sturdyc"
)

// Config holds the configuration for the sturdyc cache adapter.
type Config struct {
	// Capacity defines the maximum number of entries that the cache can store.
	Capacity int

	// NumShards determines the number of cache shards for concurrent access.
	// Higher values improve concurrency but increase memory overhead.
	NumShards int

	// TTL is the default time-to-live for cached entries.
	TTL time.Duration

	// EvictionPercentage specifies what percentage of entries to evict
	// when the cache reaches its capacity. Must be between 1-100.
	EvictionPercentage int

	// EarlyRefresh configures early refresh behavior for cached entries.
	// If nil, early refresh is disabled.
	EarlyRefresh *EarlyRefreshConfig

	// MissingRecordStorage makes the cache remember keys whose fetch reported
	// sturdyc.ErrNotFound.
	MissingRecordStorage bool

	// EvictionInterval sets how often the cache checks for expired entries.
	// Zero value uses the default interval.
	EvictionInterval time.Duration
}

// EarlyRefreshConfig configures early refresh behavior.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration
	MaxAsyncRefreshTime time.Duration
	SyncRefreshTime     time.Duration
	RetryBaseDelay      time.Duration
}

// DefaultConfig returns a Config with sensible defaults for most use cases.
func DefaultConfig() Config {
	return Config{
		Capacity:           10000,
		NumShards:          256,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
		EarlyRefresh: &EarlyRefreshConfig{
			MinAsyncRefreshTime: 10 * time.Second,
			MaxAsyncRefreshTime: 20 * time.Second,
			SyncRefreshTime:     30 * time.Second,
			RetryBaseDelay:      100 * time.Millisecond,
		},
		MissingRecordStorage: true,
	}
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Capacity, validation.Required, validation.Min(1)),
		validation.Field(&c.NumShards, validation.Required, validation.Min(1)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Nanosecond)),
		validation.Field(&c.EvictionPercentage, validation.Required, validation.Min(1), validation.Max(100)),
		validation.Field(&c.EvictionInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.EarlyRefresh),
	)
}

// Validate checks that no refresh duration is negative.
func (e *EarlyRefreshConfig) Validate() error {
	if e == nil {
		return nil
	}
	nonNegative := validation.Min(time.Duration(0))
	return validation.ValidateStruct(e,
		validation.Field(&e.MinAsyncRefreshTime, nonNegative),
		validation.Field(&e.MaxAsyncRefreshTime, nonNegative),
		validation.Field(&e.SyncRefreshTime, nonNegative),
		validation.Field(&e.RetryBaseDelay, nonNegative),
	)
}

func (c Config) options() []sturdyc.Option {
	var options []sturdyc.Option
	if e := c.EarlyRefresh; e != nil {
		options = append(options, sturdyc.WithEarlyRefreshes(
			e.MinAsyncRefreshTime,
			e.MaxAsyncRefreshTime,
			e.SyncRefreshTime,
			e.RetryBaseDelay,
		))
	}
	if c.MissingRecordStorage {
		options = append(options, sturdyc.WithMissingRecordStorage())
	}
	if c.EvictionInterval > 0 {
		options = append(options, sturdyc.WithEvictionInterval(c.EvictionInterval))
	}
	return options
}

// ErrInvalidFetchFn is returned when GetOrFetch receives something other than
// func(context.Context) (T, error).
var ErrInvalidFetchFn = errors.New("fetchFn must have signature func(context.Context) (T, error)")

// SturdycService stores memoized results in a sharded sturdyc client.
type SturdycService struct {
	client *sturdyc.Client[any]
}

// NewSturdycService validates cfg and builds the sturdyc client.
func NewSturdycService(cfg Config) (*SturdycService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	client := sturdyc.New[any](
		cfg.Capacity,
		cfg.NumShards,
		cfg.TTL,
		cfg.EvictionPercentage,
		cfg.options()...,
	)
	return &SturdycService{client: client}, nil
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// fetcher adapts fetchFn to the any-typed signature sturdyc stores.
func fetcher(fetchFn any) (func(context.Context) (any, error), error) {
	if fn, ok := fetchFn.(func(context.Context) (any, error)); ok {
		return fn, nil
	}
	if fetchFn == nil {
		return nil, fmt.Errorf("%w: got nil", ErrInvalidFetchFn)
	}

	fnValue := reflect.ValueOf(fetchFn)
	fnType := fnValue.Type()
	if fnType.Kind() != reflect.Func || fnType.NumIn() != 1 || fnType.NumOut() != 2 ||
		!fnType.In(0).Implements(contextType) || !fnType.Out(1).Implements(errorType) {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidFetchFn, fetchFn)
	}

	return func(ctx context.Context) (any, error) {
		results := fnValue.Call([]reflect.Value{reflect.ValueOf(ctx)})
		var err error
		if e := results[1]; !e.IsNil() {
			err = e.Interface().(error)
		}
		return results[0].Interface(), err
	}, nil
}

// GetOrFetch returns the value stored under key, calling fetchFn on a miss.
func (s *SturdycService) GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error) {
	fn, err := fetcher(fetchFn)
	if err != nil {
		return nil, err
	}
	return s.client.GetOrFetch(ctx, key, fn)
}

// Delete removes a single entry.
func (s *SturdycService) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes every entry of a namespace.
func (s *SturdycService) DeleteByPrefix(_ context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// Len returns the number of stored entries.
func (s *SturdycService) Len() int {
	return s.client.Size()
}
