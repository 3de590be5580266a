package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-memoize/internal/cacheinfra"
)

// FetchFn is the function signature CacheService expects when fetching from the source of truth.
type FetchFn[T any] func(ctx context.Context) (T, error)

// CacheService is a string keyed read-through cache shared between memoized functions.
// Unlike Cache it is sharded and safe for many writers, at the price of exact-key lookup
// only: callers address it with serialized keys.
type CacheService interface {
	GetOrFetch(ctx context.Context, key string, fetchFn any) (any, error)
	Delete(ctx context.Context, key string) error
	DeleteByPrefix(ctx context.Context, prefix string) error
	Len() int
}

// GetOrFetch is a type-safe wrapper function that provides generic support for CacheService.
func GetOrFetch[T any](ctx context.Context, service CacheService, key string, fetchFn FetchFn[T]) (T, error) {
	result, err := service.GetOrFetch(ctx, key, (func(context.Context) (T, error))(fetchFn))
	if err != nil {
		var zero T
		return zero, err
	}
	if result == nil {
		var zero T
		return zero, nil
	}
	value, ok := result.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: got %T", ErrInvalidResultType, result)
	}
	return value, nil
}

// SharedConfig configures the sturdyc backed CacheService.
type SharedConfig struct {
	Capacity             int                 `mapstructure:"capacity"`
	NumShards            int                 `mapstructure:"num_shards"`
	TTL                  time.Duration       `mapstructure:"ttl"`
	EvictionPercentage   int                 `mapstructure:"eviction_percentage"`
	EarlyRefresh         *EarlyRefreshConfig `mapstructure:"early_refresh"`
	MissingRecordStorage bool                `mapstructure:"missing_record_storage"`
	EvictionInterval     time.Duration       `mapstructure:"eviction_interval"`
}

// EarlyRefreshConfig mirrors the underlying sturdyc early refresh options.
type EarlyRefreshConfig struct {
	MinAsyncRefreshTime time.Duration `mapstructure:"min_async_refresh_time"`
	MaxAsyncRefreshTime time.Duration `mapstructure:"max_async_refresh_time"`
	SyncRefreshTime     time.Duration `mapstructure:"sync_refresh_time"`
	RetryBaseDelay      time.Duration `mapstructure:"retry_base_delay"`
}

// DefaultSharedConfig returns a SharedConfig populated with sensible defaults.
func DefaultSharedConfig() SharedConfig {
	return sharedFromInternal(cacheinfra.DefaultConfig())
}

// Validate checks whether the configuration values are valid.
func (c SharedConfig) Validate() error {
	if err := c.toInternal().Validate(); err != nil {
		return toConfigError(err)
	}
	return nil
}

// NewSharedService constructs the sturdyc backed CacheService.
func NewSharedService(cfg SharedConfig) (CacheService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cacheinfra.NewSturdycService(cfg.toInternal())
}

func (c SharedConfig) toInternal() cacheinfra.Config {
	out := cacheinfra.Config{
		Capacity:             c.Capacity,
		NumShards:            c.NumShards,
		TTL:                  c.TTL,
		EvictionPercentage:   c.EvictionPercentage,
		MissingRecordStorage: c.MissingRecordStorage,
		EvictionInterval:     c.EvictionInterval,
	}
	if e := c.EarlyRefresh; e != nil {
		out.EarlyRefresh = &cacheinfra.EarlyRefreshConfig{
			MinAsyncRefreshTime: e.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: e.MaxAsyncRefreshTime,
			SyncRefreshTime:     e.SyncRefreshTime,
			RetryBaseDelay:      e.RetryBaseDelay,
		}
	}
	return out
}

func sharedFromInternal(cfg cacheinfra.Config) SharedConfig {
	out := SharedConfig{
		Capacity:             cfg.Capacity,
		NumShards:            cfg.NumShards,
		TTL:                  cfg.TTL,
		EvictionPercentage:   cfg.EvictionPercentage,
		MissingRecordStorage: cfg.MissingRecordStorage,
		EvictionInterval:     cfg.EvictionInterval,
	}
	if e := cfg.EarlyRefresh; e != nil {
		out.EarlyRefresh = &EarlyRefreshConfig{
			MinAsyncRefreshTime: e.MinAsyncRefreshTime,
			MaxAsyncRefreshTime: e.MaxAsyncRefreshTime,
			SyncRefreshTime:     e.SyncRefreshTime,
			RetryBaseDelay:      e.RetryBaseDelay,
		}
	}
	return out
}
