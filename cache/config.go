package cache

import (
	"errors"
	"sort"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/rs/zerolog"
)

// Hooks are invoked outside the cache lock at defined points of an entry's life.
// Statistics and metrics attach here; the engine keeps no global counters.
type Hooks struct {
	// OnAdd runs after a miss inserted key.
	OnAdd func(key Key)
	// OnHit runs after a lookup found key.
	OnHit func(key Key)
	// OnChange runs whenever the stored entries change: insertion, reordering, settlement,
	// removal and expiration.
	OnChange func(key Key)
	// OnEvict runs after the size bound dropped key.
	OnEvict func(key Key)
}

// ChainHooks runs every non-nil hook of hs in order.
func ChainHooks(hs ...Hooks) Hooks {
	var out Hooks
	for _, h := range hs {
		out.OnAdd = chain(out.OnAdd, h.OnAdd)
		out.OnHit = chain(out.OnHit, h.OnHit)
		out.OnChange = chain(out.OnChange, h.OnChange)
		out.OnEvict = chain(out.OnEvict, h.OnEvict)
	}
	return out
}

func chain(a, b func(Key)) func(Key) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(k Key) {
		a(k)
		b(k)
	}
}

func (h Hooks) fire(fn func(Key), key Key) {
	if fn != nil {
		fn(key)
	}
}

// Config controls key matching, size and lifetime of one cache. The zero value is a
// single-slot cache matching every argument with SameValue.
type Config struct {
	// MaxSize bounds the number of entries; the least recently used entry is evicted
	// past it. Zero means 1.
	MaxSize int

	// MaxAge removes an entry this long after it was added (or last hit, with
	// UpdateExpire). Zero disables expiration and negative values are rejected, so
	// entries that expire immediately cannot be configured; use Remove or Clear instead.
	MaxAge time.Duration

	// MaxArgs keeps only the first MaxArgs arguments when building keys. Zero keeps all;
	// 1 selects single-argument keys.
	MaxArgs int

	// UpdateExpire restarts the MaxAge window on every hit.
	UpdateExpire bool

	// Deferred treats cached values as deferred results: expiration starts once they
	// settle and rejected values are removed.
	Deferred bool

	// Component matches (attributes, context) pairs by shallow equality.
	Component bool

	// Serialize matches argument lists by their serialized form. Setting Serializer
	// implies Serialize.
	Serialize  bool
	Serializer KeySerializer

	// MatchesKey replaces equality of whole argument lists; it takes precedence over
	// MatchesArg, which replaces equality of individual arguments. Both run under the cache
	// lock and must not call back into the cache.
	MatchesKey KeyEqual
	MatchesArg ArgEqual

	// TransformArgs rewrites arguments after MaxArgs truncation and before serialization.
	TransformArgs func(args []any) []any

	// OnExpire observes expirations. Returning true puts the entry back and re-arms it.
	OnExpire func(key Key) bool

	Hooks     Hooks
	Scheduler Scheduler
	Logger    zerolog.Logger
}

// DefaultConfig returns the single-slot configuration with a disabled logger and the
// wall clock scheduler.
func DefaultConfig() Config {
	return Config{
		MaxSize:   1,
		Scheduler: WallScheduler(),
		Logger:    zerolog.Nop(),
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.MaxSize, validation.Min(0)),
		validation.Field(&c.MaxAge, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxArgs, validation.Min(0)),
	)
	if err != nil {
		return toConfigError(err)
	}

	if c.Component && c.serializes() {
		return &ConfigError{Field: "Component", Message: "cannot be combined with Serialize"}
	}
	if c.serializes() && (c.MatchesKey != nil || c.MatchesArg != nil) {
		return &ConfigError{Field: "Serializer", Message: "serialized keys compare by text and take no custom equality"}
	}
	if c.Component && c.MatchesKey != nil {
		return &ConfigError{Field: "MatchesKey", Message: "component keys compare halves; use MatchesArg"}
	}
	return nil
}

func (c Config) serializes() bool {
	return c.Serialize || c.Serializer != nil
}

// normalized fills defaults for zero values.
func (c Config) normalized() Config {
	if c.MaxSize == 0 {
		c.MaxSize = 1
	}
	if c.Scheduler == nil {
		c.Scheduler = WallScheduler()
	}
	if c.Serialize && c.Serializer == nil {
		c.Serializer = NewDefaultKeySerializer()
	}
	return c
}

// toConfigError reports the first failing field, sorted by name for stable messages.
func toConfigError(err error) error {
	var errs validation.Errors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return &ConfigError{Field: "Config", Message: err.Error(), Err: err}
	}

	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	first := fields[0]
	return &ConfigError{Field: first, Message: errs[first].Error(), Err: errs[first]}
}

// Settings carries the scalar Config options that can come from a file or environment.
type Settings struct {
	MaxSize      int           `mapstructure:"max_size"`
	MaxAge       time.Duration `mapstructure:"max_age"`
	MaxArgs      int           `mapstructure:"max_args"`
	UpdateExpire bool          `mapstructure:"update_expire"`
	Deferred     bool          `mapstructure:"deferred"`
	Component    bool          `mapstructure:"component"`
	Serialize    bool          `mapstructure:"serialize"`
}

// Apply copies every non-zero setting onto cfg.
func (s Settings) Apply(cfg Config) Config {
	if s.MaxSize != 0 {
		cfg.MaxSize = s.MaxSize
	}
	if s.MaxAge != 0 {
		cfg.MaxAge = s.MaxAge
	}
	if s.MaxArgs != 0 {
		cfg.MaxArgs = s.MaxArgs
	}
	cfg.UpdateExpire = cfg.UpdateExpire || s.UpdateExpire
	cfg.Deferred = cfg.Deferred || s.Deferred
	cfg.Component = cfg.Component || s.Component
	cfg.Serialize = cfg.Serialize || s.Serialize
	return cfg
}
