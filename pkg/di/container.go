package di

import (
	"context"
	"errors"
	"fmt"
	"sort"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/viper"

	"github.com/goliatone/go-memoize/cache"
	"github.com/goliatone/go-memoize/memoize"
	"github.com/goliatone/go-memoize/repositorycache"
)

// ErrDuplicateName is returned when a name is registered twice in one container.
var ErrDuplicateName = errors.New("memoized function already registered")

// Kind tells what a registered handle wraps.
type Kind string

const (
	KindFunc       Kind = "func"
	KindDeferred   Kind = "deferred"
	KindShared     Kind = "shared"
	KindRepository Kind = "repository"
)

// Handle is the registry view of one memoized function or repository.
type Handle struct {
	Name  string
	Kind  Kind
	clear func(ctx context.Context) error
	stats func() map[string]memoize.StatsSnapshot
}

// Clear forgets every result the handle caches.
func (h *Handle) Clear(ctx context.Context) error { return h.clear(ctx) }

// Stats returns the handle's counters keyed by function name.
func (h *Handle) Stats() map[string]memoize.StatsSnapshot { return h.stats() }

// Container wires memoized functions to shared infrastructure: the sturdyc service, the
// key serializer, the logger and the Prometheus collectors. Everything it builds is
// registered by name so it can be inspected and cleared together.
type Container struct {
	service    cache.CacheService
	serializer cache.KeySerializer
	settings   Settings
	logger     zerolog.Logger
	metrics    *memoize.PrometheusMetrics
	registry   *xsync.MapOf[string, *Handle]
}

// Option customizes a Container.
type Option func(*Container)

// WithLogger sets the logger handed to everything the container builds.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Container) { c.logger = logger }
}

// WithSerializer replaces the default key serializer used by shared functions.
func WithSerializer(serializer cache.KeySerializer) Option {
	return func(c *Container) { c.serializer = serializer }
}

// WithService replaces the sturdyc service, e.g. with a mock in tests.
func WithService(service cache.CacheService) Option {
	return func(c *Container) { c.service = service }
}

// WithPrometheus records metrics in pm regardless of the metrics settings.
func WithPrometheus(pm *memoize.PrometheusMetrics) Option {
	return func(c *Container) { c.metrics = pm }
}

// NewContainer creates a container from settings.
func NewContainer(settings Settings, opts ...Option) (*Container, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	c := &Container{
		settings: settings,
		logger:   zerolog.Nop(),
		registry: xsync.NewMapOf[string, *Handle](),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.service == nil {
		service, err := cache.NewSharedService(settings.Shared)
		if err != nil {
			return nil, err
		}
		c.service = service
	}
	if c.serializer == nil {
		c.serializer = cache.NewDefaultKeySerializer()
	}
	if c.metrics == nil && settings.Metrics.Enabled {
		c.metrics = memoize.NewPrometheusMetricsWithOpts(memoize.PrometheusMetricsOpts{
			Namespace: settings.Metrics.Namespace,
		})
	}
	return c, nil
}

// NewContainerWithDefaults creates a container from DefaultSettings.
func NewContainerWithDefaults(opts ...Option) (*Container, error) {
	return NewContainer(DefaultSettings(), opts...)
}

// NewContainerFromViper creates a container from the settings held by v.
func NewContainerFromViper(v *viper.Viper, opts ...Option) (*Container, error) {
	settings, err := LoadSettings(v)
	if err != nil {
		return nil, err
	}
	return NewContainer(settings, opts...)
}

// CacheService returns the shared service.
func (c *Container) CacheService() cache.CacheService { return c.service }

// KeySerializer returns the serializer used by shared functions.
func (c *Container) KeySerializer() cache.KeySerializer { return c.serializer }

// Settings returns the settings the container was built with.
func (c *Container) Settings() Settings { return c.settings }

// Metrics returns the Prometheus collectors, or nil when metrics are disabled.
func (c *Container) Metrics() *memoize.PrometheusMetrics { return c.metrics }

// Lookup returns the handle registered under name.
func (c *Container) Lookup(name string) (*Handle, bool) {
	return c.registry.Load(name)
}

// Names returns every registered name in sorted order.
func (c *Container) Names() []string {
	names := make([]string, 0, c.registry.Size())
	c.registry.Range(func(name string, _ *Handle) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Unregister drops name from the registry; the function itself keeps working.
func (c *Container) Unregister(name string) bool {
	_, ok := c.registry.LoadAndDelete(name)
	return ok
}

// Stats returns the counters of every registered function. Repository methods are keyed
// as <name>.<method>.
func (c *Container) Stats() map[string]memoize.StatsSnapshot {
	out := make(map[string]memoize.StatsSnapshot)
	c.registry.Range(func(_ string, h *Handle) bool {
		for name, snap := range h.Stats() {
			out[name] = snap
		}
		return true
	})
	return out
}

// ClearAll clears every registered handle concurrently and joins their errors.
func (c *Container) ClearAll(ctx context.Context) error {
	p := pool.New().WithErrors().WithContext(ctx)
	c.registry.Range(func(_ string, h *Handle) bool {
		p.Go(func(ctx context.Context) error {
			if err := h.Clear(ctx); err != nil {
				return fmt.Errorf("clear %s: %w", h.Name, err)
			}
			return nil
		})
		return true
	})
	return p.Wait()
}

func (c *Container) register(h *Handle) error {
	if _, loaded := c.registry.LoadOrStore(h.Name, h); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicateName, h.Name)
	}
	c.logger.Debug().Str("event", "register").Str("name", h.Name).Str("kind", string(h.Kind)).Msg("memoized function registered")
	return nil
}

func (c *Container) options(name string, extra []memoize.Option) []memoize.Option {
	opts := []memoize.Option{memoize.WithName(name), memoize.WithLogger(c.logger)}
	if c.metrics != nil {
		opts = append(opts, memoize.WithPrometheus(c.metrics))
	}
	return append(opts, extra...)
}

// engineConfig fills the size and lifetime fields cfg leaves at zero from the memoize
// settings. Key shape options stay with each function.
func (c *Container) engineConfig(cfg cache.Config) cache.Config {
	d := c.settings.Memoize
	fill := cache.Settings{UpdateExpire: d.UpdateExpire}
	if cfg.MaxSize == 0 {
		fill.MaxSize = d.MaxSize
	}
	if cfg.MaxAge == 0 {
		fill.MaxAge = d.MaxAge
	}
	if cfg.MaxArgs == 0 {
		fill.MaxArgs = d.MaxArgs
	}
	cfg = fill.Apply(cfg)
	cfg.Logger = c.logger
	return cfg
}

func single(name string, stats func() memoize.StatsSnapshot) func() map[string]memoize.StatsSnapshot {
	return func() map[string]memoize.StatsSnapshot {
		return map[string]memoize.StatsSnapshot{name: stats()}
	}
}

// NewMemoized builds and registers a synchronous memoized function.
func NewMemoized[R any](c *Container, name string, fn func(args ...any) R, cfg cache.Config, opts ...memoize.Option) (*memoize.Func[R], error) {
	f, err := memoize.New(fn, c.engineConfig(cfg), c.options(name, opts)...)
	if err != nil {
		return nil, err
	}
	err = c.register(&Handle{
		Name:  name,
		Kind:  KindFunc,
		clear: func(context.Context) error { f.Clear(); return nil },
		stats: single(name, f.Stats),
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewDeferred builds and registers a memoized function whose concurrent identical calls
// share one computation.
func NewDeferred[R any](c *Container, name string, fn func(ctx context.Context, args ...any) (R, error), cfg cache.Config, opts ...memoize.Option) (*memoize.DeferredFunc[R], error) {
	f, err := memoize.NewDeferred(fn, c.engineConfig(cfg), c.options(name, opts)...)
	if err != nil {
		return nil, err
	}
	err = c.register(&Handle{
		Name:  name,
		Kind:  KindDeferred,
		clear: func(context.Context) error { f.Clear(); return nil },
		stats: single(name, f.Stats),
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewShared builds and registers a function memoized in the container's shared service
// under namespace.
func NewShared[R any](c *Container, namespace string, fn func(ctx context.Context, args ...any) (R, error), opts ...memoize.Option) (*memoize.Shared[R], error) {
	f, err := memoize.NewShared(c.service, namespace, fn, c.serializer, c.options(namespace, opts)...)
	if err != nil {
		return nil, err
	}
	err = c.register(&Handle{
		Name:  namespace,
		Kind:  KindShared,
		clear: f.Purge,
		stats: single(namespace, f.Stats),
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// NewCachedRepository wraps base with memoized reads and registers it under the
// repository's name.
//
// Since Go methods cannot have type parameters, this is provided as a package-level function.
// Example: NewCachedRepository[*User](container, baseUserRepository, repositorycache.DefaultConfig())
func NewCachedRepository[T any](c *Container, base repository.Repository[T], cfg repositorycache.Config, opts ...memoize.Option) (*repositorycache.CachedRepository[T], error) {
	cfg.Logger = c.logger
	var extra []memoize.Option
	if c.metrics != nil {
		extra = append(extra, memoize.WithPrometheus(c.metrics))
	}
	cached, err := repositorycache.New(base, cfg, append(extra, opts...)...)
	if err != nil {
		return nil, err
	}

	name := cached.Name()
	err = c.register(&Handle{
		Name:  name,
		Kind:  KindRepository,
		clear: func(context.Context) error { cached.Invalidate(); return nil },
		stats: func() map[string]memoize.StatsSnapshot {
			out := make(map[string]memoize.StatsSnapshot)
			for method, snap := range cached.Stats() {
				out[name+"."+method] = snap
			}
			return out
		},
	})
	if err != nil {
		return nil, err
	}
	return cached, nil
}
