package memoize

import (
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Option customizes a memoized function.
type Option func(*options)

type options struct {
	name    string
	logger  *zerolog.Logger
	metrics MetricsCollector
	prom    *PrometheusMetrics
	retry   func() backoff.BackOff
}

func buildOptions(opts []Option, fallbackName string) options {
	o := options{metrics: disabledMetricsCollector}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.name == "" {
		o.name = fallbackName
	}
	if o.prom != nil {
		o.metrics = o.prom.For(o.name)
	}
	return o
}

// WithName sets the name used in logs and metrics. It defaults to the wrapped
// function's symbol name.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

// WithLogger replaces the logger from cache.Config.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithMetrics reports hits, misses, evictions and size to collector.
func WithMetrics(collector MetricsCollector) Option {
	return func(o *options) {
		if collector != nil {
			o.metrics = collector
		}
	}
}

// WithPrometheus reports to pm under the function's name.
func WithPrometheus(pm *PrometheusMetrics) Option {
	return func(o *options) {
		o.prom = pm
	}
}

// WithRetry retries failing computations of a DeferredFunc or Shared function with the
// back-off returned by policy before giving up. A fresh back-off is requested for every
// computation.
func WithRetry(policy func() backoff.BackOff) Option {
	return func(o *options) {
		o.retry = policy
	}
}
