package memoize

import "github.com/prometheus/client_golang/prometheus"

// MetricsCollector represents a collector of metrics to analyze how (effectively or not) a memoized function is used.
type MetricsCollector interface {
	// SetAmount sets the total number of entries in the cache.
	SetAmount(int)

	// IncHits increments the total number of calls answered from the cache.
	IncHits()

	// IncMisses increments the total number of calls that ran the wrapped function.
	IncMisses()

	// AddEvictions increments the total number of entries dropped by the size bound.
	AddEvictions(int)
}

// PrometheusMetricsOpts represents options for PrometheusMetrics.
type PrometheusMetricsOpts struct {
	// Namespace is a namespace for metrics. It will be prepended to all metric names.
	Namespace string

	// ConstLabels is a set of labels that will be applied to all metrics.
	ConstLabels prometheus.Labels
}

// PrometheusMetrics exports memoization metrics partitioned by the "cache" label.
type PrometheusMetrics struct {
	EntriesAmount  *prometheus.GaugeVec
	HitsTotal      *prometheus.CounterVec
	MissesTotal    *prometheus.CounterVec
	EvictionsTotal *prometheus.CounterVec
}

const cacheLabel = "cache"

// NewPrometheusMetrics creates a new instance of PrometheusMetrics with default options.
func NewPrometheusMetrics() *PrometheusMetrics {
	return NewPrometheusMetricsWithOpts(PrometheusMetricsOpts{})
}

// NewPrometheusMetricsWithOpts creates a new instance of PrometheusMetrics with the provided options.
func NewPrometheusMetricsWithOpts(opts PrometheusMetricsOpts) *PrometheusMetrics {
	labels := []string{cacheLabel}

	return &PrometheusMetrics{
		EntriesAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Name:        "memoize_entries_amount",
			Help:        "Number of entries held by a memoized function.",
			ConstLabels: opts.ConstLabels,
		}, labels),
		HitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "memoize_hits_total",
			Help:        "Number of calls answered from the cache.",
			ConstLabels: opts.ConstLabels,
		}, labels),
		MissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "memoize_misses_total",
			Help:        "Number of calls that ran the wrapped function.",
			ConstLabels: opts.ConstLabels,
		}, labels),
		EvictionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "memoize_evictions_total",
			Help:        "Number of entries evicted by the size bound.",
			ConstLabels: opts.ConstLabels,
		}, labels),
	}
}

// For returns the collector bound to one memoized function.
func (pm *PrometheusMetrics) For(name string) MetricsCollector {
	labels := prometheus.Labels{cacheLabel: name}
	return &boundMetrics{
		amount:    pm.EntriesAmount.With(labels),
		hits:      pm.HitsTotal.With(labels),
		misses:    pm.MissesTotal.With(labels),
		evictions: pm.EvictionsTotal.With(labels),
	}
}

// Collectors returns every underlying collector, for registration in a custom registry.
func (pm *PrometheusMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{pm.EntriesAmount, pm.HitsTotal, pm.MissesTotal, pm.EvictionsTotal}
}

// MustRegister does registration of metrics collector in Prometheus and panics if any error occurs.
func (pm *PrometheusMetrics) MustRegister() {
	prometheus.MustRegister(pm.Collectors()...)
}

// Unregister cancels registration of metrics collector in Prometheus.
func (pm *PrometheusMetrics) Unregister() {
	for _, c := range pm.Collectors() {
		prometheus.Unregister(c)
	}
}

type boundMetrics struct {
	amount    prometheus.Gauge
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
}

func (m *boundMetrics) SetAmount(n int)    { m.amount.Set(float64(n)) }
func (m *boundMetrics) IncHits()           { m.hits.Inc() }
func (m *boundMetrics) IncMisses()         { m.misses.Inc() }
func (m *boundMetrics) AddEvictions(n int) { m.evictions.Add(float64(n)) }

type disabledMetrics struct{}

func (disabledMetrics) SetAmount(int)    {}
func (disabledMetrics) IncHits()         {}
func (disabledMetrics) IncMisses()       {}
func (disabledMetrics) AddEvictions(int) {}

var disabledMetricsCollector = disabledMetrics{}
