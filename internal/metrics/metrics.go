// Package metrics wraps Prometheus collectors for the selection engine:
// cart mutation outcomes, queue depth and stale-response suppression.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector provides engine metrics collection.
type Collector struct {
	registry *prometheus.Registry

	mutationsTotal   *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
	queueDepth       prometheus.Gauge
	staleDropped     prometheus.Counter
	pushesTotal      *prometheus.CounterVec
	weekSwitches     prometheus.Counter
}

// NewCollector creates the engine metrics collector. Namespace defaults to
// "menuselect".
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "menuselect"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.mutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations by operation and result",
		},
		[]string{"op", "result"},
	)

	c.mutationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cart",
			Name:      "mutation_duration_seconds",
			Help:      "Cart mutation latency",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "mutation_queue_depth",
		Help:      "Mutations queued or in flight",
	})

	c.staleDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_responses_dropped_total",
		Help:      "Async results discarded by the week-token guard",
	})

	c.pushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscription_pushes_total",
			Help:      "Data-layer pushes by kind and disposition",
		},
		[]string{"kind", "disposition"},
	)

	c.weekSwitches = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "week_switches_total",
		Help:      "Active week changes",
	})

	c.registry.MustRegister(
		c.mutationsTotal,
		c.mutationDuration,
		c.queueDepth,
		c.staleDropped,
		c.pushesTotal,
		c.weekSwitches,
	)
	return c
}

// ObserveMutation records one cart mutation outcome.
func (c *Collector) ObserveMutation(op, result string, dur time.Duration) {
	if c == nil {
		return
	}
	c.mutationsTotal.WithLabelValues(op, result).Inc()
	c.mutationDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// QueueEnter notes a mutation entering the per-cart queue.
func (c *Collector) QueueEnter() {
	if c == nil {
		return
	}
	c.queueDepth.Inc()
}

// QueueLeave notes a mutation leaving the per-cart queue.
func (c *Collector) QueueLeave() {
	if c == nil {
		return
	}
	c.queueDepth.Dec()
}

// StaleDropped counts one suppressed stale response.
func (c *Collector) StaleDropped() {
	if c == nil {
		return
	}
	c.staleDropped.Inc()
}

// ObservePush records one data-layer push and its disposition
// (applied/dropped).
func (c *Collector) ObservePush(kind, disposition string) {
	if c == nil {
		return
	}
	c.pushesTotal.WithLabelValues(kind, disposition).Inc()
}

// WeekSwitched counts an active-week change.
func (c *Collector) WeekSwitched() {
	if c == nil {
		return
	}
	c.weekSwitches.Inc()
}

// Handler exposes the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
