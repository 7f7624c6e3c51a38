// Package metrics provides Prometheus instrumentation for the depository
// and the event emitter. A Collector satisfies both depository.Recorder and
// event.Recorder, and owns its registry so several applications can run in
// one process.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/titon/framework/depository"
	"github.com/titon/framework/event"
)

// DefaultNamespace is used when NewCollector receives an empty namespace.
const DefaultNamespace = "titon"

var (
	_ depository.Recorder = (*Collector)(nil)
	_ event.Recorder      = (*Collector)(nil)
)

// Collector records container and emitter metrics.
type Collector struct {
	registry *prometheus.Registry

	// Depository metrics
	registrations      *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	resolutionDuration *prometheus.HistogramVec

	// Emitter metrics
	emits         *prometheus.CounterVec
	emitDuration  *prometheus.HistogramVec
	emitObservers *prometheus.HistogramVec
	stopped       *prometheus.CounterVec
	observerCalls *prometheus.CounterVec
}

// NewCollector creates a collector registering its metrics under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
	}

	c.registrations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "depository",
			Name:      "registrations_total",
			Help:      "Total number of registrations by kind (singleton, transient, reference, alias, instance)",
		},
		[]string{"kind"},
	)

	c.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "depository",
			Name:      "resolutions_total",
			Help:      "Total number of Make calls by result",
		},
		[]string{"result"},
	)

	c.resolutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "depository",
			Name:      "resolution_duration_seconds",
			Help:      "Time taken to make an item",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		},
		[]string{"result"},
	)

	c.emits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emits_total",
			Help:      "Total number of emitted events",
		},
		[]string{"event", "result"},
	)

	c.emitDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "emit_duration_seconds",
			Help:      "Time taken to notify every observer of an event",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10), // 100µs to ~26s
		},
		[]string{"event"},
	)

	c.emitObservers = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "observers_per_emit",
			Help:      "Number of observers in the call stack of an event",
			Buckets:   prometheus.LinearBuckets(0, 5, 10),
		},
		[]string{"event"},
	)

	c.stopped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "stopped_total",
			Help:      "Total number of events stopped by an observer",
		},
		[]string{"event"},
	)

	c.observerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "observer_calls_total",
			Help:      "Total number of observer invocations",
		},
		[]string{"event", "mode", "result"},
	)

	c.registry.MustRegister(
		c.registrations,
		c.resolutions,
		c.resolutionDuration,
		c.emits,
		c.emitDuration,
		c.emitObservers,
		c.stopped,
		c.observerCalls,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveRegistration implements depository.Recorder.
func (c *Collector) ObserveRegistration(kind string) {
	c.registrations.WithLabelValues(kind).Inc()
}

// ObserveResolution implements depository.Recorder.
func (c *Collector) ObserveResolution(duration time.Duration, err error) {
	res := result(err)
	c.resolutions.WithLabelValues(res).Inc()
	c.resolutionDuration.WithLabelValues(res).Observe(duration.Seconds())
}

// ObserveEmit implements event.Recorder.
func (c *Collector) ObserveEmit(ev string, observers int, stopped bool, duration time.Duration, err error) {
	c.emits.WithLabelValues(ev, result(err)).Inc()
	c.emitDuration.WithLabelValues(ev).Observe(duration.Seconds())
	c.emitObservers.WithLabelValues(ev).Observe(float64(observers))
	if stopped {
		c.stopped.WithLabelValues(ev).Inc()
	}
}

// ObserveObserver implements event.Recorder.
func (c *Collector) ObserveObserver(ev string, async bool, err error) {
	mode := event.ModeSync
	if async {
		mode = event.ModeAsync
	}
	c.observerCalls.WithLabelValues(ev, mode.String(), result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
