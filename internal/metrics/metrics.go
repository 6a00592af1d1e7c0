// Package metrics exposes pond counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pond"

// Collector owns its own registry, so tests can build as many as they like.
// All methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	Interactions       *prometheus.CounterVec
	VowsStored         prometheus.Counter
	Reflections        prometheus.Counter
	DepthSubmissions   *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	HTTPRequests       *prometheus.CounterVec
}

// NewCollector registers every pond metric on a fresh registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		Interactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interactions_total",
			Help:      "Asks answered, by backend.",
		}, []string{"backend"}),
		VowsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vows_stored_total",
			Help:      "New vows stored.",
		}),
		Reflections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reflections_total",
			Help:      "Reflections recorded.",
		}),
		DepthSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "depth_submissions_total",
			Help:      "Depth packet submissions, by result.",
		}, []string{"result"}),
		GenerationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Time spent obtaining a reply from a backend.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		}, []string{"backend"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests, by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
	}
	c.registry.MustRegister(
		c.Interactions,
		c.VowsStored,
		c.Reflections,
		c.DepthSubmissions,
		c.GenerationDuration,
		c.HTTPRequests,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Handler serves the registry for /metrics.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Interaction records one answered ask and how long its backend took.
func (c *Collector) Interaction(backend string, took time.Duration) {
	if c == nil {
		return
	}
	c.Interactions.WithLabelValues(backend).Inc()
	c.GenerationDuration.WithLabelValues(backend).Observe(took.Seconds())
}

// VowStored counts a newly stored vow.
func (c *Collector) VowStored() {
	if c == nil {
		return
	}
	c.VowsStored.Inc()
}

// ReflectionRecorded counts a recorded reflection.
func (c *Collector) ReflectionRecorded() {
	if c == nil {
		return
	}
	c.Reflections.Inc()
}

// DepthSubmitted counts a depth submission outcome.
func (c *Collector) DepthSubmitted(result string) {
	if c == nil {
		return
	}
	c.DepthSubmissions.WithLabelValues(result).Inc()
}

// HTTPRequest counts a served request.
func (c *Collector) HTTPRequest(method, route string, status int) {
	if c == nil {
		return
	}
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
