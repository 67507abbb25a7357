// Package metrics exposes Prometheus counters for message processing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagebot"

// Collector owns its registry so tests and multiple binaries never collide on registration.
// A nil *Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	MessagesReceived  prometheus.Counter
	MessagesProcessed *prometheus.CounterVec
	ProcessDuration   *prometheus.HistogramVec
	Duplicates        prometheus.Counter
	Actions           *prometheus.CounterVec
	AICompletions     *prometheus.CounterVec
	AIDuration        prometheus.Histogram
	Deliveries        *prometheus.CounterVec
	ConfigErrors      *prometheus.CounterVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		registry: reg,
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Webhook events accepted and enqueued",
		}),
		MessagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Inbound messages processed, by outcome",
		}, []string{"processed_by", "status"}),
		ProcessDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_process_duration_seconds",
			Help:      "Time spent processing one inbound message",
			Buckets:   prometheus.DefBuckets,
		}, []string{"processed_by"}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicate_deliveries_total",
			Help:      "Inbound deliveries skipped because their mid was already handled",
		}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Executed actions, by type and status",
		}, []string{"type", "status"}),
		AICompletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ai_completions_total",
			Help:      "AI completion calls, by model and status",
		}, []string{"model", "status"}),
		AIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ai_completion_duration_seconds",
			Help:      "Latency of AI completion calls",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Outbound Send API calls, by status",
		}, []string{"status"}),
		ConfigErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_errors_total",
			Help:      "Scenario configuration errors met at runtime",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.MessagesReceived,
		c.MessagesProcessed,
		c.ProcessDuration,
		c.Duplicates,
		c.Actions,
		c.AICompletions,
		c.AIDuration,
		c.Deliveries,
		c.ConfigErrors,
	)

	return c
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) MessageReceived() {
	if c == nil {
		return
	}

	c.MessagesReceived.Inc()
}

func (c *Collector) MessageProcessed(processedBy, status string, elapsed time.Duration) {
	if c == nil {
		return
	}

	c.MessagesProcessed.WithLabelValues(processedBy, status).Inc()
	c.ProcessDuration.WithLabelValues(processedBy).Observe(elapsed.Seconds())
}

func (c *Collector) Duplicate() {
	if c == nil {
		return
	}

	c.Duplicates.Inc()
}

func (c *Collector) Action(actionType, status string) {
	if c == nil {
		return
	}

	c.Actions.WithLabelValues(actionType, status).Inc()
}

func (c *Collector) AICompletion(model, status string, elapsed time.Duration) {
	if c == nil {
		return
	}

	c.AICompletions.WithLabelValues(model, status).Inc()
	c.AIDuration.Observe(elapsed.Seconds())
}

func (c *Collector) Delivery(status string) {
	if c == nil {
		return
	}

	c.Deliveries.WithLabelValues(status).Inc()
}

func (c *Collector) ConfigError(kind string) {
	if c == nil {
		return
	}

	c.ConfigErrors.WithLabelValues(kind).Inc()
}
