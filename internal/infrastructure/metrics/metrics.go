// Package metrics exports Prometheus metrics for process transitions,
// effect execution and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

const namespace = "approval"

// Recorder owns a registry with every metric of the application
type Recorder struct {
	registry *prometheus.Registry

	// transitionsTotal counts step actions by action and outcome
	// (resulting process status, or the error kind)
	transitionsTotal *prometheus.CounterVec

	processesCreatedTotal prometheus.Counter

	// effectsTotal counts effect handler runs; status: success, error
	effectsTotal *prometheus.CounterVec

	httpDuration *prometheus.HistogramVec
}

// New creates a Recorder. Go runtime and process collectors are included
// when withRuntime is true.
func New(withRuntime bool) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transitions_total",
				Help:      "Total number of step actions by action and outcome",
			},
			[]string{"action", "outcome"},
		),
		processesCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processes_created_total",
				Help:      "Total number of processes created",
			},
		),
		effectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "effects_total",
				Help:      "Total number of effect handler executions",
			},
			[]string{"type", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Histogram of HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"method", "route", "status"},
		),
	}

	r.registry.MustRegister(
		r.transitionsTotal,
		r.processesCreatedTotal,
		r.effectsTotal,
		r.httpDuration,
	)
	if withRuntime {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return r
}

// ProcessCreated records a created process
func (r *Recorder) ProcessCreated() {
	r.processesCreatedTotal.Inc()
}

// StepActed records a step action and its outcome
func (r *Recorder) StepActed(action, outcome string) {
	r.transitionsTotal.WithLabelValues(action, outcome).Inc()
}

// EffectResult records one effect handler execution. Its signature matches
// the dispatcher's result hook.
func (r *Recorder) EffectResult(evt *event.Event, handlerName string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.effectsTotal.WithLabelValues(evt.Type.String(), status).Inc()
}

// GinMiddleware observes request durations by route template
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}
