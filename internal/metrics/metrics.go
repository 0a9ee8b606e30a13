package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so several instances can coexist in
// tests.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	requestTiming *prometheus.SummaryVec
	errorCounter  *prometheus.CounterVec
	eventCounter  *prometheus.CounterVec
}

func New(appID string) *Metrics {
	r := strings.NewReplacer(
		"-", "_",
		" ", "_")
	namespace := r.Replace(appID)

	m := &Metrics{
		namespace: namespace,
		registry:  prometheus.NewRegistry(),
		requestTiming: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Namespace:  namespace,
				Name:       "http_request_seconds",
				Help:       "HTTP request latency by route.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"route", "method"},
		),
		errorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "API errors by error code.",
			},
			[]string{"code"},
		),
		eventCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "view_events_total",
				Help:      "Events emitted by mounted views.",
			},
			[]string{"type"},
		),
	}

	m.registry.MustRegister(
		m.requestTiming,
		m.errorCounter,
		m.eventCounter,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) ErrorCounter(code string) {
	m.errorCounter.
		WithLabelValues(code).
		Inc()
}

func (m *Metrics) Event(eventType string) {
	m.eventCounter.
		WithLabelValues(eventType).
		Inc()
}

func (m *Metrics) Timing(start time.Time, route, method string) {
	m.requestTiming.
		WithLabelValues(route, method).
		Observe(time.Since(start).Seconds())
}

// GaugeFunc exposes a value sampled at scrape time.
func (m *Metrics) GaugeFunc(name, help string, fn func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		fn,
	))
}

// Middleware times every matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Timing(start, route, c.Request.Method)
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
