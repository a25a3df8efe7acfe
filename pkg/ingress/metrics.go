package ingress

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metricSet holds the request-level instrumentation exposed at /metrics
// (spec §6's "Configuration" knob list names worker concurrency, visibility
// timeout, etc. as operational; request latency/volume is the ingress
// layer's own operational surface).
type metricSet struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	registry *prometheus.Registry
}

func newMetricSet() *metricSet {
	reg := prometheus.NewRegistry()
	m := &metricSet{
		requests: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "conductor_ingress_requests_total",
			Help: "Total HTTP requests handled by the ingress API, by route and status.",
		}, []string{"route", "method", "status"}),
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conductor_ingress_request_duration_seconds",
			Help:    "Ingress API request latency in seconds, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
		registry: reg,
	}
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return m
}

func (m *metricSet) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func (m *metricSet) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
