package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// unmatchedRoute — метка для запросов мимо маршрутов, иначе каждый URL даёт новую серию
const unmatchedRoute = "unmatched"

// PrometheusMiddleware считает запросы REST API:
// <ns>_http_request_duration_seconds{method,route,code},
// <ns>_http_requests_inflight и <ns>_http_request_errors_total{method,route,code}.
type PrometheusMiddleware struct {
	duration *prometheus.HistogramVec
	inflight prometheus.Gauge
	errors   *prometheus.CounterVec
}

// NewPrometheusMiddleware создаёт метрики с пространством имён namespace.
// При reg == nil метрики считаются, но никуда не регистрируются.
func NewPrometheusMiddleware(namespace string, reg prometheus.Registerer) *PrometheusMiddleware {
	labels := []string{"method", "route", "code"}
	pm := &PrometheusMiddleware{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Время обработки запроса.",
			Buckets:   prometheus.ExponentialBuckets(0.002, 2.5, 9),
		}, labels),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_inflight",
			Help:      "Запросов в обработке.",
		}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_errors_total",
			Help:      "Ответов с кодом 4xx или 5xx.",
		}, labels),
	}
	if reg != nil {
		reg.MustRegister(pm.duration, pm.inflight, pm.errors)
	}
	return pm
}

func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		pm.inflight.Inc()
		start := time.Now()
		defer func() {
			pm.inflight.Dec()

			route := c.FullPath()
			if route == "" {
				route = unmatchedRoute
			}
			code := c.Writer.Status()
			lv := []string{c.Request.Method, route, strconv.Itoa(code)}

			pm.duration.WithLabelValues(lv...).Observe(time.Since(start).Seconds())
			if code >= 400 {
				pm.errors.WithLabelValues(lv...).Inc()
			}
		}()
		c.Next()
	}
}

// RegisterMetricsEndpoint вешает GET /metrics. g == nil — глобальный регистр.
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine, g prometheus.Gatherer) {
	h := promhttp.Handler()
	if g != nil {
		h = promhttp.HandlerFor(g, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError})
	}
	r.GET("/metrics", gin.WrapH(h))
}
