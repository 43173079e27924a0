package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records requests served by the console API.
type HTTPMetrics struct {
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		return &HTTPMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_http_request_duration_seconds",
		Help:    "Console API request latency by route pattern and status class.",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"method", "route", "class"})
	reg.MustRegister(duration)
	return &HTTPMetrics{duration: duration}
}

// Observe takes the chi route pattern, never the raw path, to keep label
// cardinality bounded.
func (h *HTTPMetrics) Observe(method, route string, status int, duration time.Duration) {
	if h == nil || h.duration == nil {
		return
	}
	h.duration.WithLabelValues(method, normalizeLabel(route), statusClass(status)).Observe(duration.Seconds())
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return strconv.Itoa(status/100) + "xx"
}
