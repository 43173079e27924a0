package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records calls made to the remote Mini ERP backend.
type GatewayMetrics struct {
	duration *prometheus.HistogramVec
	requests *prometheus.CounterVec
}

// NewGatewayMetrics registers the backend call metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Duration of backend API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_requests_total",
		Help: "Backend API calls by operation and HTTP status (0 for transport failures).",
	}, []string{"operation", "status"})
	reg.MustRegister(duration, requests)
	return &GatewayMetrics{
		duration: duration,
		requests: requests,
	}
}

// Observe records one completed backend call.
func (g *GatewayMetrics) Observe(operation string, status int, duration time.Duration) {
	if g == nil || g.duration == nil || g.requests == nil {
		return
	}
	op := normalizeLabel(operation)
	g.duration.WithLabelValues(op).Observe(duration.Seconds())
	g.requests.WithLabelValues(op, strconv.Itoa(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
