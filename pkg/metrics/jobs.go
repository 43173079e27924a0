package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// JobMetrics records maintenance job runs.
type JobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

// NewJobMetrics registers the maintenance job metrics on the provided registerer.
func NewJobMetrics(reg prometheus.Registerer) *JobMetrics {
	if reg == nil {
		return &JobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_job_duration_seconds",
		Help:    "Duration of maintenance jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_success_total",
		Help: "Successful maintenance job runs.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_job_failure_total",
		Help: "Failed maintenance job runs.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &JobMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
	}
}

func (j *JobMetrics) ObserveDuration(job string, duration time.Duration) {
	if j == nil || j.duration == nil {
		return
	}
	j.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (j *JobMetrics) IncSuccess(job string) {
	if j == nil || j.success == nil {
		return
	}
	j.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (j *JobMetrics) IncFailure(job string) {
	if j == nil || j.failure == nil {
		return
	}
	j.failure.WithLabelValues(normalizeLabel(job)).Inc()
}
