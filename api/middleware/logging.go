package middleware

import (
	"net/http"
	"time"

	"github.com/angelmondragon/minierp-console/pkg/logger"
	"github.com/angelmondragon/minierp-console/pkg/metrics"
)

// Logging writes one access line per request and feeds the latency
// histogram. Failed requests log at warn; WriteError has already logged the
// cause.
func Logging(logg *logger.Logger, httpMetrics *metrics.HTTPMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			status := rec.statusOrOK()
			elapsed := time.Since(start)
			route := routePattern(r)
			httpMetrics.Observe(r.Method, route, status, elapsed)
			if logg == nil {
				return
			}

			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       route,
				"status":      status,
				"bytes":       rec.bytes,
				"duration_ms": elapsed.Milliseconds(),
				"remote_ip":   clientIP(r),
			})
			if status >= http.StatusBadRequest {
				logg.Warn(ctx, "request served")
				return
			}
			logg.Info(ctx, "request served")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) statusOrOK() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}
