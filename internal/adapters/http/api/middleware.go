package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/axelofwar/be-community-gamification/pkg/metrics"
)

// MetricsMiddleware records request counts, latency and error class for
// endpoint. A panicking handler is answered with 500 and counted.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			if p := recover(); p != nil {
				metrics.RecordErrorByComponent("api", "panic")
				if !rec.wroteHeader {
					writeError(rec, http.StatusInternalServerError, "internal_error", nil)
				}
			}
			observe(endpoint, r.Method, rec.status, time.Since(start))
		}()
		next(rec, r)
	}
}

func observe(endpoint, method string, status int, elapsed time.Duration) {
	ms := float64(elapsed.Nanoseconds()) / 1e6
	code := strconv.Itoa(status)
	metrics.RecordHTTPRequest(endpoint, method, code)
	metrics.RecordHTTPRequestDuration(endpoint, method, code, ms)

	if status < http.StatusBadRequest {
		return
	}
	class, severity := classify(status)
	metrics.RecordErrorByEndpoint(endpoint, method, class)
	metrics.RecordErrorByType(class, severity)
	metrics.RecordErrorLatency("http", class, ms)
}

// classify maps an error status to its metric class and severity.
func classify(status int) (class, severity string) {
	switch {
	case status >= http.StatusInternalServerError:
		return "server_error", "high"
	case status == http.StatusTooManyRequests:
		return "backpressure", "medium"
	case status == http.StatusNotFound:
		return "not_found", "low"
	default:
		return "client_error", "medium"
	}
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.status = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}
