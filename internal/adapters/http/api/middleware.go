package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/okian/pitchvision/pkg/metrics"
)

// MetricsMiddleware wraps HTTP handlers to record request counts, latency and error kinds.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		durationMs := float64(time.Since(start).Microseconds()) / 1000
		status := strconv.Itoa(rec.status)
		metrics.RecordHTTPRequest(endpoint, r.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, r.Method, status, durationMs)

		if rec.status >= http.StatusBadRequest {
			code := rec.code
			if code == "" {
				code = codeForStatus(rec.status)
			}
			metrics.RecordErrorByEndpoint(endpoint, r.Method, code)
			metrics.RecordErrorByType(code, severity(code))
		}
	}
}

// codeForStatus names failures that bypassed writeError, such as http.NotFound.
func codeForStatus(status int) string {
	switch {
	case status == http.StatusNotFound:
		return "not_found"
	case status >= http.StatusInternalServerError:
		return "internal_error"
	default:
		return "bad_request"
	}
}

func severity(code string) string {
	switch code {
	case "internal_error", "inference_failed":
		return "high"
	case "unavailable", "timeout":
		return "medium"
	default:
		return "low"
	}
}

// statusRecorder captures the status and error code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	code   string
}

func (rw *statusRecorder) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController and MaxBytesReader reach the underlying writer.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
