package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Gurpartap/jobagent/internal/httpapi"
)

// requestLoggingMiddleware writes one "http request" record per request. The
// job correlation ids lead the record: run_id when the path addresses a
// delegated run, and thread_id once the invocation handler has resolved the
// conversation. Server errors log at warn.
func requestLoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			runID := runIDFromPath(r.URL.Path)
			recorder := &responseRecorder{ResponseWriter: w}

			next.ServeHTTP(recorder, r)

			attrs := correlationAttrs(runID, recorder.Header().Get(httpapi.HeaderThreadID))
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", recorder.code()),
				slog.Int("bytes", recorder.written),
				slog.Int64("duration_ms", time.Since(started).Milliseconds()),
			)

			level := slog.LevelInfo
			if recorder.code() >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "http request", attrs...)
		})
	}
}

func correlationAttrs(runID, threadID string) []slog.Attr {
	attrs := make([]slog.Attr, 0, 7)
	if runID != "" {
		attrs = append(attrs, slog.String("run_id", runID))
	}
	if threadID != "" {
		attrs = append(attrs, slog.String("thread_id", threadID))
	}
	return attrs
}

// runIDFromPath returns the run id of /v1/runs/{run_id}/... paths.
func runIDFromPath(path string) string {
	rest, ok := strings.CutPrefix(path, "/v1/runs/")
	if !ok {
		return ""
	}
	runID, _, _ := strings.Cut(rest, "/")
	return runID
}

// responseRecorder keeps the status and body size the handler produced.
type responseRecorder struct {
	http.ResponseWriter
	status  int
	written int
}

func (w *responseRecorder) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *responseRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(p)
	w.written += n
	return n, err
}

func (w *responseRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}
