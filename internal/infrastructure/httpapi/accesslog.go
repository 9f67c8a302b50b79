package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// captureWriter wraps the original ResponseWriter and records status & bytes
type captureWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(b)
	if n > 0 {
		cw.bytes += n
	}
	return n, err
}

// AccessLog writes a request.start line when a request arrives and a request.end line with
// status, elapsed and bytes written once it is served. Requests slower than slow end at warn
// level; zero disables that.
func AccessLog(logger *slog.Logger, slow time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			reqID := middleware.GetReqID(r.Context())
			start := time.Now()

			logger.LogAttrs(r.Context(), slog.LevelInfo, "request.start",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("ip", r.RemoteAddr),
			)

			next.ServeHTTP(cw, r)

			elapsed := time.Since(start)
			level := slog.LevelInfo
			if slow > 0 && elapsed >= slow {
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "request.end",
				slog.String("request_id", reqID),
				slog.Int("status", cw.status),
				slog.Duration("elapsed", elapsed),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("bytes", cw.bytes),
			)
		})
	}
}
