package middleware

import (
	"net/http"
	"time"

	"lora-osmnotes/gateway/internal/logging"
)

type respLogger struct {
	http.ResponseWriter
	status int
}

func (l *respLogger) WriteHeader(code int) {
	l.status = code
	l.ResponseWriter.WriteHeader(code)
}

// Logging records one structured line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lw := &respLogger{ResponseWriter: w, status: http.StatusOK}

		start := time.Now()
		next.ServeHTTP(lw, r)
		dur := time.Since(start)

		logging.GetLogger().Infow("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", lw.status,
			"duration", dur.String(),
			"request_id", GetRequestID(r.Context()),
		)
	})
}
