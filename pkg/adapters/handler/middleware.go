package handler

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// responseWriter captures the status code written by the wrapped handler
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs every request once it is served. Server errors are
// logged as errors, client errors as warnings and the rest at debug level,
// except redirects which are the main traffic of the service.
func RequestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r)

			var event *zerolog.Event
			switch {
			case rw.status >= http.StatusInternalServerError:
				event = logger.Error()
			case rw.status >= http.StatusBadRequest:
				event = logger.Warn()
			case rw.status >= http.StatusMultipleChoices:
				event = logger.Info()
			default:
				event = logger.Debug()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.status).
				Dur("duration", time.Since(start)).
				Str("remote_addr", ClientIP(r)).
				Msg("request")
		})
	}
}
