package middleware

import (
	"net/http"
	"time"

	"vizspace/internal/auth"

	"github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request. Like Instrument it wraps the mux.
func RequestLogger(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newStatusRecorder(w)

			next.ServeHTTP(rw, r)

			entry := logger.WithFields(logrus.Fields{
				"method":      r.Method,
				"route":       routeLabel(r),
				"path":        r.URL.Path,
				"status":      rw.status,
				"bytes":       rw.bytesWritten,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			switch {
			case rw.status >= http.StatusInternalServerError:
				entry.Error("request completed")
			case rw.status >= http.StatusBadRequest:
				entry.Warn("request completed")
			default:
				entry.Info("request completed")
			}
		})
	}
}

// Recoverer turns a handler panic into a 500 and logs it.
func Recoverer(logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.WithFields(logrus.Fields{
						"panic": rec,
						"path":  r.URL.Path,
					}).Error("handler panicked")
					auth.WriteJSONError(w, http.StatusInternalServerError, "internal error", "server_error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
