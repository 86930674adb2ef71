package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/maxmusicschool/schoolauth"
	"github.com/maxmusicschool/schoolauth/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// RequestLogger writes one structured access-log line per request.
func RequestLogger(logger schoolauth.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"bytes", rec.bytes,
				"duration", time.Since(start),
				"ip", schoolauth.ClientIPFromContext(r.Context()),
			}
			if id, ok := schoolauth.IdentityFromContext(r.Context()); ok {
				args = append(args, "user_id", id.UserID)
			}
			if rec.status >= http.StatusInternalServerError {
				logger.Warn(r.Context(), "request", args...)
				return
			}
			logger.Info(r.Context(), "request", args...)
		})
	}
}

// Recover turns a handler panic into a generic 500 response.
func Recover(logger schoolauth.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger).With("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if v := recover(); v != nil {
					if v == http.ErrAbortHandler {
						panic(v)
					}
					logger.Error(r.Context(), "handler panic", "panic", v, "stack", string(debug.Stack()))
					writeInternal(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Chain wraps h so that the first middleware is outermost.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
