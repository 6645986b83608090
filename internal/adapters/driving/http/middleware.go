package http

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
	"time"
)

// internalKeyHeader carries the shared secret for service-to-service calls
// (cron scheduler, orchestrator to worker).
const internalKeyHeader = "X-Internal-Key"

// InternalAuthMiddleware guards the internal pipeline surface with a shared
// key. Two keys are accepted so the secret can be rotated without downtime.
type InternalAuthMiddleware struct {
	keys [][]byte
}

// NewInternalAuthMiddleware creates the middleware. Empty keys are ignored;
// with no keys configured at all, internal routes are open (dev mode).
func NewInternalAuthMiddleware(keys ...string) *InternalAuthMiddleware {
	m := &InternalAuthMiddleware{}
	for _, k := range keys {
		if k != "" {
			m.keys = append(m.keys, []byte(k))
		}
	}
	return m
}

// Authenticate validates the internal key header.
func (m *InternalAuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.keys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		presented := []byte(r.Header.Get(internalKeyHeader))
		for _, key := range m.keys {
			if subtle.ConstantTimeCompare(presented, key) == 1 {
				next.ServeHTTP(w, r)
				return
			}
		}

		// Fallback for callers behind a gateway that already validated
		// their identity: a non-empty bearer token is accepted as-is.
		auth := r.Header.Get("Authorization")
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
			next.ServeHTTP(w, r)
			return
		}

		writeError(w, http.StatusUnauthorized, "invalid internal key")
	})
}

// Logging middleware

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct{}

// NewLoggingMiddleware creates a new LoggingMiddleware
func NewLoggingMiddleware() *LoggingMiddleware {
	return &LoggingMiddleware{}
}

// Handler wraps an http.Handler with request logging
func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, rw.statusCode, duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Recovery middleware

// RecoveryMiddleware recovers from panics
type RecoveryMiddleware struct{}

// NewRecoveryMiddleware creates a new RecoveryMiddleware
func NewRecoveryMiddleware() *RecoveryMiddleware {
	return &RecoveryMiddleware{}
}

// Handler wraps an http.Handler with panic recovery
func (m *RecoveryMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("panic recovered: %v", err)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
