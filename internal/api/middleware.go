package api

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shehryarbajwa/whatsapp-sender/internal/ratelimit"
)

// allowRunStart spends one of the client's run-start tokens, answering
// 429 when none is left. A nil limiter allows everything.
func allowRunStart(limiter *ratelimit.Limiter, w http.ResponseWriter, r *http.Request) bool {
	if limiter == nil {
		return true
	}
	clientID := getClientID(r)

	if !limiter.Allow(clientID) {
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.PerHour()))
		w.Header().Set("X-RateLimit-Remaining", "0")
		writeError(w, http.StatusTooManyRequests,
			fmt.Sprintf("Rate limit exceeded. Maximum %d runs per hour.", limiter.PerHour()))
		return false
	}

	tokens := limiter.Tokens(clientID)
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.PerHour()))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(tokens)))
	return true
}

// getClientID identifies the caller by remote host
func getClientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// loggingMiddleware logs every request with its status and duration
func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			// the form polls GET endpoints
			log := logger.Info
			if r.Method == http.MethodGet && rec.status < 400 {
				log = logger.Debug
			}
			log("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", getClientID(r)))
		})
	}
}
