package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a limiter allowing perHour events per key with the
// given burst
func NewLimiter(perHour int, burst int) *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     rate.Limit(float64(perHour) / 3600.0),
		burst:    burst,
	}
}

// PerHour reports the configured hourly allowance
func (l *Limiter) PerHour() int {
	return int(float64(l.rate)*3600.0 + 0.5)
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[key] = limiter
	}

	return limiter
}

// Allow consumes a token for key if one is available
func (l *Limiter) Allow(key string) bool {
	return l.get(key).Allow()
}

// Tokens returns the tokens currently left for key
func (l *Limiter) Tokens(key string) float64 {
	return l.get(key).Tokens()
}
