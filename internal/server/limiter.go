package server

import (
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jpalmerr/scorepulse/internal/metrics"
)

// GlobalConnectionLimiter caps concurrent streams per instance.
type GlobalConnectionLimiter struct {
	current atomic.Int64
	max     int64
}

// NewGlobalConnectionLimiter creates a limiter allowing max concurrent
// streams. A max of zero or less disables the cap.
func NewGlobalConnectionLimiter(max int64) *GlobalConnectionLimiter {
	return &GlobalConnectionLimiter{max: max}
}

// Acquire takes a slot, returning false at capacity.
func (l *GlobalConnectionLimiter) Acquire() bool {
	if l.max <= 0 {
		l.current.Add(1)
		return true
	}
	for {
		current := l.current.Load()
		if current >= l.max {
			return false
		}
		if l.current.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release returns a slot.
func (l *GlobalConnectionLimiter) Release() {
	l.current.Add(-1)
}

// Current returns the number of held slots.
func (l *GlobalConnectionLimiter) Current() int64 {
	return l.current.Load()
}

// ConnectionRateLimiter limits the rate of new streams per IP with a token
// bucket per address.
type ConnectionRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*rateLimiterEntry
	rate      rate.Limit
	burst     int
	cleanupAt time.Time
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewConnectionRateLimiter creates a limiter allowing perSecond new streams
// per IP with the given burst. A perSecond of zero or less disables it.
func NewConnectionRateLimiter(perSecond float64, burst int) *ConnectionRateLimiter {
	if perSecond <= 0 {
		return &ConnectionRateLimiter{rate: rate.Inf}
	}
	if burst < 1 {
		burst = 1
	}
	return &ConnectionRateLimiter{
		limiters:  make(map[string]*rateLimiterEntry),
		rate:      rate.Limit(perSecond),
		burst:     burst,
		cleanupAt: time.Now().Add(5 * time.Minute),
	}
}

// Allow reports whether a new stream from ip may proceed.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	if l.rate == rate.Inf {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(5 * time.Minute)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

// cleanup drops limiters idle for ten minutes. Must be called with mu held.
func (l *ConnectionRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-10 * time.Minute)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}

// admitStream applies the stream limits to r. On success the returned
// release func must be called when the stream ends. On refusal an error
// response has already been written.
func (s *Server) admitStream(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	if !s.rateLimiter.Allow(clientIP(r)) {
		metrics.StreamRejectionsTotal.WithLabelValues("rate_limit").Inc()
		writeError(w, http.StatusTooManyRequests, "too many stream connections, slow down")
		return nil, false
	}
	if !s.globalLimiter.Acquire() {
		metrics.StreamRejectionsTotal.WithLabelValues("global_limit").Inc()
		writeError(w, http.StatusServiceUnavailable, "stream capacity reached")
		return nil, false
	}
	return s.globalLimiter.Release, true
}

// clientIP returns the host part of RemoteAddr, which the RealIP middleware
// has already rewritten from forwarding headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
