// SPDX-License-Identifier: MIT

// Package ratelimit bounds the public viewer surface. The session API has
// its own per-route limiter; this one protects the unauthenticated viewer
// routes where a single document can fan out into many page fetches.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

var (
	rateLimitExceeded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "folio",
			Name:      "viewer_ratelimit_exceeded_total",
			Help:      "Total viewer rate limit rejections",
		},
		[]string{"limit_type", "scope"},
	)
)

// Scopes for viewer traffic classes.
const (
	ScopeViewer = "viewer" // document HTML
	ScopePage   = "page"   // page image streams
	ScopeBridge = "bridge" // websocket upgrades
)

// Config holds rate limiting configuration
type Config struct {
	// Global limits
	GlobalRate  rate.Limit // requests per second
	GlobalBurst int        // max burst size

	// Per-IP limits
	PerIPRate  rate.Limit
	PerIPBurst int

	// Per-scope limits
	ScopeRates map[string]rate.Limit
	ScopeBurst map[string]int

	// Cleanup interval for per-IP limiters
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		GlobalRate:  200, // 200 req/s across all viewers
		GlobalBurst: 400,

		PerIPRate:  25, // matches the default viewer rate
		PerIPBurst: 50,

		ScopeRates: map[string]rate.Limit{
			ScopeViewer: 20,  // document loads are rare
			ScopePage:   150, // rendering a spread fetches several pages at once
			ScopeBridge: 10,  // one upgrade per session
		},
		ScopeBurst: map[string]int{
			ScopeViewer: 40,
			ScopePage:   300,
			ScopeBridge: 20,
		},

		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter manages rate limiting for viewer traffic
type Limiter struct {
	config Config

	global   *rate.Limiter
	perIP    map[string]*rate.Limiter
	perScope map[string]*rate.Limiter
	mu       sync.RWMutex

	lastCleanup time.Time
}

// New creates a new rate limiter with the given config
func New(config Config) *Limiter {
	l := &Limiter{
		config:      config,
		global:      rate.NewLimiter(config.GlobalRate, config.GlobalBurst),
		perIP:       make(map[string]*rate.Limiter),
		perScope:    make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}

	for scope, scopeRate := range config.ScopeRates {
		burst := config.ScopeBurst[scope]
		l.perScope[scope] = rate.NewLimiter(scopeRate, burst)
	}

	return l
}

// Allow checks if a request is allowed under rate limits
// Returns true if allowed, false if rate limited
func (l *Limiter) Allow(clientIP, scope string) bool {
	// 1. Check global limit
	if !l.global.Allow() {
		rateLimitExceeded.WithLabelValues("global", scope).Inc()
		return false
	}

	// 2. Check per-scope limit
	l.mu.RLock()
	scopeLimiter, exists := l.perScope[scope]
	l.mu.RUnlock()

	if exists && !scopeLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_scope", scope).Inc()
		return false
	}

	// Periodic cleanup runs before the lookup so the current client keeps
	// its fresh bucket.
	l.maybeCleanup()

	// 3. Check per-IP limit
	ipLimiter := l.getIPLimiter(clientIP)
	if !ipLimiter.Allow() {
		rateLimitExceeded.WithLabelValues("per_ip", scope).Inc()
		return false
	}

	return true
}

// getIPLimiter returns the rate limiter for a specific IP
func (l *Limiter) getIPLimiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.perIP[ip]
	if !exists {
		limiter = rate.NewLimiter(l.config.PerIPRate, l.config.PerIPBurst)
		l.perIP[ip] = limiter
	}

	return limiter
}

// maybeCleanup removes stale IP limiters if cleanup interval has passed.
// A non-positive interval disables cleanup.
func (l *Limiter) maybeCleanup() {
	if l.config.CleanupInterval <= 0 || time.Since(l.lastCleanup) < l.config.CleanupInterval {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Dropping the whole map is enough; live clients refill within a burst.
	l.perIP = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}

// GetClientIP extracts the real client IP from the request
func GetClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: "client, proxy1, proxy2"
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			xff = xff[:idx]
		}
		xff = strings.TrimSpace(xff)
		if xff != "" {
			return xff
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
