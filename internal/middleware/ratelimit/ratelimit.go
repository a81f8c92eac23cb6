// Package ratelimit throttles requests per client with token buckets.
package ratelimit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keeps one token bucket per client key.
type Limiter struct {
	mu           sync.Mutex
	clients      map[string]*client
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	limit           rate.Limit
	burst           int
	idleTTL         time.Duration
	cleanupInterval time.Duration

	allowed  atomic.Int64
	rejected atomic.Int64
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Config holds rate limiter configuration.
type Config struct {
	RequestsPerMinute int
	// Burst defaults to RequestsPerMinute/6, at least 1.
	Burst           int
	CleanupInterval time.Duration
}

// DefaultConfig returns 60 requests per minute with a burst of 10.
func DefaultConfig() Config {
	return Config{
		RequestsPerMinute: 60,
		Burst:             10,
		CleanupInterval:   5 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine. Call Stop to
// release it.
func NewLimiter(config Config) *Limiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultConfig().RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = max(config.RequestsPerMinute/6, 1)
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}

	rl := &Limiter{
		clients:         make(map[string]*client),
		stopCleanup:     make(chan struct{}),
		limit:           rate.Limit(float64(config.RequestsPerMinute) / 60),
		burst:           config.Burst,
		idleTTL:         config.CleanupInterval,
		cleanupInterval: config.CleanupInterval,
	}
	go rl.startCleanup()
	return rl
}

// Allow reports whether a request from key may proceed now.
func (rl *Limiter) Allow(key string) bool {
	return rl.allowAt(key, time.Now())
}

func (rl *Limiter) allowAt(key string, now time.Time) bool {
	rl.mu.Lock()
	c, ok := rl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = now
	rl.mu.Unlock()

	if c.limiter.AllowN(now, 1) {
		rl.allowed.Add(1)
		return true
	}
	rl.rejected.Add(1)
	return false
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanup drops buckets idle longer than idleTTL.
func (rl *Limiter) cleanup(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleTTL {
			delete(rl.clients, key)
			removed++
		}
	}
	return removed
}

// ActiveClients returns the number of tracked clients.
func (rl *Limiter) ActiveClients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Metrics is a point-in-time view of limiter activity.
type Metrics struct {
	Allowed       int64 `json:"allowed"`
	Rejected      int64 `json:"rejected"`
	ActiveClients int   `json:"active_clients"`
}

func (rl *Limiter) Metrics() Metrics {
	return Metrics{
		Allowed:       rl.allowed.Load(),
		Rejected:      rl.rejected.Load(),
		ActiveClients: rl.ActiveClients(),
	}
}

// Middleware limits requests keyed by extractKey. Rejected requests go to
// onLimit, or get a plain 429 when onLimit is nil.
func (rl *Limiter) Middleware(extractKey func(*http.Request) string, onLimit http.HandlerFunc) func(http.Handler) http.Handler {
	if onLimit == nil {
		onLimit = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(extractKey(r)) {
				w.Header().Set("Retry-After", "60")
				onLimit(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
