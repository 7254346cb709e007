package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"telemeet/pkg/config"
	apperrors "telemeet/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 3 * time.Minute
	limiterPruneInterval = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterTable tracks one token bucket per client address. Entries idle past
// limiterIdleTTL are pruned on a later lookup so a churn of one-shot clients
// does not grow the table without bound.
type limiterTable struct {
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	rate      rate.Limit
	burst     int
	lastPrune time.Time
}

func newLimiterTable(r rate.Limit, burst int) *limiterTable {
	return &limiterTable{
		clients:   make(map[string]*clientLimiter),
		rate:      r,
		burst:     burst,
		lastPrune: time.Now(),
	}
}

func (t *limiterTable) get(key string, now time.Time) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.lastPrune) > limiterPruneInterval {
		t.pruneLocked(now)
	}

	entry, ok := t.clients[key]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(t.rate, t.burst)}
		t.clients[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (t *limiterTable) pruneLocked(now time.Time) {
	for key, entry := range t.clients {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(t.clients, key)
		}
	}
	t.lastPrune = now
}

// clientAddr keys the limiter by originating IP, preferring the first
// X-Forwarded-For hop when a proxy fronts the server.
func clientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if ip := net.ParseIP(first); ip != nil {
			return ip.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NewHTTPRateLimitMiddleware throttles the HTTP API per client address, with
// an optional cap on concurrent in-flight requests.
func NewHTTPRateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	if !cfg.RateLimiting.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	table := newLimiterTable(
		rate.Limit(cfg.RateLimiting.HTTP.RequestsPerSecond),
		cfg.RateLimiting.HTTP.Burst,
	)

	var inflight chan struct{}
	if cfg.RateLimiting.HTTP.MaxConcurrent > 0 {
		inflight = make(chan struct{}, cfg.RateLimiting.HTTP.MaxConcurrent)
	}

	return func(c *gin.Context) {
		if inflight != nil {
			select {
			case inflight <- struct{}{}:
				defer func() { <-inflight }()
			default:
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
					"error":   string(apperrors.ErrCodeRateLimit),
					"message": "too many concurrent requests",
				})
				return
			}
		}

		if !table.get(clientAddr(c.Request), time.Now()).Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   string(apperrors.ErrCodeRateLimit),
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
