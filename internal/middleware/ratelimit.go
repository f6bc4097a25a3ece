package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/developer-mesh/academic-helper/internal/observability"
)

// RateLimiterConfig configures per-client rate limiting
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained rate per client
	RequestsPerMinute int
	// Burst is the number of requests allowed at once
	Burst int
	// IdleTTL drops limiters for clients not seen for this long
	IdleTTL time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientRateLimiter keeps one token bucket per client key. Idle buckets are
// swept lazily on access so no background goroutine is needed.
type ClientRateLimiter struct {
	config    RateLimiterConfig
	limit     rate.Limit
	mu        sync.Mutex
	clients   map[string]*clientLimiter
	lastSweep time.Time
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewClientRateLimiter creates a per-client rate limiter
func NewClientRateLimiter(config RateLimiterConfig, metrics *observability.Metrics) *ClientRateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = 10 * time.Minute
	}
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	return &ClientRateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.RequestsPerMinute) / 60.0),
		clients: make(map[string]*clientLimiter),
		metrics: metrics,
		now:     time.Now,
	}
}

// Allow reports whether key may make a request now. When it may not, the
// returned duration is how long until the next token.
func (rl *ClientRateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.sweep(now)

	cl, ok := rl.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.config.Burst)}
		rl.clients[key] = cl
	}
	cl.lastSeen = now

	r := cl.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Minute
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (rl *ClientRateLimiter) sweep(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.config.IdleTTL {
		return
	}
	for key, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > rl.config.IdleTTL {
			delete(rl.clients, key)
		}
	}
	rl.lastSweep = now
}

// Clients returns the number of tracked clients
func (rl *ClientRateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware limits requests by authenticated subject, falling back to client IP
func (rl *ClientRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if identity, ok := GetIdentity(c); ok {
			key = "sub:" + identity.Subject
		}

		allowed, retryAfter := rl.Allow(key)
		if !allowed {
			rl.metrics.RateLimitDenied.Inc()
			seconds := int(math.Ceil(retryAfter.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}
