package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/denisAlshanov/audioworker/internal/config"
	"github.com/denisAlshanov/audioworker/internal/utils"
)

// globalKey is the single bucket every request counts against.
const globalKey = "global"

type rateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
}

func newRateLimiter(limit int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// isAllowed records a request for key and reports whether it fits in the
// sliding window. Rejected requests are not recorded.
func (rl *rateLimiter) isAllowed(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	// Count requests within window
	times := rl.requests[key]
	validTimes := times[:0]
	for _, t := range times {
		if now.Sub(t) < rl.window {
			validTimes = append(validTimes, t)
		}
	}

	// Check if limit exceeded
	if len(validTimes) >= rl.limit {
		rl.requests[key] = validTimes
		return false
	}

	rl.requests[key] = append(validTimes, now)
	return true
}

// retryAfter returns how long until the oldest request in key's window
// expires.
func (rl *rateLimiter) retryAfter(key string) time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	times := rl.requests[key]
	if len(times) == 0 {
		return 0
	}
	return rl.window - rl.now().Sub(times[0])
}

// RateLimitMiddleware enforces one process-wide request budget across all
// routes.
func RateLimitMiddleware(cfg *config.APIConfig) gin.HandlerFunc {
	limiter := newRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow)

	return func(c *gin.Context) {
		if cfg.RateLimitRequests <= 0 {
			c.Next()
			return
		}

		if !limiter.isAllowed(globalKey) {
			wait := limiter.retryAfter(globalKey)
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			utils.LogWarn(c.Request.Context(), "Rate limit exceeded", utils.Fields{"ip": c.ClientIP()})
			abortWithError(c, utils.NewRateLimitError())
			return
		}

		c.Next()
	}
}
