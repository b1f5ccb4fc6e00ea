package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skilldex-dev/skilldex/internal/kv"
	"go.uber.org/zap"
)

// RateLimit is one endpoint's budget.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// RateLimiter enforces per-subject request budgets backed by KV counters, so
// the limit holds across all registry processes. The subject is the bearer
// token when present, the client IP otherwise.
func RateLimiter(store *kv.Store, endpoint string, limit RateLimit, logger *zap.Logger) gin.HandlerFunc {
	if limit.Requests <= 0 {
		limit.Requests = 60
	}
	if limit.Window <= 0 {
		limit.Window = time.Minute
	}

	return func(c *gin.Context) {
		subject := bearerToken(c)
		if subject == "" {
			subject = c.ClientIP()
		}

		res, err := store.Allow(c.Request.Context(), subject, endpoint, limit.Requests, limit.Window)
		if err != nil {
			// A broken limiter must not take the API down with it.
			logger.Warn("rate limit check failed",
				zap.String("endpoint", endpoint), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(time.Until(res.Reset).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
