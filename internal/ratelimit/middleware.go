package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"facetalk-backend/internal/models"
	"facetalk-backend/internal/telemetry"
)

// Middleware limits requests per client IP. Redis failures let the request
// through.
func Middleware(bucket *TokenBucket, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := bucket.Allow(c.Request.Context(), c.ClientIP())
		if err != nil {
			logger.Warn().Err(err).Msg("rate limiter unavailable")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if decision.Allowed {
			c.Next()
			return
		}

		telemetry.RateLimitRejects.Inc()
		if decision.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, models.ErrorResponse{
			Error:     "rate limit exceeded",
			Message:   "Too many requests, please slow down",
			Retryable: true,
		})
	}
}
