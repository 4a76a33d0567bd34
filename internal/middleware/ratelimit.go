package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/keygate-io/keygate/internal/ratelimit"
	"github.com/keygate-io/keygate/pkg/errors"
	"github.com/keygate-io/keygate/pkg/logger"
	"github.com/keygate-io/keygate/pkg/response"
)

// RateLimit applies the shared sliding-window limiter per client IP. The
// limiter state lives in Redis, so the ceiling holds across instances.
func RateLimit(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Namespaced so the HTTP window never shares state with the
		// validation pipeline's per-caller window.
		decision, err := limiter.Allow(c.Request.Context(), "http:"+c.ClientIP())
		if err != nil {
			// The limiter is a guard, not a dependency of correctness.
			// When Redis is unreachable the request proceeds unthrottled.
			logger.WithModule("http").Warn("rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining()))
		c.Header("X-RateLimit-Reset", strconv.Itoa(int(decision.Window.Seconds())))

		if !decision.Allowed {
			response.Error(c, errors.ErrRateLimit)
			c.Abort()
			return
		}

		c.Next()
	}
}
