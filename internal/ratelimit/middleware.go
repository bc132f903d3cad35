package ratelimit

import (
	"github.com/gin-gonic/gin"

	"judgecore/internal/metrics"
	appErr "judgecore/pkg/errors"
	"judgecore/pkg/utils/response"
)

// KeyFunc extracts the limiter key from a request.
type KeyFunc func(c *gin.Context) string

// ByClientIP keys requests by client address.
func ByClientIP(c *gin.Context) string {
	return c.ClientIP()
}

// Middleware rejects requests whose key has exhausted its token bucket.
func Middleware(store *Store, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.Allow(key(c)) {
			metrics.RateLimitHits.Inc()
			response.AbortWithErrorCode(c, appErr.TooManyRequests, "")
			return
		}
		c.Next()
	}
}
