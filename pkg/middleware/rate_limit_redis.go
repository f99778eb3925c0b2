package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/folio/folio-api/pkg/logger"
	"github.com/folio/folio-api/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

// redisLimiter is a fixed-window counter shared by every replica through Redis.
// Each window allows floor(rps*windowSeconds)+burst requests per key.
type redisLimiter struct {
	client        *redis.Client
	windowSeconds int
	allowed       int
	now           func() time.Time
}

func newRedisLimiter(client *redis.Client, rps float64, burst int, window time.Duration) *redisLimiter {
	windowSeconds := int(window.Seconds())
	if windowSeconds <= 0 {
		windowSeconds = 1
	}
	return &redisLimiter{
		client:        client,
		windowSeconds: windowSeconds,
		allowed:       int(rps*float64(windowSeconds)) + burst,
		now:           time.Now,
	}
}

func (l *redisLimiter) handle(c *gin.Context) {
	bucket := l.now().Unix() / int64(l.windowSeconds)
	redisKey := fmt.Sprintf("rl:%s:%d", rateKey(c), bucket)

	ctx := c.Request.Context()
	cnt, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		logger.Errorf("rate limit incr %s: %v", redisKey, err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return
	}
	if cnt == 1 {
		_ = l.client.Expire(ctx, redisKey, time.Duration(l.windowSeconds+1)*time.Second).Err()
	}
	if int(cnt) > l.allowed {
		c.Header("Retry-After", fmt.Sprintf("%d", l.windowSeconds))
		metrics.RateLimitRejected.WithLabelValues("redis").Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}
	metrics.RateLimitAllowed.WithLabelValues("redis").Inc()
	c.Next()
}

// RedisRateLimitMiddleware provides a coarse fixed-window Redis-backed limiter.
// Falls back to the in-memory limiter when client is nil.
func RedisRateLimitMiddleware(client *redis.Client, rps float64, burst int, window time.Duration) gin.HandlerFunc {
	if client == nil {
		return RateLimitMiddleware(rps, burst)
	}
	return newRedisLimiter(client, rps, burst, window).handle
}
