package middleware

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// SendLimiter enforces a fixed-window message rate per sender, backed by
// redis. A nil client disables limiting.
type SendLimiter struct {
	redis  *redis.Client
	limit  int
	window time.Duration
}

// NewSendLimiter constructs a SendLimiter.
func NewSendLimiter(client *redis.Client, limit int, window time.Duration) *SendLimiter {
	return &SendLimiter{redis: client, limit: limit, window: window}
}

func (l *SendLimiter) increment(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		l.redis.Expire(ctx, key, l.window)
	}
	return count, nil
}

// Limit rejects senders that exceed the window's quota. Redis errors fail
// open: a broken limiter must not take messaging down.
func (l *SendLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.redis == nil {
			c.Next()
			return
		}

		key := fmt.Sprintf("msg_rate:%d", c.GetInt("userID"))
		count, err := l.increment(c.Request.Context(), key)
		if err != nil {
			log.Printf("rate limit check failed: %v", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
		if count > int64(l.limit) {
			c.Header("X-RateLimit-Remaining", "0")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(l.limit-int(count)))
		c.Next()
	}
}
