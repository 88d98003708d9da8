package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// RateLimiter protects the admin metrics/health surface using Redis,
// so the limit is shared across multiple socks5gate instances behind
// the same admin endpoint.
type RateLimiter struct {
	redis       *redis.Client
	maxRequests int
	window      time.Duration
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redisClient *redis.Client, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Middleware returns a Fiber middleware for rate limiting
func (rl *RateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := fmt.Sprintf("socks5gate:admin:ratelimit:%s", c.IP())

		ctx := context.Background()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// Redis unavailable: fail open rather than take the admin
			// surface down.
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, rl.window)
		}

		if count > int64(rl.maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()

			c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.maxRequests))
			c.Set("X-RateLimit-Remaining", "0")
			c.Set("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"retry_after": int(ttl.Seconds()),
			})
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", rl.maxRequests-int(count)))

		return c.Next()
	}
}

// SimpleRateLimiter provides in-memory rate limiting, for deployments
// that run a single socks5gate instance and have no Redis available.
type SimpleRateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	max      int
	window   time.Duration
}

// NewSimpleRateLimiter creates a simple in-memory rate limiter
func NewSimpleRateLimiter(max int, window time.Duration) *SimpleRateLimiter {
	return &SimpleRateLimiter{
		requests: make(map[string][]time.Time),
		max:      max,
		window:   window,
	}
}

// Middleware returns a Fiber middleware for simple rate limiting
func (srl *SimpleRateLimiter) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := c.IP()
		now := time.Now()

		srl.mu.Lock()
		defer srl.mu.Unlock()

		if requests, ok := srl.requests[identifier]; ok {
			var validRequests []time.Time
			for _, reqTime := range requests {
				if now.Sub(reqTime) < srl.window {
					validRequests = append(validRequests, reqTime)
				}
			}
			srl.requests[identifier] = validRequests
		}

		if len(srl.requests[identifier]) >= srl.max {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}

		srl.requests[identifier] = append(srl.requests[identifier], now)

		return c.Next()
	}
}
