package middleware

import (
	"fmt"
	"time"

	"booking_server/pkg/ratelimit"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RateLimit caps operator API calls per business, falling back to the client IP before auth.
func RateLimit(limiter *ratelimit.SlidingWindowLimiter, limit int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := "ip:" + c.IP()
		if biz, ok := c.Locals("business_id").(uuid.UUID); ok {
			key = "biz:" + biz.String()
		}

		allowed, wait := limiter.Allow(c.Context(), "api:"+key)
		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", limit))
		if !allowed {
			retryAfter := int(wait.Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			return c.Status(429).JSON(fiber.Map{
				"error":       "rate limit exceeded",
				"code":        "RATE_LIMITED",
				"retry_after": retryAfter,
			})
		}
		return c.Next()
	}
}
