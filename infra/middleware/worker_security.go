package middleware

import (
	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders sets the response headers for an API that serves no HTML.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		c.Set(fiber.HeaderXFrameOptions, "DENY")
		c.Set(fiber.HeaderReferrerPolicy, "no-referrer")
		c.Set(fiber.HeaderContentSecurityPolicy, "default-src 'none'; frame-ancestors 'none'")
		c.Set(fiber.HeaderStrictTransportSecurity, "max-age=31536000; includeSubDomains")
		return c.Next()
	}
}

// MaxBodySize rejects bodies over maxBytes. Provider push notifications carry no body,
// so this mostly bounds the mapping and resolution payloads.
func MaxBodySize(maxBytes int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if len(c.Body()) <= maxBytes {
			return c.Next()
		}
		return writeError(c, fiber.StatusRequestEntityTooLarge, ErrorDetail{
			Code:    codeForStatus(fiber.StatusRequestEntityTooLarge),
			Message: "request body too large",
			Details: map[string]any{"max_size": maxBytes},
		})
	}
}
