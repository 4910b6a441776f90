package bootstrap

import (
	"time"

	"booking_server/adapter/in/http"
	"booking_server/config"
	"booking_server/infra/middleware"
	"booking_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RegisterDevRoutes registers development-only helpers without authentication.
// WARNING: Only enable in development environment!
func RegisterDevRoutes(app *fiber.App, cfg *config.Config) {
	dev := app.Group("/dev")

	// Mint an operator token for a business so the API can be driven with curl.
	dev.Post("/token", func(c *fiber.Ctx) error {
		var req struct {
			BusinessID string `json:"business_id"`
			OperatorID string `json:"operator_id"`
			TTLMinutes int    `json:"ttl_minutes"`
		}
		if err := c.BodyParser(&req); err != nil {
			return http.ErrorResponse(c, 400, "invalid request body")
		}
		businessID, err := uuid.Parse(req.BusinessID)
		if err != nil {
			return http.ErrorResponse(c, 400, "business_id must be a uuid")
		}
		if req.OperatorID == "" {
			req.OperatorID = "dev-operator"
		}
		ttl := time.Duration(req.TTLMinutes) * time.Minute
		if ttl <= 0 {
			ttl = 12 * time.Hour
		}

		token, err := middleware.IssueOperatorToken(cfg.JWTSecret, req.OperatorID, businessID, ttl)
		if err != nil {
			return http.InternalErrorResponse(c, err, "issue token")
		}

		logger.Info("[DevRoutes] issued token: business=%s, operator=%s, ttl=%s", businessID, req.OperatorID, ttl)
		return http.SuccessResponse(c, fiber.Map{
			"token":      token,
			"expires_in": int(ttl.Seconds()),
		})
	})

	logger.Info("Development routes enabled under /dev")
}
