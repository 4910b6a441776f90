package middleware

import (
	"fmt"
	"strings"
	"time"

	"booking_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// OperatorClaims is what the back office puts into an operator token.
type OperatorClaims struct {
	BusinessID string `json:"business_id"`
	jwt.RegisteredClaims
}

// JWTAuth validates operator tokens (HS256) and stores operator_id and business_id in Locals.
func JWTAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		var tokenString string

		authHeader := c.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// EventSource cannot set headers
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			return c.Status(401).JSON(fiber.Map{"error": "missing authorization"})
		}

		claims := &OperatorClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuedAt(),
			jwt.WithLeeway(time.Minute),
		)
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return c.Status(401).JSON(fiber.Map{"error": "invalid token"})
		}

		businessID, err := uuid.Parse(claims.BusinessID)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{"error": "missing business id in token"})
		}

		c.Locals("operator_id", claims.Subject)
		c.Locals("business_id", businessID)

		return c.Next()
	}
}

// IssueOperatorToken signs a token for an operator of one business. Used by tooling and tests.
func IssueOperatorToken(secret, operatorID string, businessID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		BusinessID: businessID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
