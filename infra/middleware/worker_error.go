package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"
	"booking_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Success   bool        `json:"success"`
	Error     ErrorDetail `json:"error"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Retry hints for errors the operator can simply retry.
var retryAfter = map[string]time.Duration{
	apperr.CodeSyncInProgress:      5 * time.Second,
	apperr.CodeProviderUnavailable: 30 * time.Second,
}

// ErrorHandler renders AppErrors with their code and status; anything else is a 500 with the cause hidden.
func ErrorHandler() fiber.ErrorHandler {
	log := logger.Component("http")

	return func(c *fiber.Ctx, err error) error {
		requestID, _ := c.Locals("request_id").(string)

		var appErr *apperr.AppError
		var fiberErr *fiber.Error

		switch {
		case errors.As(err, &appErr):
			ev := log.Warn()
			if appErr.Status >= 500 {
				ev = log.Error()
			}
			ev.Err(appErr.Err).
				Str("request_id", requestID).
				Str("code", appErr.Code).
				Msg(appErr.Message)

			if d, ok := retryAfter[appErr.Code]; ok {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(d.Seconds())))
			}
			return writeError(c, appErr.Status, ErrorDetail{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			})

		case errors.As(err, &fiberErr):
			return writeError(c, fiberErr.Code, ErrorDetail{
				Code:    codeForStatus(fiberErr.Code),
				Message: fiberErr.Message,
			})
		}

		log.Error().Err(err).Str("request_id", requestID).Str("path", c.Path()).Msg("unhandled error")
		return writeError(c, fiber.StatusInternalServerError, ErrorDetail{
			Code:    apperr.CodeInternalError,
			Message: "An unexpected error occurred",
		})
	}
}

func writeError(c *fiber.Ctx, status int, detail ErrorDetail) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(ErrorResponse{
		Success:   false,
		Error:     detail,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// RequestID propagates X-Request-ID, minting one when the caller sent none.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set(fiber.HeaderXRequestID, requestID)
		return c.Next()
	}
}

// RequestLogger logs each request and records its latency under "METHOD /route". latency may be nil.
func RequestLogger(latency *metrics.Registry) fiber.Handler {
	log := logger.Component("http")

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		if latency != nil {
			latency.Record(c.Method()+" "+c.Route().Path, elapsed)
		}

		status := c.Response().StatusCode()
		ev := log.Debug()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}

		requestID, _ := c.Locals("request_id").(string)
		ev = ev.Str("request_id", requestID).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", elapsed).
			Str("ip", c.IP())
		if biz, ok := c.Locals("business_id").(uuid.UUID); ok {
			ev = ev.Str("business_id", biz.String())
		}
		ev.Msg("request")

		return err
	}
}

// Recover turns a handler panic into a 500.
func Recover() fiber.Handler {
	log := logger.Component("http")

	return func(c *fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			requestID, _ := c.Locals("request_id").(string)
			log.Error().
				Str("request_id", requestID).
				Str("panic", fmt.Sprint(r)).
				Str("route", c.Method()+" "+c.Path()).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			err = writeError(c, fiber.StatusInternalServerError, ErrorDetail{
				Code:    apperr.CodeInternalError,
				Message: "An unexpected error occurred",
			})
		}()
		return c.Next()
	}
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeValidationFailed
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound, fiber.StatusMethodNotAllowed:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	case fiber.StatusRequestTimeout, fiber.StatusGatewayTimeout:
		return apperr.CodeTimeout
	case fiber.StatusBadGateway, fiber.StatusServiceUnavailable:
		return apperr.CodeProviderUnavailable
	}
	if status >= 500 {
		return apperr.CodeInternalError
	}
	return apperr.CodeBadRequest
}
