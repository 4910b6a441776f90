package http

import (
	"errors"
	"strconv"
	"time"

	"booking_server/pkg/apperr"
	"booking_server/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var ErrUnauthorized = errors.New("unauthorized")

// GetBusinessID extracts the business the operator token was issued for.
func GetBusinessID(c *fiber.Ctx) (uuid.UUID, error) {
	businessID, ok := c.Locals("business_id").(uuid.UUID)
	if !ok || businessID == uuid.Nil {
		return uuid.Nil, ErrUnauthorized
	}
	return businessID, nil
}

// APIResponse is the envelope of every operator API response.
type APIResponse struct {
	Success   bool      `json:"success"`
	Data      any       `json:"data,omitempty"`
	Error     *APIError `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp string    `json:"timestamp"`
}

type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func respond(c *fiber.Ctx, status int, data any, apiErr *APIError) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.Status(status).JSON(APIResponse{
		Success:   apiErr == nil,
		Data:      data,
		Error:     apiErr,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func SuccessResponse(c *fiber.Ctx, data any) error {
	return respond(c, fiber.StatusOK, data, nil)
}

// ErrorResponse is for request-shape failures caught in the handler itself.
func ErrorResponse(c *fiber.Ctx, status int, message string) error {
	return respond(c, status, nil, &APIError{Code: codeForStatus(status), Message: message})
}

// AppErrorResponse renders an apperr.AppError with its taxonomy code; anything else becomes a logged, generic 500.
func AppErrorResponse(c *fiber.Ctx, err error, operation string) error {
	if !apperr.IsAppError(err) {
		return InternalErrorResponse(c, err, operation)
	}
	appErr := apperr.AsAppError(err)

	switch appErr.Code {
	case apperr.CodeSyncInProgress:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(5))
	case apperr.CodeProviderUnavailable:
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(30))
	}
	if appErr.Status >= 500 {
		logger.WithError(err).WithField("operation", operation).Warn("request failed: %s", appErr.Code)
	}
	return respond(c, appErr.Status, nil, &APIError{Code: appErr.Code, Message: appErr.Message, Details: appErr.Details})
}

// InternalErrorResponse logs err and hides it behind "<operation> failed".
func InternalErrorResponse(c *fiber.Ctx, err error, operation string) error {
	logger.WithError(err).WithField("operation", operation).Error("internal error")
	return respond(c, fiber.StatusInternalServerError, nil, &APIError{
		Code:    apperr.CodeInternalError,
		Message: operation + " failed",
	})
}

func codeForStatus(status int) string {
	switch status {
	case fiber.StatusBadRequest:
		return apperr.CodeBadRequest
	case fiber.StatusUnauthorized:
		return apperr.CodeUnauthorized
	case fiber.StatusNotFound:
		return apperr.CodeNotFound
	case fiber.StatusConflict:
		return apperr.CodeConflict
	case fiber.StatusTooManyRequests:
		return "RATE_LIMITED"
	}
	if status >= 500 {
		return apperr.CodeInternalError
	}
	return apperr.CodeValidationFailed
}
