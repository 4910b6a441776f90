package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Auth errors
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeAuthorizationExpired = "AUTHORIZATION_EXPIRED"

	// Validation errors
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeInvalidInput     = "INVALID_INPUT"

	// Resource errors
	CodeNotFound = "NOT_FOUND"
	CodeConflict = "CONFLICT"

	// Sync lifecycle errors
	CodeMappingIncomplete    = "MAPPING_INCOMPLETE"
	CodeInvalidTransition    = "INVALID_TRANSITION"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeConflictsUnresolved  = "CONFLICTS_UNRESOLVED"
	CodePartialCommitFailure = "PARTIAL_COMMIT_FAILURE"
	CodeSyncInProgress       = "SYNC_IN_PROGRESS"

	// External errors
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeDatabaseError       = "DATABASE_ERROR"

	// Internal errors
	CodeInternalError = "INTERNAL_ERROR"
	CodeTimeout       = "TIMEOUT"
)

// AppError represents a structured application error
type AppError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Status  int            `json:"-"`
	Details map[string]any `json:"details,omitempty"`
	Err     error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// HTTPStatus returns the HTTP status code
func (e *AppError) HTTPStatus() int {
	return e.Status
}

// Constructor functions
func New(code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

func Wrap(err error, code, message string, status int) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// Auth errors
func Unauthorized(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// AuthorizationExpired reports that the provider credential for a business is no longer valid.
func AuthorizationExpired(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeAuthorizationExpired,
		Message: fmt.Sprintf("%s authorization expired, reconnect required", provider),
		Status:  http.StatusUnauthorized,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

// Validation errors
func BadRequest(message string) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func ValidationFailed(message string) *AppError {
	return &AppError{
		Code:    CodeValidationFailed,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}

func InvalidInput(field, reason string) *AppError {
	return &AppError{
		Code:    CodeInvalidInput,
		Message: fmt.Sprintf("invalid input for '%s': %s", field, reason),
		Status:  http.StatusBadRequest,
		Details: map[string]any{"field": field},
	}
}

// Resource errors
func NotFound(resource string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
	}
}

func Conflict(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
		Status:  http.StatusConflict,
	}
}

// Sync lifecycle errors

// MappingIncomplete names every selected calendar that still lacks an owner.
func MappingIncomplete(unmapped []string) *AppError {
	return &AppError{
		Code:    CodeMappingIncomplete,
		Message: fmt.Sprintf("%d selected calendar(s) have no owner mapping", len(unmapped)),
		Status:  http.StatusUnprocessableEntity,
		Details: map[string]any{"unmapped_calendars": unmapped},
	}
}

func InvalidTransition(from, to string) *AppError {
	return &AppError{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move integration from %s to %s", from, to),
		Status:  http.StatusConflict,
		Details: map[string]any{"from": from, "to": to},
	}
}

func ConfirmationRequired(action string) *AppError {
	return &AppError{
		Code:    CodeConfirmationRequired,
		Message: fmt.Sprintf("%s is destructive and requires explicit confirmation", action),
		Status:  http.StatusPreconditionRequired,
		Details: map[string]any{"action": action},
	}
}

// PartialCommitFailure carries the exact counts so the operator can re-run safely.
func PartialCommitFailure(imported, failed int, err error) *AppError {
	return &AppError{
		Code:    CodePartialCommitFailure,
		Message: fmt.Sprintf("%d event(s) imported, %d failed to persist", imported, failed),
		Status:  http.StatusMultiStatus,
		Details: map[string]any{"imported": imported, "failed": failed},
		Err:     err,
	}
}

// ConflictsUnresolved is returned while a batch waits for an operator decision.
func ConflictsUnresolved() *AppError {
	return &AppError{
		Code:    CodeConflictsUnresolved,
		Message: "conflicts await an operator decision",
		Status:  http.StatusConflict,
	}
}

func SyncInProgress(businessID string) *AppError {
	return &AppError{
		Code:    CodeSyncInProgress,
		Message: "another sync pass is running for this integration",
		Status:  http.StatusConflict,
		Details: map[string]any{"business_id": businessID},
	}
}

// External errors
func ProviderUnavailable(provider string, err error) *AppError {
	return &AppError{
		Code:    CodeProviderUnavailable,
		Message: fmt.Sprintf("%s is unavailable, retry later", provider),
		Status:  http.StatusServiceUnavailable,
		Details: map[string]any{"provider": provider},
		Err:     err,
	}
}

func DatabaseError(operation string, err error) *AppError {
	return &AppError{
		Code:    CodeDatabaseError,
		Message: fmt.Sprintf("database error: %s", operation),
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// Internal errors
func Internal(message string) *AppError {
	if message == "" {
		message = "internal server error"
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Status:  http.StatusInternalServerError,
	}
}

func InternalWithError(err error) *AppError {
	return &AppError{
		Code:    CodeInternalError,
		Message: "internal server error",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func Timeout(operation string) *AppError {
	return &AppError{
		Code:    CodeTimeout,
		Message: fmt.Sprintf("operation timed out: %s", operation),
		Status:  http.StatusGatewayTimeout,
	}
}

// Common error instances
var (
	ErrUnauthorized = Unauthorized("")
	ErrRateLimited  = New("RATE_LIMITED", "too many requests", http.StatusTooManyRequests)
)

// Helper functions
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// IsCode reports whether err (or anything it wraps) is an AppError with the given code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalWithError(err)
}

func GetHTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}
