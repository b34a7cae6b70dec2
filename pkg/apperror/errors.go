package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
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

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// Error codes returned to API callers.
const (
	CodeInvalidStateTransition = "INVALID_STATE_TRANSITION"
	CodeBlockReasonRequired    = "BLOCK_REASON_REQUIRED"
	CodeInvalidBlockReason     = "INVALID_BLOCK_REASON"
	CodeInvalidTargetStatus    = "INVALID_TARGET_STATUS"
	CodeSimNotFound            = "SIM_NOT_FOUND"
	CodeTransitionConflict     = "TRANSITION_CONFLICT"
	CodeInvalidWebhookURL      = "INVALID_WEBHOOK_URL"
	CodeInvalidEventType       = "INVALID_EVENT_TYPE"
	CodeSecretTooShort         = "WEBHOOK_SECRET_TOO_SHORT"
	CodeWebhookNotFound        = "WEBHOOK_NOT_FOUND"
	CodeValidation             = "VALIDATION_ERROR"
	CodeInvalidToken           = "INVALID_TOKEN"
	CodeRateLimitExceeded      = "RATE_LIMIT_EXCEEDED"
	CodeDatabaseError          = "DATABASE_ERROR"
	CodeEncryptionError        = "ENCRYPTION_ERROR"
	CodeInternalError          = "INTERNAL_ERROR"
)

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// ---- State machine ----

func ErrInvalidStateTransition(from, to string) *AppError {
	return New(CodeInvalidStateTransition, fmt.Sprintf("Cannot transition SIM from %s to %s", from, to), http.StatusUnprocessableEntity)
}

func ErrBlockReasonRequired() *AppError {
	return New(CodeBlockReasonRequired, "A block reason is required", http.StatusBadRequest)
}

func ErrInvalidBlockReason(reason string) *AppError {
	return New(CodeInvalidBlockReason, fmt.Sprintf("Invalid block reason: %s", reason), http.StatusBadRequest)
}

func ErrInvalidTargetStatus(status string) *AppError {
	return New(CodeInvalidTargetStatus, fmt.Sprintf("Invalid target status: %s", status), http.StatusBadRequest)
}

func ErrSimNotFound() *AppError {
	return New(CodeSimNotFound, "SIM not found", http.StatusNotFound)
}

// ErrTransitionConflict is returned when another transition changed the SIM first.
// Callers may retry.
func ErrTransitionConflict() *AppError {
	return New(CodeTransitionConflict, "SIM status changed concurrently, retry the request", http.StatusConflict)
}

// ---- Webhook registry ----

func ErrInvalidWebhookURL(message string) *AppError {
	return New(CodeInvalidWebhookURL, message, http.StatusBadRequest)
}

func ErrInvalidEventType(message string) *AppError {
	return New(CodeInvalidEventType, message, http.StatusBadRequest)
}

func ErrSecretTooShort(min int) *AppError {
	return New(CodeSecretTooShort, fmt.Sprintf("Webhook secret must be at least %d characters", min), http.StatusBadRequest)
}

func ErrWebhookNotFound() *AppError {
	return New(CodeWebhookNotFound, "Webhook not found", http.StatusNotFound)
}

// ---- Authentication & throttling ----

func ErrInvalidToken() *AppError {
	return New(CodeInvalidToken, "Invalid or expired token", http.StatusUnauthorized)
}

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimitExceeded, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure ----

func ErrDatabaseError(err error) *AppError {
	return Wrap(CodeDatabaseError, "Internal database error", http.StatusInternalServerError, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap(CodeEncryptionError, "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as an INTERNAL_ERROR.
func InternalError(err error) *AppError {
	return Wrap(CodeInternalError, "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns a VALIDATION_ERROR with the given message.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}
