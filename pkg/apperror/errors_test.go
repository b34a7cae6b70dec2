package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("SIM_NOT_FOUND", "SIM not found", http.StatusNotFound),
			expected: "[SIM_NOT_FOUND] SIM not found",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("DATABASE_ERROR", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[DATABASE_ERROR] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("INTERNAL_ERROR", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
}

func TestAppError_IsNilUnwrap(t *testing.T) {
	appErr := New("VALIDATION_ERROR", "test", http.StatusBadRequest)
	assert.Nil(t, appErr.Unwrap())
}

func TestStateMachineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidStateTransition", ErrInvalidStateTransition("PROVISIONED", "BLOCKED"), CodeInvalidStateTransition, 422},
		{"BlockReasonRequired", ErrBlockReasonRequired(), CodeBlockReasonRequired, 400},
		{"InvalidBlockReason", ErrInvalidBlockReason("MISPLACED"), CodeInvalidBlockReason, 400},
		{"InvalidTargetStatus", ErrInvalidTargetStatus("SUSPENDED"), CodeInvalidTargetStatus, 400},
		{"SimNotFound", ErrSimNotFound(), CodeSimNotFound, 404},
		{"TransitionConflict", ErrTransitionConflict(), CodeTransitionConflict, 409},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestRegistryErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"InvalidWebhookURL", ErrInvalidWebhookURL("must use https"), CodeInvalidWebhookURL, 400},
		{"InvalidEventType", ErrInvalidEventType("unknown"), CodeInvalidEventType, 400},
		{"SecretTooShort", ErrSecretTooShort(32), CodeSecretTooShort, 400},
		{"WebhookNotFound", ErrWebhookNotFound(), CodeWebhookNotFound, 404},
		{"InvalidToken", ErrInvalidToken(), CodeInvalidToken, 401},
		{"RateLimitExceeded", ErrRateLimitExceeded(), CodeRateLimitExceeded, 429},
		{"Validation", Validation("bad input"), CodeValidation, 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestSystemErrors(t *testing.T) {
	inner := fmt.Errorf("pg: connection closed")
	dbErr := ErrDatabaseError(inner)
	assert.Equal(t, CodeDatabaseError, dbErr.Code)
	assert.Equal(t, 500, dbErr.HTTPStatus)
	assert.True(t, errors.Is(dbErr, inner))

	encErr := ErrEncryptionFailure(inner)
	assert.Equal(t, CodeEncryptionError, encErr.Code)
	assert.Equal(t, 500, encErr.HTTPStatus)

	intErr := InternalError(inner)
	assert.Equal(t, CodeInternalError, intErr.Code)
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("transition: %w", ErrTransitionConflict())
	assert.True(t, HasCode(err, CodeTransitionConflict))
	assert.False(t, HasCode(err, CodeSimNotFound))
	assert.False(t, HasCode(errors.New("plain"), CodeSimNotFound))
}

func TestSecretTooShortMessage(t *testing.T) {
	err := ErrSecretTooShort(32)
	assert.Contains(t, err.Message, "32")
}
