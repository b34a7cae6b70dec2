package dto

import (
	"encoding/json"
	"testing"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_EscapesReason(t *testing.T) {
	reason := " <STOLEN> "
	req := TransitionRequest{Reason: &reason}
	SanitizeStruct(&req)

	assert.Equal(t, "&lt;STOLEN&gt;", *req.Reason)
}

func TestSanitizeStruct_NotesOnlyTrimmed(t *testing.T) {
	notes := "  lost at Smith & Sons <store 4>  "
	req := TransitionRequest{Notes: &notes}
	SanitizeStruct(&req)

	assert.Equal(t, "lost at Smith & Sons <store 4>", *req.Notes)
}

func TestSanitizeStruct_URLOnlyTrimmed(t *testing.T) {
	req := RegisterWebhookRequest{
		URL:    "  https://example.com/hook?a=1&b=2  ",
		Events: []string{" SIM_BLOCKED ", "SIM_UNBLOCKED"},
		Secret: "  s3cr3t&<kept>  ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "https://example.com/hook?a=1&b=2", req.URL)
	assert.Equal(t, []string{"SIM_BLOCKED", "SIM_UNBLOCKED"}, req.Events)
	assert.Equal(t, "  s3cr3t&<kept>  ", req.Secret, "secrets are never rewritten")
}

func TestSanitizeStruct_NilPointerIsNoOp(t *testing.T) {
	req := TransitionRequest{}
	SanitizeStruct(&req)
	assert.Nil(t, req.Reason)
	assert.Nil(t, req.Notes)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestSafeID_Valid(t *testing.T) {
	cases := []string{
		"ref-001",
		"REF_002",
		"a.b.c",
		"crm:ticket-42",
		"ABC-def_GHI.123",
	}
	for _, tc := range cases {
		assert.True(t, safeStringRe.MatchString(tc), "expected valid: %s", tc)
	}
}

func TestSafeID_Invalid(t *testing.T) {
	cases := []string{
		"ref 001",     // space
		"ref<001>",    // angle brackets
		"ref;DROP",    // semicolon
		"",            // empty
		"hello world", // space
		"ref\n001",    // newline
	}
	for _, tc := range cases {
		assert.False(t, safeStringRe.MatchString(tc), "expected invalid: %s", tc)
	}
}

func TestTransitionRequest_Binding(t *testing.T) {
	good := "corr-1"
	assert.NoError(t, binding.Validator.ValidateStruct(&TransitionRequest{CorrelationID: &good}))

	bad := "corr 1"
	assert.Error(t, binding.Validator.ValidateStruct(&TransitionRequest{CorrelationID: &bad}))
}

func TestRegisterWebhookRequest_Binding(t *testing.T) {
	assert.NoError(t, binding.Validator.ValidateStruct(&RegisterWebhookRequest{
		URL:    "https://example.com/hook",
		Events: []string{"SIM_BLOCKED"},
	}))
	assert.Error(t, binding.Validator.ValidateStruct(&RegisterWebhookRequest{
		URL: "https://example.com/hook",
	}), "events are required")
	assert.Error(t, binding.Validator.ValidateStruct(&RegisterWebhookRequest{
		Events: []string{"SIM_BLOCKED"},
	}), "url is required")
}

// --- Response mapping ---

func TestNewSimResponse_Blocked(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	reason := domain.BlockReasonLost
	by := "API"
	sim := &domain.Sim{
		ID:          uuid.New(),
		ICCID:       "8944500102198304826",
		Status:      domain.SimStatusBlocked,
		BlockReason: &reason,
		BlockedAt:   &at,
		BlockedBy:   &by,
		CreatedAt:   at,
		UpdatedAt:   at,
	}

	resp := NewSimResponse(sim)
	assert.Equal(t, "BLOCKED", resp.Status)
	require.NotNil(t, resp.BlockReason)
	assert.Equal(t, "LOST", *resp.BlockReason)
	assert.Equal(t, "2026-03-01T10:00:00Z", *resp.BlockedAt)
}

func TestNewWebhookResponse_OmitsSecret(t *testing.T) {
	w := &domain.Webhook{
		ID:         uuid.New(),
		URL:        "https://example.com/hook",
		Events:     []domain.EventType{domain.EventSimBlocked},
		SecretHash: "hash",
		SecretEnc:  "enc",
		Status:     domain.WebhookStatusActive,
		CreatedAt:  time.Now(),
	}

	b, err := json.Marshal(NewWebhookResponse(w))
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.Contains(t, string(b), `"webhook_id":"`+w.ID.String()+`"`)
	assert.Contains(t, string(b), `"events":["SIM_BLOCKED"]`)
}

func TestNewListResponse_NeverNull(t *testing.T) {
	b, err := json.Marshal(NewListResponse[DeliveryResponse](nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"items":[],"count":0}`, string(b))
}
