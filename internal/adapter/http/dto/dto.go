package dto

import (
	"time"

	"sim-provisioning-notifier/internal/core/domain"
)

// TransitionRequest is the optional body of the SIM transition endpoints.
// Reason is required for block; TargetStatus is read only by unblock.
// Notes are stored verbatim and only escaped by the JSON encoder on output.
type TransitionRequest struct {
	Reason        *string `json:"reason,omitempty" binding:"omitempty,max=32"`
	Notes         *string `json:"notes,omitempty" binding:"omitempty,max=1000" sanitize:"trim"`
	CorrelationID *string `json:"correlation_id,omitempty" binding:"omitempty,max=128,safe_id"`
	TargetStatus  *string `json:"target_status,omitempty" binding:"omitempty,max=16"`
}

// RegisterWebhookRequest is the request body for webhook registration.
// An empty secret asks the server to generate one.
type RegisterWebhookRequest struct {
	URL    string   `json:"url" binding:"required,max=2048" sanitize:"trim"`
	Events []string `json:"events" binding:"required,min=1,dive,required,max=32"`
	Secret string   `json:"secret,omitempty" binding:"omitempty,max=256" sanitize:"-"`
}

// SimResponse is the public view of a SIM.
type SimResponse struct {
	ID          string  `json:"id"`
	ICCID       string  `json:"iccid"`
	Status      string  `json:"status"`
	BlockReason *string `json:"block_reason,omitempty"`
	BlockNotes  *string `json:"block_notes,omitempty"`
	BlockedAt   *string `json:"blocked_at,omitempty"`
	BlockedBy   *string `json:"blocked_by,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// NewSimResponse converts a domain SIM.
func NewSimResponse(s *domain.Sim) SimResponse {
	resp := SimResponse{
		ID:         s.ID.String(),
		ICCID:      s.ICCID,
		Status:     string(s.Status),
		BlockNotes: s.BlockNotes,
		BlockedAt:  formatTime(s.BlockedAt),
		BlockedBy:  s.BlockedBy,
		CreatedAt:  s.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  s.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if s.BlockReason != nil {
		r := string(*s.BlockReason)
		resp.BlockReason = &r
	}
	return resp
}

// WebhookResponse is the public view of a webhook. The secret is never included.
type WebhookResponse struct {
	WebhookID      string   `json:"webhook_id"`
	URL            string   `json:"url"`
	Events         []string `json:"events"`
	Status         string   `json:"status"`
	FailureCount   int      `json:"failure_count"`
	LastDeliveryAt *string  `json:"last_delivery_at,omitempty"`
	LastSuccessAt  *string  `json:"last_success_at,omitempty"`
	LastFailureAt  *string  `json:"last_failure_at,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// RegisteredWebhookResponse adds the plaintext secret, shown once at registration.
type RegisteredWebhookResponse struct {
	WebhookResponse
	Secret string `json:"secret"`
}

// NewWebhookResponse converts a domain webhook.
func NewWebhookResponse(w *domain.Webhook) WebhookResponse {
	events := make([]string, len(w.Events))
	for i, e := range w.Events {
		events[i] = string(e)
	}
	return WebhookResponse{
		WebhookID:      w.ID.String(),
		URL:            w.URL,
		Events:         events,
		Status:         string(w.Status),
		FailureCount:   w.FailureCount,
		LastDeliveryAt: formatTime(w.LastDeliveryAt),
		LastSuccessAt:  formatTime(w.LastSuccessAt),
		LastFailureAt:  formatTime(w.LastFailureAt),
		CreatedAt:      w.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// DeliveryResponse is one ledger row. The payload is omitted.
type DeliveryResponse struct {
	ID             string  `json:"id"`
	EventID        string  `json:"event_id"`
	EventType      string  `json:"event_type"`
	Status         string  `json:"status"`
	AttemptCount   int     `json:"attempt_count"`
	ResponseCode   *int    `json:"response_code,omitempty"`
	ResponseTimeMs *int64  `json:"response_time_ms,omitempty"`
	LastError      *string `json:"last_error,omitempty"`
	NextRetryAt    *string `json:"next_retry_at,omitempty"`
	DeliveredAt    *string `json:"delivered_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

// NewDeliveryResponse converts a delivery record.
func NewDeliveryResponse(d *domain.DeliveryRecord) DeliveryResponse {
	return DeliveryResponse{
		ID:             d.ID.String(),
		EventID:        d.EventID.String(),
		EventType:      string(d.EventType),
		Status:         string(d.Status),
		AttemptCount:   d.AttemptCount,
		ResponseCode:   d.ResponseCode,
		ResponseTimeMs: d.ResponseTimeMs,
		LastError:      d.LastError,
		NextRetryAt:    formatTime(d.NextRetryAt),
		DeliveredAt:    formatTime(d.DeliveredAt),
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListResponse wraps a list endpoint's items.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Count int `json:"count"`
}

// NewListResponse builds a list envelope, never with a null items array.
func NewListResponse[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Items: items, Count: len(items)}
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
