package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookStatus represents whether a subscription receives fan-out.
type WebhookStatus string

const (
	WebhookStatusActive WebhookStatus = "ACTIVE"
	WebhookStatusPaused WebhookStatus = "PAUSED"
	WebhookStatusFailed WebhookStatus = "FAILED"
)

// Webhook is a subscriber endpoint registered by an owner.
// The raw secret is never stored: SecretHash verifies it, SecretEnc is the
// AES-GCM envelope used to sign deliveries.
type Webhook struct {
	ID             uuid.UUID     `json:"id"`
	OwnerID        uuid.UUID     `json:"owner_id"`
	URL            string        `json:"url"`
	Events         []EventType   `json:"events"`
	SecretHash     string        `json:"-"`
	SecretEnc      string        `json:"-"`
	Status         WebhookStatus `json:"status"`
	FailureCount   int           `json:"failure_count"`
	LastDeliveryAt *time.Time    `json:"last_delivery_at,omitempty"`
	LastSuccessAt  *time.Time    `json:"last_success_at,omitempty"`
	LastFailureAt  *time.Time    `json:"last_failure_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// IsActive returns true if the webhook should receive new events.
func (w *Webhook) IsActive() bool {
	return w.Status == WebhookStatusActive
}

// Subscribes reports whether the webhook listens for t.
func (w *Webhook) Subscribes(t EventType) bool {
	for _, e := range w.Events {
		if e == t {
			return true
		}
	}
	return false
}

// DeliveryStatus is the state of a delivery attempt record.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "PENDING"
	DeliveryStatusDelivered DeliveryStatus = "DELIVERED"
	DeliveryStatusAbandoned DeliveryStatus = "ABANDONED"
)

// DeliveryRecord tracks delivery of one event to one webhook across attempts.
type DeliveryRecord struct {
	ID             uuid.UUID      `json:"id"`
	WebhookID      uuid.UUID      `json:"webhook_id"`
	EventID        uuid.UUID      `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	Payload        string         `json:"payload"` // serialized DomainEvent
	Status         DeliveryStatus `json:"status"`
	AttemptCount   int            `json:"attempt_count"`
	ResponseCode   *int           `json:"response_code,omitempty"`
	ResponseBody   *string        `json:"response_body,omitempty"`
	ResponseTimeMs *int64         `json:"response_time_ms,omitempty"`
	LastError      *string        `json:"last_error,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewDeliveryRecord creates the PENDING record for fan-out of event to webhookID.
// It is due immediately.
func NewDeliveryRecord(webhookID uuid.UUID, event *DomainEvent, payload []byte, now time.Time) *DeliveryRecord {
	due := now
	return &DeliveryRecord{
		ID:          uuid.New(),
		WebhookID:   webhookID,
		EventID:     event.EventID,
		EventType:   event.EventType,
		Payload:     string(payload),
		Status:      DeliveryStatusPending,
		NextRetryAt: &due,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsTerminal returns true once the record will never be attempted again.
func (d *DeliveryRecord) IsTerminal() bool {
	return d.Status == DeliveryStatusDelivered || d.Status == DeliveryStatusAbandoned
}
