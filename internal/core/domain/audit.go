package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionActivate        AuditAction = "SIM_ACTIVATE"
	AuditActionDeactivate      AuditAction = "SIM_DEACTIVATE"
	AuditActionBlock           AuditAction = "SIM_BLOCK"
	AuditActionUnblock         AuditAction = "SIM_UNBLOCK"
	AuditActionRegisterWebhook AuditAction = "WEBHOOK_REGISTER"
	AuditActionDeleteWebhook   AuditAction = "WEBHOOK_DELETE"
	AuditActionPauseWebhook    AuditAction = "WEBHOOK_PAUSE"
	AuditActionResumeWebhook   AuditAction = "WEBHOOK_RESUME"
)

// AuditLog records a single audited API call.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	OwnerID      *uuid.UUID  `json:"owner_id,omitempty"`
	Actor        string      `json:"actor,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
