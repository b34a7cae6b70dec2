package ports

import (
	"context"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// SimRepository defines persistence operations for SIM resources.
type SimRepository interface {
	Create(ctx context.Context, sim *domain.Sim) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Sim, error)
	// UpdateStatus writes sim's status and block metadata only if the stored
	// status still equals expected. Returns false when no row matched.
	UpdateStatus(ctx context.Context, tx pgx.Tx, sim *domain.Sim, expected domain.SimStatus) (bool, error)
}

// EventRepository persists the immutable domain event log.
type EventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.DomainEvent, payload []byte) error
	ListBySim(ctx context.Context, simID uuid.UUID, limit int) ([]domain.DomainEvent, error)
}

// WebhookRepository defines persistence operations for webhook subscriptions.
// Counter updates are single statements so concurrent workers never lose increments.
type WebhookRepository interface {
	Create(ctx context.Context, webhook *domain.Webhook) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Webhook, error)
	ListActiveByEvent(ctx context.Context, eventType domain.EventType) ([]domain.Webhook, error)
	// FilterActive returns the ids, in input order, that are still ACTIVE
	// subscribers of eventType as seen by tx.
	FilterActive(ctx context.Context, tx pgx.Tx, eventType domain.EventType, ids []uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) (*domain.Webhook, error)
	// UpdateStatus sets status for an owned webhook. Moving to ACTIVE resets failure_count.
	UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, status domain.WebhookStatus) (*domain.Webhook, error)
	RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error
	RecordAttemptFailure(ctx context.Context, id uuid.UUID, at time.Time) error
	// RecordAbandonment increments failure_count and flips status to FAILED once
	// it reaches threshold, returning the new values and the prior status.
	RecordAbandonment(ctx context.Context, id uuid.UUID, threshold int, at time.Time) (*WebhookCounters, error)
}

// WebhookCounters is the post-update state returned by RecordAbandonment.
type WebhookCounters struct {
	FailureCount   int
	Status         domain.WebhookStatus
	PreviousStatus domain.WebhookStatus
}

// BecameFailed reports whether this update is the one that flipped the
// subscription to FAILED.
func (c WebhookCounters) BecameFailed() bool {
	return c.Status == domain.WebhookStatusFailed && c.PreviousStatus != domain.WebhookStatusFailed
}

// DeliveryRepository is the durable delivery ledger.
// A claim takes a time-bounded lease on a PENDING row; Update persists the
// outcome and releases the lease.
type DeliveryRepository interface {
	Create(ctx context.Context, tx pgx.Tx, record *domain.DeliveryRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryRecord, error)
	// Claim leases one due PENDING row. Returns nil if the row is missing,
	// terminal, not yet due or leased by another worker.
	Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*domain.DeliveryRecord, error)
	// ClaimPending leases up to limit PENDING rows with next_retry_at <= before.
	ClaimPending(ctx context.Context, before time.Time, limit int, lease time.Duration) ([]domain.DeliveryRecord, error)
	Update(ctx context.Context, record *domain.DeliveryRecord) error
	ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.DeliveryRecord, error)
}

// AuditRepository persists audit log entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
