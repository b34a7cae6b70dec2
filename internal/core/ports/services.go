package ports

import (
	"context"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// HashService handles secret hashing (Argon2id).
type HashService interface {
	Hash(secret string) (string, error)
	Verify(secret string, hash string) (bool, error)
}

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(ownerID uuid.UUID, actor string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OwnerID uuid.UUID
	Actor   string // USER or API
}

// SubscriptionCache is the read-through cache of active webhook ids per event type.
// Each entry carries a generation that Invalidate bumps, so a list read from
// the database before an invalidation is never written back after it.
type SubscriptionCache interface {
	// Get returns the cached ids and whether the key was present.
	Get(ctx context.Context, eventType domain.EventType) ([]uuid.UUID, bool, error)
	// Generation returns the current generation. Read it before loading ids.
	Generation(ctx context.Context, eventType domain.EventType) (int64, error)
	// Set stores ids only if the generation still equals gen.
	Set(ctx context.Context, eventType domain.EventType, gen int64, ids []uuid.UUID) error
	Invalidate(ctx context.Context, eventTypes ...domain.EventType) error
}

// EventPublisher mirrors committed domain events to an external stream.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.DomainEvent, payload []byte) error
	Close() error
}

// --- Service Ports (Business Logic) ---

// LifecycleService is the SIM state machine.
type LifecycleService interface {
	Transition(ctx context.Context, req TransitionRequest) (*domain.Sim, error)
	GetSim(ctx context.Context, id uuid.UUID) (*domain.Sim, error)
	ListEvents(ctx context.Context, simID uuid.UUID, limit int) ([]domain.DomainEvent, error)
}

// TransitionRequest holds validated input for a SIM status change.
type TransitionRequest struct {
	SimID         uuid.UUID
	Target        domain.SimStatus
	From          domain.SimStatus // optional: the transition only applies from this status
	Reason        *domain.BlockReason
	Notes         *string
	InitiatedBy   domain.Initiator
	Actor         string
	CorrelationID *string
}

// WebhookRegistry manages webhook subscriptions.
type WebhookRegistry interface {
	Register(ctx context.Context, req RegisterWebhookRequest) (*RegisteredWebhook, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]domain.Webhook, error)
	Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.Webhook, error)
	Delete(ctx context.Context, id, ownerID uuid.UUID) error
	SetStatus(ctx context.Context, id, ownerID uuid.UUID, status domain.WebhookStatus) (*domain.Webhook, error)
	ListDeliveries(ctx context.Context, id, ownerID uuid.UUID, limit int) ([]domain.DeliveryRecord, error)
}

// RegisterWebhookRequest holds input for webhook registration.
// An empty Secret asks the registry to generate one.
type RegisterWebhookRequest struct {
	OwnerID uuid.UUID
	URL     string
	Events  []domain.EventType
	Secret  string
}

// RegisteredWebhook is the registration result. Secret is shown only once.
type RegisteredWebhook struct {
	Webhook *domain.Webhook
	Secret  string
}

// EventEmitter fans a domain event out into delivery records.
type EventEmitter interface {
	// Emit inserts one PENDING record per active subscription inside tx.
	Emit(ctx context.Context, tx pgx.Tx, event *domain.DomainEvent, payload []byte) ([]uuid.UUID, error)
	// Release runs after commit and never blocks on delivery.
	Release(ctx context.Context, event *domain.DomainEvent, payload []byte, deliveryIDs []uuid.UUID)
}

// DeliveryDispatcher schedules delivery ids for execution by workers.
type DeliveryDispatcher interface {
	Dispatch(ids ...uuid.UUID)
}

// DeliveryEngine executes delivery attempts.
type DeliveryEngine interface {
	// Deliver claims the record by id and runs one attempt if it is due.
	Deliver(ctx context.Context, id uuid.UUID) error
	// Recover claims due PENDING records and attempts each once.
	Recover(ctx context.Context) (int, error)
}

// AuditService records audited actions.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
