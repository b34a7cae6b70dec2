package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// MinWebhookSecretLength is the shortest caller-supplied secret accepted.
	MinWebhookSecretLength = 32
	generatedSecretBytes   = 32

	defaultDeliveryListLimit = 50
	maxDeliveryListLimit     = 200
)

// RegistryServiceImpl implements ports.WebhookRegistry.
type RegistryServiceImpl struct {
	webhookRepo  ports.WebhookRepository
	deliveryRepo ports.DeliveryRepository
	hashSvc      ports.HashService
	encSvc       ports.EncryptionService
	cache        ports.SubscriptionCache
	log          zerolog.Logger
	now          func() time.Time
}

// NewRegistryService creates a new RegistryServiceImpl. cache may be nil.
func NewRegistryService(
	webhookRepo ports.WebhookRepository,
	deliveryRepo ports.DeliveryRepository,
	hashSvc ports.HashService,
	encSvc ports.EncryptionService,
	cache ports.SubscriptionCache,
	log zerolog.Logger,
) *RegistryServiceImpl {
	return &RegistryServiceImpl{
		webhookRepo:  webhookRepo,
		deliveryRepo: deliveryRepo,
		hashSvc:      hashSvc,
		encSvc:       encSvc,
		cache:        cache,
		log:          log,
		now:          time.Now,
	}
}

// Register validates and stores a new subscription. The raw secret is
// returned once and only its hash and sealed envelope are persisted.
func (s *RegistryServiceImpl) Register(ctx context.Context, req ports.RegisterWebhookRequest) (*ports.RegisteredWebhook, error) {
	if err := validateWebhookURL(req.URL); err != nil {
		return nil, err
	}
	events, err := normalizeEventTypes(req.Events)
	if err != nil {
		return nil, err
	}

	secret := req.Secret
	if secret == "" {
		if secret, err = generateSecret(); err != nil {
			return nil, apperror.InternalError(err)
		}
	} else if len(secret) < MinWebhookSecretLength {
		return nil, apperror.ErrSecretTooShort(MinWebhookSecretLength)
	}

	secretHash, err := s.hashSvc.Hash(secret)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash secret: %w", err))
	}
	secretEnc, err := s.encSvc.Encrypt(secret)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("seal secret: %w", err))
	}

	now := s.now().UTC()
	webhook := &domain.Webhook{
		ID:         uuid.New(),
		OwnerID:    req.OwnerID,
		URL:        req.URL,
		Events:     events,
		SecretHash: secretHash,
		SecretEnc:  secretEnc,
		Status:     domain.WebhookStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.webhookRepo.Create(ctx, webhook); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create webhook: %w", err))
	}
	s.invalidate(ctx, webhook.Events)

	s.log.Info().
		Str("webhook_id", webhook.ID.String()).
		Str("owner_id", req.OwnerID.String()).
		Int("events", len(events)).
		Msg("webhook registered")

	return &ports.RegisteredWebhook{Webhook: webhook, Secret: secret}, nil
}

// List returns the owner's subscriptions.
func (s *RegistryServiceImpl) List(ctx context.Context, ownerID uuid.UUID) ([]domain.Webhook, error) {
	webhooks, err := s.webhookRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list webhooks: %w", err))
	}
	return webhooks, nil
}

// Get returns one subscription. Another owner's webhook is reported as not found.
func (s *RegistryServiceImpl) Get(ctx context.Context, id, ownerID uuid.UUID) (*domain.Webhook, error) {
	webhook, err := s.webhookRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get webhook: %w", err))
	}
	if webhook == nil || webhook.OwnerID != ownerID {
		return nil, apperror.ErrWebhookNotFound()
	}
	return webhook, nil
}

// Delete removes an owned subscription.
func (s *RegistryServiceImpl) Delete(ctx context.Context, id, ownerID uuid.UUID) error {
	deleted, err := s.webhookRepo.Delete(ctx, id, ownerID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("delete webhook: %w", err))
	}
	if deleted == nil {
		return apperror.ErrWebhookNotFound()
	}
	s.invalidate(ctx, deleted.Events)

	s.log.Info().Str("webhook_id", id.String()).Msg("webhook deleted")
	return nil
}

// SetStatus pauses or resumes a subscription. Resuming resets failure_count
// and is the way out of FAILED.
func (s *RegistryServiceImpl) SetStatus(ctx context.Context, id, ownerID uuid.UUID, status domain.WebhookStatus) (*domain.Webhook, error) {
	if status != domain.WebhookStatusActive && status != domain.WebhookStatusPaused {
		return nil, apperror.Validation(fmt.Sprintf("webhook status cannot be set to %s", status))
	}

	webhook, err := s.webhookRepo.UpdateStatus(ctx, id, ownerID, status)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update webhook status: %w", err))
	}
	if webhook == nil {
		return nil, apperror.ErrWebhookNotFound()
	}
	s.invalidate(ctx, webhook.Events)

	s.log.Info().
		Str("webhook_id", id.String()).
		Str("status", string(status)).
		Msg("webhook status changed")
	return webhook, nil
}

// ListDeliveries exposes the ledger rows of an owned subscription.
func (s *RegistryServiceImpl) ListDeliveries(ctx context.Context, id, ownerID uuid.UUID, limit int) ([]domain.DeliveryRecord, error) {
	if _, err := s.Get(ctx, id, ownerID); err != nil {
		return nil, err
	}
	records, err := s.deliveryRepo.ListByWebhook(ctx, id, clampLimit(limit, defaultDeliveryListLimit, maxDeliveryListLimit))
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list deliveries: %w", err))
	}
	return records, nil
}

func (s *RegistryServiceImpl) invalidate(ctx context.Context, events []domain.EventType) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, events...); err != nil {
		s.log.Warn().Err(err).Msg("failed to invalidate subscription cache")
	}
}

func validateWebhookURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme != "https" || parsed.Hostname() == "" {
		return apperror.ErrInvalidWebhookURL("Webhook URL must be an absolute https URL with a host")
	}
	if parsed.User != nil {
		return apperror.ErrInvalidWebhookURL("Webhook URL must not carry credentials")
	}
	return nil
}

// normalizeEventTypes rejects empty or unknown sets and drops duplicates.
func normalizeEventTypes(events []domain.EventType) ([]domain.EventType, error) {
	if len(events) == 0 {
		return nil, apperror.ErrInvalidEventType("At least one event type is required")
	}
	seen := make(map[domain.EventType]bool, len(events))
	out := make([]domain.EventType, 0, len(events))
	for _, e := range events {
		if !e.IsValid() {
			return nil, apperror.ErrInvalidEventType(fmt.Sprintf("Unknown event type: %s", e))
		}
		if seen[e] {
			continue
		}
		seen[e] = true
		out = append(out, e)
	}
	return out, nil
}

func generateSecret() (string, error) {
	buf := make([]byte, generatedSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating webhook secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
