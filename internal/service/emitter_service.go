package service

import (
	"context"
	"fmt"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/internal/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const defaultPublishTimeout = 5 * time.Second

// EventEmitterImpl implements ports.EventEmitter.
// cache, dispatcher and publisher are optional.
type EventEmitterImpl struct {
	webhookRepo    ports.WebhookRepository
	deliveryRepo   ports.DeliveryRepository
	cache          ports.SubscriptionCache
	dispatcher     ports.DeliveryDispatcher
	publisher      ports.EventPublisher
	publishTimeout time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

// NewEventEmitter creates a new EventEmitterImpl.
func NewEventEmitter(
	webhookRepo ports.WebhookRepository,
	deliveryRepo ports.DeliveryRepository,
	cache ports.SubscriptionCache,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *EventEmitterImpl {
	return &EventEmitterImpl{
		webhookRepo:    webhookRepo,
		deliveryRepo:   deliveryRepo,
		cache:          cache,
		publisher:      publisher,
		publishTimeout: defaultPublishTimeout,
		log:            log,
		now:            time.Now,
	}
}

// SetDispatcher attaches the dispatcher that receives released delivery ids.
// The dispatcher is built after the emitter, so it is wired separately.
func (e *EventEmitterImpl) SetDispatcher(d ports.DeliveryDispatcher) {
	e.dispatcher = d
}

// Emit inserts one PENDING delivery record per active subscription inside tx.
// Candidate ids come from the cache or a database read and are re-checked
// against the webhooks table within tx, so a paused, deleted or FAILED
// subscription never receives a record. No match means no records.
func (e *EventEmitterImpl) Emit(ctx context.Context, tx pgx.Tx, event *domain.DomainEvent, payload []byte) ([]uuid.UUID, error) {
	candidates, err := e.subscribers(ctx, event.EventType)
	if err != nil {
		return nil, err
	}
	webhookIDs := candidates
	if len(candidates) > 0 {
		webhookIDs, err = e.webhookRepo.FilterActive(ctx, tx, event.EventType, candidates)
		if err != nil {
			return nil, err
		}
	}

	now := e.now().UTC()
	ids := make([]uuid.UUID, 0, len(webhookIDs))
	for _, webhookID := range webhookIDs {
		rec := domain.NewDeliveryRecord(webhookID, event, payload, now)
		if err := e.deliveryRepo.Create(ctx, tx, rec); err != nil {
			return nil, fmt.Errorf("create delivery for webhook %s: %w", webhookID, err)
		}
		ids = append(ids, rec.ID)
	}

	metrics.DeliveriesFannedOut.WithLabelValues(string(event.EventType)).Add(float64(len(ids)))
	return ids, nil
}

// Release hands committed delivery ids to the dispatcher and mirrors the
// event to the stream. Neither step blocks the caller.
func (e *EventEmitterImpl) Release(ctx context.Context, event *domain.DomainEvent, payload []byte, deliveryIDs []uuid.UUID) {
	if len(deliveryIDs) > 0 && e.dispatcher != nil {
		e.dispatcher.Dispatch(deliveryIDs...)
	}
	if e.publisher == nil {
		return
	}

	pubCtx := context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(pubCtx, e.publishTimeout)
		defer cancel()
		if err := e.publisher.Publish(ctx, event, payload); err != nil {
			e.log.Warn().Err(err).
				Str("event_id", event.EventID.String()).
				Msg("failed to mirror event to stream")
		}
	}()
}

// subscribers resolves candidate webhook ids for t, reading through the cache.
// Cache failures fall back to the database.
func (e *EventEmitterImpl) subscribers(ctx context.Context, t domain.EventType) ([]uuid.UUID, error) {
	var (
		gen      int64
		populate bool
	)
	if e.cache != nil {
		ids, ok, err := e.cache.Get(ctx, t)
		switch {
		case err != nil:
			metrics.SubscriptionCacheLookups.WithLabelValues("error").Inc()
			e.log.Warn().Err(err).Str("event_type", string(t)).Msg("subscription cache read failed, falling through to DB")
		case ok:
			metrics.SubscriptionCacheLookups.WithLabelValues("hit").Inc()
			return ids, nil
		default:
			metrics.SubscriptionCacheLookups.WithLabelValues("miss").Inc()
		}

		// Read before the database load so an invalidation in between wins.
		if gen, err = e.cache.Generation(ctx, t); err != nil {
			e.log.Warn().Err(err).Str("event_type", string(t)).Msg("subscription cache generation read failed, not populating")
		} else {
			populate = true
		}
	}

	webhooks, err := e.webhookRepo.ListActiveByEvent(ctx, t)
	if err != nil {
		return nil, fmt.Errorf("list active webhooks: %w", err)
	}
	ids := make([]uuid.UUID, 0, len(webhooks))
	for _, w := range webhooks {
		ids = append(ids, w.ID)
	}

	if populate {
		if err := e.cache.Set(ctx, t, gen, ids); err != nil {
			e.log.Warn().Err(err).Str("event_type", string(t)).Msg("failed to populate subscription cache")
		}
	}
	return ids, nil
}
