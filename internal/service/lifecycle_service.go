package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/internal/metrics"
	"sim-provisioning-notifier/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	defaultEventListLimit = 50
	maxEventListLimit     = 200
)

// LifecycleServiceImpl implements ports.LifecycleService.
type LifecycleServiceImpl struct {
	simRepo    ports.SimRepository
	eventRepo  ports.EventRepository
	emitter    ports.EventEmitter
	transactor ports.DBTransactor
	log        zerolog.Logger
	now        func() time.Time
}

// NewLifecycleService creates a new LifecycleServiceImpl.
func NewLifecycleService(
	simRepo ports.SimRepository,
	eventRepo ports.EventRepository,
	emitter ports.EventEmitter,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LifecycleServiceImpl {
	return &LifecycleServiceImpl{
		simRepo:    simRepo,
		eventRepo:  eventRepo,
		emitter:    emitter,
		transactor: transactor,
		log:        log,
		now:        time.Now,
	}
}

// Transition validates and applies a SIM status change. The status update,
// the domain event and its delivery records commit together or not at all.
func (s *LifecycleServiceImpl) Transition(ctx context.Context, req ports.TransitionRequest) (*domain.Sim, error) {
	sim, err := s.transition(ctx, req)
	metrics.TransitionsTotal.WithLabelValues(string(req.Target), transitionResult(err)).Inc()
	return sim, err
}

func (s *LifecycleServiceImpl) transition(ctx context.Context, req ports.TransitionRequest) (*domain.Sim, error) {
	if !req.Target.IsValid() {
		return nil, apperror.ErrInvalidTargetStatus(string(req.Target))
	}
	// Reason is checked before the SIM is read so a reasonless block fails
	// regardless of the current status.
	if req.Target == domain.SimStatusBlocked {
		if req.Reason == nil || *req.Reason == "" {
			return nil, apperror.ErrBlockReasonRequired()
		}
		if !req.Reason.IsValid() {
			return nil, apperror.ErrInvalidBlockReason(string(*req.Reason))
		}
	}
	initiator := req.InitiatedBy
	if initiator == "" {
		initiator = domain.InitiatorAPI
	}
	if !initiator.IsValid() {
		return nil, apperror.Validation(fmt.Sprintf("invalid initiator: %s", initiator))
	}

	sim, err := s.simRepo.GetByID(ctx, req.SimID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get sim: %w", err))
	}
	if sim == nil {
		return nil, apperror.ErrSimNotFound()
	}

	previous := sim.Status
	if (req.From != "" && previous != req.From) || !domain.CanTransition(previous, req.Target) {
		return nil, apperror.ErrInvalidStateTransition(string(previous), string(req.Target))
	}

	now := s.now().UTC()
	var (
		blockReason *domain.BlockReason
		blockNotes  *string
		eventReason *string
	)
	if req.Target == domain.SimStatusBlocked {
		blockReason = req.Reason
		blockNotes = req.Notes
		r := string(*req.Reason)
		eventReason = &r
	} else if req.Notes != nil && *req.Notes != "" {
		eventReason = req.Notes
	}
	updated := sim.WithStatus(req.Target, blockReason, blockNotes, req.Actor, now)

	event, err := domain.NewDomainEvent(updated, previous, eventReason, initiator, req.CorrelationID, now)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	payload, err := event.Marshal()
	if err != nil {
		return nil, apperror.InternalError(err)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	applied, err := s.simRepo.UpdateStatus(ctx, dbTx, &updated, previous)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update sim status: %w", err))
	}
	if !applied {
		return nil, apperror.ErrTransitionConflict()
	}

	if err := s.eventRepo.Create(ctx, dbTx, event, payload); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert event: %w", err))
	}

	deliveryIDs, err := s.emitter.Emit(ctx, dbTx, event, payload)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("fan out event: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.emitter.Release(ctx, event, payload, deliveryIDs)

	s.log.Info().
		Str("sim_id", updated.ID.String()).
		Str("event_id", event.EventID.String()).
		Str("event_type", string(event.EventType)).
		Str("from", string(previous)).
		Str("to", string(updated.Status)).
		Int("deliveries", len(deliveryIDs)).
		Msg("sim transitioned")

	return &updated, nil
}

// GetSim returns a SIM by id.
func (s *LifecycleServiceImpl) GetSim(ctx context.Context, id uuid.UUID) (*domain.Sim, error) {
	sim, err := s.simRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get sim: %w", err))
	}
	if sim == nil {
		return nil, apperror.ErrSimNotFound()
	}
	return sim, nil
}

// ListEvents returns the most recent events for a SIM, newest first.
func (s *LifecycleServiceImpl) ListEvents(ctx context.Context, simID uuid.UUID, limit int) ([]domain.DomainEvent, error) {
	if _, err := s.GetSim(ctx, simID); err != nil {
		return nil, err
	}
	events, err := s.eventRepo.ListBySim(ctx, simID, clampLimit(limit, defaultEventListLimit, maxEventListLimit))
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list events: %w", err))
	}
	return events, nil
}

func transitionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case apperror.HasCode(err, apperror.CodeTransitionConflict):
		return "conflict"
	case apperror.HasCode(err, apperror.CodeDatabaseError), apperror.HasCode(err, apperror.CodeInternalError):
		return "error"
	default:
		return "rejected"
	}
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
