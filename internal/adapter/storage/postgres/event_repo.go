package postgres

import (
	"context"
	"fmt"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventRepo implements ports.EventRepository. Rows are append-only.
type EventRepo struct {
	pool Pool
}

// NewEventRepo creates a new EventRepo.
func NewEventRepo(pool Pool) *EventRepo {
	return &EventRepo{pool: pool}
}

// Create appends event to the log inside tx. payload is the exact serialized
// form sent to subscribers.
func (r *EventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.DomainEvent, payload []byte) error {
	query := `INSERT INTO sim_events (event_id, sim_id, iccid, event_type, previous_status, new_status,
		reason, initiated_by, correlation_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		e.EventID, e.Sim.SimID, e.Sim.ICCID, e.EventType, e.PreviousStatus, e.NewStatus,
		e.Reason, e.InitiatedBy, e.CorrelationID, string(payload), e.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert sim event: %w", err)
	}
	return nil
}

// ListBySim returns the newest events for a SIM first.
func (r *EventRepo) ListBySim(ctx context.Context, simID uuid.UUID, limit int) ([]domain.DomainEvent, error) {
	query := `SELECT event_id, event_type, occurred_at, sim_id, iccid, previous_status, new_status,
		reason, initiated_by, correlation_id
		FROM sim_events WHERE sim_id = $1
		ORDER BY occurred_at DESC, event_id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, simID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sim events: %w", err)
	}
	defer rows.Close()

	var events []domain.DomainEvent
	for rows.Next() {
		var e domain.DomainEvent
		if err := rows.Scan(
			&e.EventID, &e.EventType, &e.Timestamp, &e.Sim.SimID, &e.Sim.ICCID,
			&e.PreviousStatus, &e.NewStatus, &e.Reason, &e.InitiatedBy, &e.CorrelationID,
		); err != nil {
			return nil, fmt.Errorf("scan sim event row: %w", err)
		}
		e.Timestamp = e.Timestamp.UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sim event rows: %w", err)
	}
	return events, nil
}
