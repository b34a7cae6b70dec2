package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const deliveryColumns = `id, webhook_id, event_id, event_type, payload, status, attempt_count,
	response_code, response_body, response_time_ms, last_error, next_retry_at, delivered_at,
	created_at, updated_at`

// DeliveryRepo is the durable delivery ledger backed by webhook_deliveries.
// Workers lease a PENDING row through locked_until; Update releases it.
type DeliveryRepo struct {
	pool Pool
}

// NewDeliveryRepo creates a new DeliveryRepo.
func NewDeliveryRepo(pool Pool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// Create inserts a PENDING record inside the transition transaction.
func (r *DeliveryRepo) Create(ctx context.Context, tx pgx.Tx, d *domain.DeliveryRecord) error {
	query := `INSERT INTO webhook_deliveries (id, webhook_id, event_id, event_type, payload, status,
		attempt_count, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := tx.Exec(ctx, query,
		d.ID, d.WebhookID, d.EventID, d.EventType, d.Payload, d.Status,
		d.AttemptCount, d.NextRetryAt, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// GetByID fetches a delivery record by UUID. Returns nil, nil if not found.
func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE id = $1`
	return scanDelivery(r.pool.QueryRow(ctx, query, id), "get delivery by id")
}

// Claim leases a single due PENDING record. Returns nil, nil when the row is
// missing, terminal, not yet due or held by another worker.
func (r *DeliveryRepo) Claim(ctx context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*domain.DeliveryRecord, error) {
	query := `UPDATE webhook_deliveries SET locked_until = $3
		WHERE id = $1 AND status = 'PENDING' AND next_retry_at <= $2
		  AND (locked_until IS NULL OR locked_until <= $2)
		RETURNING ` + deliveryColumns

	return scanDelivery(r.pool.QueryRow(ctx, query, id, now, now.Add(lease)), "claim delivery")
}

// ClaimPending leases up to limit due PENDING records, oldest due first.
// SKIP LOCKED lets several pollers sweep the ledger without blocking each other.
func (r *DeliveryRepo) ClaimPending(ctx context.Context, before time.Time, limit int, lease time.Duration) ([]domain.DeliveryRecord, error) {
	query := `WITH due AS (
			SELECT id FROM webhook_deliveries
			WHERE status = 'PENDING' AND next_retry_at <= $1
			  AND (locked_until IS NULL OR locked_until <= $1)
			ORDER BY next_retry_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_deliveries SET locked_until = $3
		WHERE id IN (SELECT id FROM due)
		RETURNING ` + deliveryColumns

	rows, err := r.pool.Query(ctx, query, before, limit, before.Add(lease))
	if err != nil {
		return nil, fmt.Errorf("claim pending deliveries: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows, "claim pending deliveries")
}

// Update persists an attempt outcome and releases the lease.
func (r *DeliveryRepo) Update(ctx context.Context, d *domain.DeliveryRecord) error {
	query := `UPDATE webhook_deliveries
		SET status = $1, attempt_count = $2, response_code = $3, response_body = $4,
		    response_time_ms = $5, last_error = $6, next_retry_at = $7, delivered_at = $8,
		    updated_at = $9, locked_until = NULL
		WHERE id = $10`

	tag, err := r.pool.Exec(ctx, query,
		d.Status, d.AttemptCount, d.ResponseCode, d.ResponseBody,
		d.ResponseTimeMs, d.LastError, d.NextRetryAt, d.DeliveredAt,
		d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery not found: %s", d.ID)
	}
	return nil
}

// ListByWebhook returns the newest records for a webhook first.
func (r *DeliveryRepo) ListByWebhook(ctx context.Context, webhookID uuid.UUID, limit int) ([]domain.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries
		WHERE webhook_id = $1 ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, webhookID, limit)
	if err != nil {
		return nil, fmt.Errorf("list deliveries by webhook: %w", err)
	}
	defer rows.Close()
	return collectDeliveries(rows, "list deliveries by webhook")
}

func collectDeliveries(rows pgx.Rows, op string) ([]domain.DeliveryRecord, error) {
	var records []domain.DeliveryRecord
	for rows.Next() {
		d, err := scanDelivery(rows, op)
		if err != nil {
			return nil, err
		}
		records = append(records, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}
	return records, nil
}

func scanDelivery(row pgx.Row, op string) (*domain.DeliveryRecord, error) {
	d := &domain.DeliveryRecord{}
	err := row.Scan(
		&d.ID, &d.WebhookID, &d.EventID, &d.EventType, &d.Payload, &d.Status, &d.AttemptCount,
		&d.ResponseCode, &d.ResponseBody, &d.ResponseTimeMs, &d.LastError, &d.NextRetryAt, &d.DeliveredAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}
