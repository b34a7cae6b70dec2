package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const webhookColumns = `id, owner_id, url, events, secret_hash, secret_enc, status, failure_count,
	last_delivery_at, last_success_at, last_failure_at, created_at, updated_at`

type webhookRepo struct {
	pool Pool
}

// NewWebhookRepository creates a PostgreSQL-backed WebhookRepository.
func NewWebhookRepository(pool Pool) ports.WebhookRepository {
	return &webhookRepo{pool: pool}
}

func (r *webhookRepo) Create(ctx context.Context, w *domain.Webhook) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO webhooks (`+webhookColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		w.ID, w.OwnerID, w.URL, eventsToText(w.Events), w.SecretHash, w.SecretEnc,
		w.Status, w.FailureCount, w.LastDeliveryAt, w.LastSuccessAt, w.LastFailureAt,
		w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook: %w", err)
	}
	return nil
}

func (r *webhookRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Webhook, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+webhookColumns+` FROM webhooks WHERE id = $1`, id)
	return scanWebhook(row, "get webhook by id")
}

func (r *webhookRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.Webhook, error) {
	return r.list(ctx, "list webhooks by owner",
		`SELECT `+webhookColumns+` FROM webhooks WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
}

// ListActiveByEvent is the subscription match: ACTIVE webhooks whose event
// set contains eventType.
func (r *webhookRepo) ListActiveByEvent(ctx context.Context, eventType domain.EventType) ([]domain.Webhook, error) {
	return r.list(ctx, "list active webhooks by event",
		`SELECT `+webhookColumns+` FROM webhooks
		 WHERE status = 'ACTIVE' AND events @> ARRAY[$1]::text[]
		 ORDER BY created_at, id`, string(eventType))
}

// FilterActive re-checks candidate ids inside the transition transaction.
// FOR SHARE holds off a concurrent pause, delete or FAILED flip until commit.
func (r *webhookRepo) FilterActive(ctx context.Context, tx pgx.Tx, eventType domain.EventType, ids []uuid.UUID) ([]uuid.UUID, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := tx.Query(ctx,
		`SELECT id FROM webhooks
		 WHERE id = ANY($1) AND status = 'ACTIVE' AND events @> ARRAY[$2]::text[]
		 FOR SHARE`, ids, string(eventType))
	if err != nil {
		return nil, fmt.Errorf("filter active webhooks: %w", err)
	}
	defer rows.Close()

	active := make(map[uuid.UUID]struct{}, len(ids))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("filter active webhooks: %w", err)
		}
		active[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter active webhooks: iterate rows: %w", err)
	}

	out := make([]uuid.UUID, 0, len(active))
	for _, id := range ids {
		if _, ok := active[id]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *webhookRepo) Delete(ctx context.Context, id, ownerID uuid.UUID) (*domain.Webhook, error) {
	row := r.pool.QueryRow(ctx,
		`DELETE FROM webhooks WHERE id = $1 AND owner_id = $2 RETURNING `+webhookColumns, id, ownerID)
	return scanWebhook(row, "delete webhook")
}

func (r *webhookRepo) UpdateStatus(ctx context.Context, id, ownerID uuid.UUID, status domain.WebhookStatus) (*domain.Webhook, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE webhooks
		 SET status = $1, failure_count = CASE WHEN $2 THEN 0 ELSE failure_count END, updated_at = $3
		 WHERE id = $4 AND owner_id = $5
		 RETURNING `+webhookColumns,
		status, status == domain.WebhookStatusActive, time.Now().UTC(), id, ownerID)
	return scanWebhook(row, "update webhook status")
}

func (r *webhookRepo) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhooks
		 SET failure_count = 0, last_delivery_at = $1, last_success_at = $1, updated_at = $1
		 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("record webhook success: %w", err)
	}
	return nil
}

func (r *webhookRepo) RecordAttemptFailure(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE webhooks
		 SET last_delivery_at = $1, last_failure_at = $1, updated_at = $1
		 WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("record webhook attempt failure: %w", err)
	}
	return nil
}

// RecordAbandonment bumps failure_count and applies the FAILED threshold in
// one statement, so concurrent workers cannot lose an increment. The row lock
// taken by prev makes the returned prior status exact under contention.
func (r *webhookRepo) RecordAbandonment(ctx context.Context, id uuid.UUID, threshold int, at time.Time) (*ports.WebhookCounters, error) {
	var counters ports.WebhookCounters
	err := r.pool.QueryRow(ctx,
		`WITH prev AS (SELECT status FROM webhooks WHERE id = $1 FOR UPDATE)
		 UPDATE webhooks AS w
		 SET failure_count = w.failure_count + 1,
		     status = CASE WHEN w.failure_count + 1 >= $2 THEN 'FAILED' ELSE w.status END,
		     last_delivery_at = $3, last_failure_at = $3, updated_at = $3
		 FROM prev
		 WHERE w.id = $1
		 RETURNING w.failure_count, w.status, prev.status`, id, threshold, at,
	).Scan(&counters.FailureCount, &counters.Status, &counters.PreviousStatus)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("record webhook abandonment: webhook %s not found", id)
		}
		return nil, fmt.Errorf("record webhook abandonment: %w", err)
	}
	return &counters, nil
}

func (r *webhookRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.Webhook, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var hooks []domain.Webhook
	for rows.Next() {
		w, err := scanWebhook(rows, op)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: iterate rows: %w", op, err)
	}
	return hooks, nil
}

// scanWebhook reads one row in webhookColumns order. Returns nil, nil on no rows.
func scanWebhook(row pgx.Row, op string) (*domain.Webhook, error) {
	w := &domain.Webhook{}
	var events []string
	err := row.Scan(
		&w.ID, &w.OwnerID, &w.URL, &events, &w.SecretHash, &w.SecretEnc, &w.Status, &w.FailureCount,
		&w.LastDeliveryAt, &w.LastSuccessAt, &w.LastFailureAt, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	w.Events = textToEvents(events)
	return w, nil
}

func eventsToText(events []domain.EventType) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = string(e)
	}
	return out
}

func textToEvents(values []string) []domain.EventType {
	out := make([]domain.EventType, len(values))
	for i, v := range values {
		out[i] = domain.EventType(v)
	}
	return out
}
