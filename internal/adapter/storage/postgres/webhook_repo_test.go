package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(ownerID uuid.UUID, events ...domain.EventType) *domain.Webhook {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.Webhook{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		URL:        "https://hooks.example.com/sim",
		Events:     events,
		SecretHash: "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		SecretEnc:  "bm9uY2VjaXBoZXJ0ZXh0",
		Status:     domain.WebhookStatusActive,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func webhookColumnNames() []string {
	return []string{"id", "owner_id", "url", "events", "secret_hash", "secret_enc", "status", "failure_count",
		"last_delivery_at", "last_success_at", "last_failure_at", "created_at", "updated_at"}
}

func webhookRows(hooks ...*domain.Webhook) *pgxmock.Rows {
	rows := pgxmock.NewRows(webhookColumnNames())
	for _, w := range hooks {
		rows.AddRow(w.ID, w.OwnerID, w.URL, eventsToText(w.Events), w.SecretHash, w.SecretEnc, w.Status,
			w.FailureCount, w.LastDeliveryAt, w.LastSuccessAt, w.LastFailureAt, w.CreatedAt, w.UpdatedAt)
	}
	return rows
}

func TestWebhookRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimBlocked, domain.EventSimUnblocked)

	mock.ExpectExec("INSERT INTO webhooks").
		WithArgs(w.ID, w.OwnerID, w.URL, []string{"SIM_BLOCKED", "SIM_UNBLOCKED"}, w.SecretHash, w.SecretEnc,
			w.Status, 0, w.LastDeliveryAt, w.LastSuccessAt, w.LastFailureAt, w.CreatedAt, w.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), w))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimActivated)

	mock.ExpectQuery("SELECT .+ FROM webhooks WHERE id").
		WithArgs(w.ID).
		WillReturnRows(webhookRows(w))

	result, err := repo.GetByID(context.Background(), w.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, w.URL, result.URL)
	assert.Equal(t, []domain.EventType{domain.EventSimActivated}, result.Events)
	assert.Equal(t, w.SecretEnc, result.SecretEnc)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM webhooks WHERE id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(webhookColumnNames()))

	result, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestWebhookRepo_ListByOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	ownerID := uuid.New()
	a := newTestWebhook(ownerID, domain.EventSimBlocked)
	b := newTestWebhook(ownerID, domain.AllEventTypes()...)
	b.Status = domain.WebhookStatusPaused

	mock.ExpectQuery("SELECT .+ FROM webhooks WHERE owner_id").
		WithArgs(ownerID).
		WillReturnRows(webhookRows(a, b))

	hooks, err := repo.ListByOwner(context.Background(), ownerID)
	require.NoError(t, err)
	require.Len(t, hooks, 2)
	assert.Equal(t, a.ID, hooks[0].ID)
	assert.Equal(t, domain.WebhookStatusPaused, hooks[1].Status)
	assert.Len(t, hooks[1].Events, 4)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_ListActiveByEvent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimBlocked)

	mock.ExpectQuery(`SELECT .+ FROM webhooks WHERE status = 'ACTIVE' AND events @> ARRAY\[`).
		WithArgs("SIM_BLOCKED").
		WillReturnRows(webhookRows(w))

	hooks, err := repo.ListActiveByEvent(context.Background(), domain.EventSimBlocked)
	require.NoError(t, err)
	require.Len(t, hooks, 1)
	assert.Equal(t, w.ID, hooks[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_ListActiveByEvent_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)

	mock.ExpectQuery("SELECT .+ FROM webhooks").
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	hooks, err := repo.ListActiveByEvent(context.Background(), domain.EventSimBlocked)
	assert.Nil(t, hooks)
	assert.ErrorContains(t, err, "list active webhooks by event")
}

func TestWebhookRepo_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimBlocked)

	mock.ExpectQuery("DELETE FROM webhooks WHERE id").
		WithArgs(w.ID, w.OwnerID).
		WillReturnRows(webhookRows(w))

	deleted, err := repo.Delete(context.Background(), w.ID, w.OwnerID)
	require.NoError(t, err)
	require.NotNil(t, deleted)
	assert.Equal(t, []domain.EventType{domain.EventSimBlocked}, deleted.Events)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_Delete_OtherOwner(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)

	mock.ExpectQuery("DELETE FROM webhooks WHERE id").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(webhookColumnNames()))

	deleted, err := repo.Delete(context.Background(), uuid.New(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, deleted)
}

func TestWebhookRepo_UpdateStatus_ResumeResetsFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimBlocked)

	mock.ExpectQuery("UPDATE webhooks SET status").
		WithArgs(domain.WebhookStatusActive, true, pgxmock.AnyArg(), w.ID, w.OwnerID).
		WillReturnRows(webhookRows(w))

	result, err := repo.UpdateStatus(context.Background(), w.ID, w.OwnerID, domain.WebhookStatusActive)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, result.FailureCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_UpdateStatus_PauseKeepsFailures(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	w := newTestWebhook(uuid.New(), domain.EventSimBlocked)
	w.Status = domain.WebhookStatusPaused
	w.FailureCount = 3

	mock.ExpectQuery("UPDATE webhooks SET status").
		WithArgs(domain.WebhookStatusPaused, false, pgxmock.AnyArg(), w.ID, w.OwnerID).
		WillReturnRows(webhookRows(w))

	result, err := repo.UpdateStatus(context.Background(), w.ID, w.OwnerID, domain.WebhookStatusPaused)
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookStatusPaused, result.Status)
	assert.Equal(t, 3, result.FailureCount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_RecordSuccess(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	id, at := uuid.New(), time.Now().UTC()

	mock.ExpectExec("UPDATE webhooks SET failure_count = 0").
		WithArgs(at, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.RecordSuccess(context.Background(), id, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_RecordAttemptFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	id, at := uuid.New(), time.Now().UTC()

	mock.ExpectExec("UPDATE webhooks SET last_delivery_at").
		WithArgs(at, id).
		WillReturnError(errors.New("connection reset"))

	err = repo.RecordAttemptFailure(context.Background(), id, at)
	assert.ErrorContains(t, err, "record webhook attempt failure")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_RecordAbandonment(t *testing.T) {
	tests := []struct {
		name         string
		count        int
		status       string
		prev         string
		becameFailed bool
	}{
		{"below threshold", 4, "ACTIVE", "ACTIVE", false},
		{"reaches threshold", 10, "FAILED", "ACTIVE", true},
		{"already failed", 11, "FAILED", "FAILED", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			repo := NewWebhookRepository(mock)
			id, at := uuid.New(), time.Now().UTC()

			mock.ExpectQuery(`UPDATE webhooks AS w SET failure_count = w.failure_count \+ 1`).
				WithArgs(id, 10, at).
				WillReturnRows(pgxmock.NewRows([]string{"failure_count", "status", "status"}).
					AddRow(tc.count, tc.status, tc.prev))

			counters, err := repo.RecordAbandonment(context.Background(), id, 10, at)
			require.NoError(t, err)
			assert.Equal(t, tc.count, counters.FailureCount)
			assert.Equal(t, domain.WebhookStatus(tc.status), counters.Status)
			assert.Equal(t, domain.WebhookStatus(tc.prev), counters.PreviousStatus)
			assert.Equal(t, tc.becameFailed, counters.BecameFailed())
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestWebhookRepo_RecordAbandonment_Missing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)

	mock.ExpectQuery("UPDATE webhooks AS w SET failure_count").
		WithArgs(anyArgs(3)...).
		WillReturnRows(pgxmock.NewRows([]string{"failure_count", "status", "status"}))

	counters, err := repo.RecordAbandonment(context.Background(), uuid.New(), 10, time.Now())
	assert.Nil(t, counters)
	assert.ErrorContains(t, err, "not found")
}

func TestWebhookRepo_FilterActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	a, b, gone := uuid.New(), uuid.New(), uuid.New()
	ids := []uuid.UUID{a, gone, b}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM webhooks WHERE id = ANY\(\$1\) AND status = 'ACTIVE'`).
		WithArgs(ids, "SIM_BLOCKED").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(b).AddRow(a))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.FilterActive(context.Background(), dbTx, domain.EventSimBlocked, ids)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, got, "input order is kept")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_FilterActive_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	got, err := repo.FilterActive(context.Background(), nil, domain.EventSimBlocked, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWebhookRepo_FilterActive_QueryError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewWebhookRepository(mock)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM webhooks").
		WithArgs(anyArgs(2)...).
		WillReturnError(errors.New("lock timeout"))

	dbTx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	got, err := repo.FilterActive(context.Background(), dbTx, domain.EventSimBlocked, []uuid.UUID{uuid.New()})
	assert.Nil(t, got)
	assert.ErrorContains(t, err, "lock timeout")
}
