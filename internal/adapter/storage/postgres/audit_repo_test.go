package postgres

import (
	"context"
	"testing"
	"time"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepository(mock)
	ownerID := uuid.New()
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		OwnerID:      &ownerID,
		Actor:        "USER",
		Action:       domain.AuditActionBlock,
		ResourceType: "sim",
		ResourceID:   uuid.NewString(),
		Details:      `{"status":200}`,
		IPAddress:    "10.0.0.8",
		CreatedAt:    time.Now().UTC(),
	}

	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.OwnerID, entry.Actor, "SIM_BLOCK", entry.ResourceType,
			entry.ResourceID, &entry.Details, entry.IPAddress, entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepo_Create_EmptyDetailsStoredAsNull(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewAuditRepository(mock)
	entry := &domain.AuditLog{
		ID:           uuid.New(),
		Action:       domain.AuditActionDeleteWebhook,
		ResourceType: "webhook",
		CreatedAt:    time.Now().UTC(),
	}

	var noDetails *string
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(entry.ID, entry.OwnerID, "", "WEBHOOK_DELETE", "webhook", "", noDetails, "", entry.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}
