package postgres

import (
	"context"
	"errors"
	"fmt"

	"sim-provisioning-notifier/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const simColumns = `id, iccid, status, block_reason, block_notes, blocked_at, blocked_by, created_at, updated_at`

// SimRepo implements ports.SimRepository.
type SimRepo struct {
	pool Pool
}

// NewSimRepo creates a new SimRepo.
func NewSimRepo(pool Pool) *SimRepo {
	return &SimRepo{pool: pool}
}

// Create inserts a newly provisioned SIM.
func (r *SimRepo) Create(ctx context.Context, s *domain.Sim) error {
	query := `INSERT INTO sims (` + simColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.ICCID, s.Status, s.BlockReason, s.BlockNotes,
		s.BlockedAt, s.BlockedBy, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert sim: %w", err)
	}
	return nil
}

// GetByID fetches a SIM by UUID. Returns nil, nil if not found.
func (r *SimRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Sim, error) {
	query := `SELECT ` + simColumns + ` FROM sims WHERE id = $1`

	s := &domain.Sim{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.ICCID, &s.Status, &s.BlockReason, &s.BlockNotes,
		&s.BlockedAt, &s.BlockedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get sim by id: %w", err)
	}
	return s, nil
}

// UpdateStatus is a compare-and-set on status: the row is written only while
// the stored status still equals expected.
func (r *SimRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, s *domain.Sim, expected domain.SimStatus) (bool, error) {
	query := `UPDATE sims SET status = $1, block_reason = $2, block_notes = $3,
		blocked_at = $4, blocked_by = $5, updated_at = $6
		WHERE id = $7 AND status = $8`

	tag, err := tx.Exec(ctx, query,
		s.Status, s.BlockReason, s.BlockNotes, s.BlockedAt, s.BlockedBy, s.UpdatedAt,
		s.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("update sim status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
