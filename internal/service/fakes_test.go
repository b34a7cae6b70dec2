package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

type fakeTransactor struct{}

func (fakeTransactor) Begin(context.Context) (pgx.Tx, error) { return &mockTx{}, nil }

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// memDeliveryRepo mirrors the Postgres ledger's claim semantics.
type memDeliveryRepo struct {
	mu      sync.Mutex
	rows    map[uuid.UUID]*memDelivery
	updates int
}

type memDelivery struct {
	rec         domain.DeliveryRecord
	lockedUntil time.Time
}

func newMemDeliveryRepo() *memDeliveryRepo {
	return &memDeliveryRepo{rows: make(map[uuid.UUID]*memDelivery)}
}

func (r *memDeliveryRepo) Create(_ context.Context, _ pgx.Tx, rec *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.ID] = &memDelivery{rec: *rec}
	return nil
}

func (r *memDeliveryRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	rec := row.rec
	return &rec, nil
}

func (r *memDeliveryRepo) claimable(row *memDelivery, now time.Time) bool {
	return row.rec.Status == domain.DeliveryStatusPending &&
		row.rec.NextRetryAt != nil && !row.rec.NextRetryAt.After(now) &&
		!row.lockedUntil.After(now)
}

func (r *memDeliveryRepo) Claim(_ context.Context, id uuid.UUID, now time.Time, lease time.Duration) (*domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok || !r.claimable(row, now) {
		return nil, nil
	}
	row.lockedUntil = now.Add(lease)
	rec := row.rec
	return &rec, nil
}

func (r *memDeliveryRepo) ClaimPending(_ context.Context, before time.Time, limit int, lease time.Duration) ([]domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []*memDelivery
	for _, row := range r.rows {
		if r.claimable(row, before) {
			due = append(due, row)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].rec.NextRetryAt.Before(*due[j].rec.NextRetryAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]domain.DeliveryRecord, 0, len(due))
	for _, row := range due {
		row.lockedUntil = before.Add(lease)
		out = append(out, row.rec)
	}
	return out, nil
}

func (r *memDeliveryRepo) Update(_ context.Context, rec *domain.DeliveryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[rec.ID]
	if !ok {
		return errors.New("delivery not found")
	}
	row.rec = *rec
	row.lockedUntil = time.Time{}
	r.updates++
	return nil
}

func (r *memDeliveryRepo) ListByWebhook(_ context.Context, webhookID uuid.UUID, limit int) ([]domain.DeliveryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DeliveryRecord
	for _, row := range r.rows {
		if row.rec.WebhookID == webhookID {
			out = append(out, row.rec)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memDeliveryRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memDeliveryRepo) get(id uuid.UUID) domain.DeliveryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id].rec
}

// memWebhookRepo applies counter updates under one lock, like the single
// UPDATE statements in Postgres.
type memWebhookRepo struct {
	mu     sync.Mutex
	hooks  map[uuid.UUID]*domain.Webhook
	getErr error
}

func newMemWebhookRepo(hooks ...*domain.Webhook) *memWebhookRepo {
	r := &memWebhookRepo{hooks: make(map[uuid.UUID]*domain.Webhook)}
	for _, h := range hooks {
		r.hooks[h.ID] = h
	}
	return r
}

func (r *memWebhookRepo) Create(_ context.Context, w *domain.Webhook) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.hooks[w.ID] = &cp
	return nil
}

func (r *memWebhookRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return nil, r.getErr
	}
	w, ok := r.hooks[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (r *memWebhookRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Webhook
	for _, w := range r.hooks {
		if w.OwnerID == ownerID {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) ListActiveByEvent(_ context.Context, t domain.EventType) ([]domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Webhook
	for _, w := range r.hooks {
		if w.IsActive() && w.Subscribes(t) {
			out = append(out, *w)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) FilterActive(_ context.Context, _ pgx.Tx, t domain.EventType, ids []uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uuid.UUID
	for _, id := range ids {
		if w, ok := r.hooks[id]; ok && w.IsActive() && w.Subscribes(t) {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memWebhookRepo) Delete(_ context.Context, id, ownerID uuid.UUID) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return nil, nil
	}
	delete(r.hooks, id)
	return w, nil
}

func (r *memWebhookRepo) UpdateStatus(_ context.Context, id, ownerID uuid.UUID, status domain.WebhookStatus) (*domain.Webhook, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok || w.OwnerID != ownerID {
		return nil, nil
	}
	w.Status = status
	if status == domain.WebhookStatusActive {
		w.FailureCount = 0
	}
	cp := *w
	return &cp, nil
}

func (r *memWebhookRepo) RecordSuccess(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.hooks[id]; ok {
		w.FailureCount = 0
		w.LastDeliveryAt = &at
		w.LastSuccessAt = &at
	}
	return nil
}

func (r *memWebhookRepo) RecordAttemptFailure(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.hooks[id]; ok {
		w.LastDeliveryAt = &at
		w.LastFailureAt = &at
	}
	return nil
}

func (r *memWebhookRepo) RecordAbandonment(_ context.Context, id uuid.UUID, threshold int, at time.Time) (*ports.WebhookCounters, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.hooks[id]
	if !ok {
		return nil, errors.New("webhook not found")
	}
	prev := w.Status
	w.FailureCount++
	if w.FailureCount >= threshold {
		w.Status = domain.WebhookStatusFailed
	}
	w.LastDeliveryAt = &at
	w.LastFailureAt = &at
	return &ports.WebhookCounters{FailureCount: w.FailureCount, Status: w.Status, PreviousStatus: prev}, nil
}

func (r *memWebhookRepo) snapshot(id uuid.UUID) domain.Webhook {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.hooks[id]
}

// memSubscriptionCache keeps the generation check of the Redis cache.
type memSubscriptionCache struct {
	mu      sync.Mutex
	entries map[domain.EventType][]uuid.UUID
	gens    map[domain.EventType]int64
}

func newMemSubscriptionCache() *memSubscriptionCache {
	return &memSubscriptionCache{
		entries: make(map[domain.EventType][]uuid.UUID),
		gens:    make(map[domain.EventType]int64),
	}
}

func (c *memSubscriptionCache) Get(_ context.Context, t domain.EventType) ([]uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.entries[t]
	return ids, ok, nil
}

func (c *memSubscriptionCache) Generation(_ context.Context, t domain.EventType) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[t], nil
}

func (c *memSubscriptionCache) Set(_ context.Context, t domain.EventType, gen int64, ids []uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[t] != gen {
		return nil
	}
	c.entries[t] = append([]uuid.UUID{}, ids...)
	return nil
}

func (c *memSubscriptionCache) Invalidate(_ context.Context, types ...domain.EventType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range types {
		delete(c.entries, t)
		c.gens[t]++
	}
	return nil
}

// memSimRepo implements the compare-and-set update.
type memSimRepo struct {
	mu   sync.Mutex
	sims map[uuid.UUID]domain.Sim
}

func newMemSimRepo(sims ...domain.Sim) *memSimRepo {
	r := &memSimRepo{sims: make(map[uuid.UUID]domain.Sim)}
	for _, s := range sims {
		r.sims[s.ID] = s
	}
	return r
}

func (r *memSimRepo) Create(_ context.Context, sim *domain.Sim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sims[sim.ID] = *sim
	return nil
}

func (r *memSimRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Sim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sims[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *memSimRepo) UpdateStatus(_ context.Context, _ pgx.Tx, sim *domain.Sim, expected domain.SimStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.sims[sim.ID]
	if !ok || cur.Status != expected {
		return false, nil
	}
	r.sims[sim.ID] = *sim
	return true, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events []domain.DomainEvent
}

func (r *memEventRepo) Create(_ context.Context, _ pgx.Tx, event *domain.DomainEvent, _ []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *event)
	return nil
}

func (r *memEventRepo) ListBySim(_ context.Context, simID uuid.UUID, limit int) ([]domain.DomainEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DomainEvent
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if r.events[i].Sim.SimID == simID {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *memEventRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// recordingDispatcher captures released ids.
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
}

func (d *recordingDispatcher) Dispatch(ids ...uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, ids...)
}

func (d *recordingDispatcher) dispatched() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

func assertAppError(t *testing.T, err error, expectedCode string) {
	t.Helper()
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, expectedCode, appErr.Code)
}
