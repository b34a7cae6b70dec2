package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sim-provisioning-notifier/internal/core/domain"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Delivery header names.
const (
	HeaderSignature  = "X-Webhook-Signature"
	HeaderEvent      = "X-Webhook-Event"
	HeaderEventID    = "X-Webhook-Event-Id"
	HeaderTimestamp  = "X-Webhook-Timestamp"
	HeaderDeliveryID = "X-Webhook-Delivery-Id"
)

// DefaultMaxBackoff caps the delay between attempts.
const DefaultMaxBackoff = 16 * time.Second

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// NewDeliveryHTTPClient returns the client used for webhook calls. Redirects
// are not followed so a 3xx counts as a failed attempt.
func NewDeliveryHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// DeliveryConfig tunes the delivery engine.
type DeliveryConfig struct {
	MaxAttempts       int
	Timeout           time.Duration
	MaxBackoff        time.Duration
	FailureThreshold  int
	ClaimLease        time.Duration
	PausedRetryDelay  time.Duration
	BatchSize         int
	Concurrency       int
	ResponseBodyLimit int64
	UserAgent         string
}

// DefaultDeliveryConfig returns the production defaults.
func DefaultDeliveryConfig() DeliveryConfig {
	return DeliveryConfig{
		MaxAttempts:       5,
		Timeout:           10 * time.Second,
		MaxBackoff:        DefaultMaxBackoff,
		FailureThreshold:  10,
		ClaimLease:        30 * time.Second,
		PausedRetryDelay:  time.Minute,
		BatchSize:         100,
		Concurrency:       8,
		ResponseBodyLimit: 1024,
		UserAgent:         "sim-provisioning-notifier/1.0",
	}
}

// BackoffDelay is the wait after 0-based attempt n: min(2^n, 16) seconds.
func BackoffDelay(attempt int) time.Duration {
	return cappedBackoff(attempt, DefaultMaxBackoff)
}

func cappedBackoff(attempt int, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := time.Second
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}

// DeliveryServiceImpl implements ports.DeliveryEngine.
// Each attempt works on a claimed ledger row and persists its outcome before returning.
type DeliveryServiceImpl struct {
	deliveryRepo ports.DeliveryRepository
	webhookRepo  ports.WebhookRepository
	encSvc       ports.EncryptionService
	sigSvc       ports.SignatureService
	cache        ports.SubscriptionCache
	httpClient   HTTPClient
	cfg          DeliveryConfig
	log          zerolog.Logger
	now          func() time.Time
}

// NewDeliveryService creates a new delivery engine. cache may be nil.
func NewDeliveryService(
	deliveryRepo ports.DeliveryRepository,
	webhookRepo ports.WebhookRepository,
	encSvc ports.EncryptionService,
	sigSvc ports.SignatureService,
	cache ports.SubscriptionCache,
	httpClient HTTPClient,
	cfg DeliveryConfig,
	log zerolog.Logger,
) *DeliveryServiceImpl {
	def := DefaultDeliveryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = def.ClaimLease
	}
	if cfg.PausedRetryDelay <= 0 {
		cfg.PausedRetryDelay = def.PausedRetryDelay
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.ResponseBodyLimit <= 0 {
		cfg.ResponseBodyLimit = def.ResponseBodyLimit
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	return &DeliveryServiceImpl{
		deliveryRepo: deliveryRepo,
		webhookRepo:  webhookRepo,
		encSvc:       encSvc,
		sigSvc:       sigSvc,
		cache:        cache,
		httpClient:   httpClient,
		cfg:          cfg,
		log:          log,
		now:          time.Now,
	}
}

// Deliver claims the record and runs one attempt. A record that is terminal,
// not yet due or leased elsewhere is skipped.
func (s *DeliveryServiceImpl) Deliver(ctx context.Context, id uuid.UUID) error {
	rec, err := s.deliveryRepo.Claim(ctx, id, s.now().UTC(), s.cfg.ClaimLease)
	if err != nil {
		return fmt.Errorf("claim delivery %s: %w", id, err)
	}
	if rec == nil {
		s.log.Debug().Str("delivery_id", id.String()).Msg("delivery not claimable, skipping")
		return nil
	}
	return s.attempt(ctx, rec)
}

// Recover claims due PENDING records and attempts each once. Rows are claimed
// in rounds no larger than the concurrency so every lease starts work at once.
func (s *DeliveryServiceImpl) Recover(ctx context.Context) (int, error) {
	total := 0
	for total < s.cfg.BatchSize {
		round := min(s.cfg.Concurrency, s.cfg.BatchSize-total)
		records, err := s.deliveryRepo.ClaimPending(ctx, s.now().UTC(), round, s.cfg.ClaimLease)
		if err != nil {
			return total, fmt.Errorf("claim pending deliveries: %w", err)
		}
		if len(records) == 0 {
			break
		}
		total += len(records)
		metrics.RecoveredDeliveries.Add(float64(len(records)))

		g, gctx := errgroup.WithContext(ctx)
		for i := range records {
			rec := &records[i]
			g.Go(func() error {
				if err := s.attempt(gctx, rec); err != nil {
					s.log.Warn().Err(err).Str("delivery_id", rec.ID.String()).Msg("recovered delivery attempt not recorded")
				}
				return nil
			})
		}
		_ = g.Wait()

		if len(records) < round || ctx.Err() != nil {
			break
		}
	}
	return total, ctx.Err()
}

type attemptResult struct {
	statusCode int
	body       string
	elapsed    time.Duration
	err        error
}

func (r attemptResult) succeeded() bool {
	return r.err == nil && r.statusCode >= 200 && r.statusCode < 300
}

// attempt runs one HTTP call for a claimed record and persists the outcome.
// A claimed attempt is not cancelled from outside: it ends on the request
// timeout or on completion, and its outcome is always written.
func (s *DeliveryServiceImpl) attempt(ctx context.Context, rec *domain.DeliveryRecord) error {
	ctx = context.WithoutCancel(ctx)
	webhook, err := s.webhookRepo.GetByID(ctx, rec.WebhookID)
	if err != nil {
		// Left PENDING: the claim lease expires and the poller retries it.
		s.log.Warn().Err(err).
			Str("delivery_id", rec.ID.String()).
			Str("webhook_id", rec.WebhookID.String()).
			Msg("failed to load webhook, will retry later")
		return fmt.Errorf("load webhook %s: %w", rec.WebhookID, err)
	}
	switch {
	case webhook == nil:
		return s.abandonOrphan(ctx, rec, "webhook subscription no longer exists")
	case webhook.Status == domain.WebhookStatusFailed:
		return s.abandonOrphan(ctx, rec, "webhook subscription is FAILED")
	case webhook.Status == domain.WebhookStatusPaused:
		return s.postpone(ctx, rec)
	}

	var res attemptResult
	secret, err := s.encSvc.Decrypt(webhook.SecretEnc)
	if err != nil {
		res = attemptResult{err: fmt.Errorf("decrypting webhook secret: %w", err)}
	} else {
		res = s.send(ctx, webhook, rec, secret)
	}
	return s.record(ctx, webhook, rec, res)
}

func (s *DeliveryServiceImpl) send(ctx context.Context, webhook *domain.Webhook, rec *domain.DeliveryRecord, secret string) attemptResult {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	body := []byte(rec.Payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook.URL, bytes.NewReader(body))
	if err != nil {
		return attemptResult{err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	req.Header.Set(HeaderSignature, s.sigSvc.Sign(secret, body))
	req.Header.Set(HeaderEvent, string(rec.EventType))
	req.Header.Set(HeaderEventID, rec.EventID.String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(s.now().Unix(), 10))
	req.Header.Set(HeaderDeliveryID, rec.ID.String())

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return attemptResult{elapsed: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, s.cfg.ResponseBodyLimit))
	elapsed := time.Since(start)
	return attemptResult{
		statusCode: resp.StatusCode,
		body:       sanitizeResponseBody(raw),
		elapsed:    elapsed,
	}
}

// record applies an attempt outcome to the ledger and the subscription counters.
func (s *DeliveryServiceImpl) record(ctx context.Context, webhook *domain.Webhook, rec *domain.DeliveryRecord, res attemptResult) error {
	now := s.now().UTC()
	rec.AttemptCount++
	rec.UpdatedAt = now
	elapsedMs := res.elapsed.Milliseconds()
	rec.ResponseTimeMs = &elapsedMs
	rec.ResponseCode = nil
	rec.ResponseBody = nil
	if res.statusCode != 0 {
		code, body := res.statusCode, res.body
		rec.ResponseCode = &code
		rec.ResponseBody = &body
	}

	logger := s.log.With().
		Str("delivery_id", rec.ID.String()).
		Str("webhook_id", webhook.ID.String()).
		Str("event_id", rec.EventID.String()).
		Int("attempt", rec.AttemptCount).
		Int("status", res.statusCode).
		Int64("response_time_ms", elapsedMs).
		Logger()

	if res.succeeded() {
		rec.Status = domain.DeliveryStatusDelivered
		rec.DeliveredAt = &now
		rec.NextRetryAt = nil
		rec.LastError = nil
		if err := s.deliveryRepo.Update(ctx, rec); err != nil {
			return fmt.Errorf("persist delivered %s: %w", rec.ID, err)
		}
		if err := s.webhookRepo.RecordSuccess(ctx, webhook.ID, now); err != nil {
			logger.Warn().Err(err).Msg("failed to record webhook success")
		}
		observeAttempt("delivered", res.elapsed)
		logger.Info().Msg("webhook delivered")
		return nil
	}

	lastErr := attemptError(res)
	rec.LastError = &lastErr

	if rec.AttemptCount < s.cfg.MaxAttempts {
		next := now.Add(cappedBackoff(rec.AttemptCount-1, s.cfg.MaxBackoff))
		rec.Status = domain.DeliveryStatusPending
		rec.NextRetryAt = &next
		if err := s.deliveryRepo.Update(ctx, rec); err != nil {
			return fmt.Errorf("persist retry %s: %w", rec.ID, err)
		}
		if err := s.webhookRepo.RecordAttemptFailure(ctx, webhook.ID, now); err != nil {
			logger.Warn().Err(err).Msg("failed to record webhook attempt failure")
		}
		observeAttempt("retry", res.elapsed)
		logger.Warn().Str("error", lastErr).Time("next_retry_at", next).Msg("webhook attempt failed, retry scheduled")
		return nil
	}

	rec.Status = domain.DeliveryStatusAbandoned
	rec.NextRetryAt = nil
	if err := s.deliveryRepo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist abandoned %s: %w", rec.ID, err)
	}
	observeAttempt("abandoned", res.elapsed)
	logger.Error().Str("error", lastErr).Msg("webhook delivery abandoned")

	counters, err := s.webhookRepo.RecordAbandonment(ctx, webhook.ID, s.cfg.FailureThreshold, now)
	if err != nil {
		logger.Error().Err(err).Msg("failed to record webhook abandonment")
		return nil
	}
	if counters.BecameFailed() {
		metrics.WebhooksFailedTotal.Inc()
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, webhook.Events...); err != nil {
				logger.Warn().Err(err).Msg("failed to invalidate subscription cache")
			}
		}
		logger.Error().Int("failure_count", counters.FailureCount).Msg("webhook marked FAILED")
	}
	return nil
}

// abandonOrphan closes a record without an attempt when its subscription was
// deleted or disabled. Subscription counters are left untouched.
func (s *DeliveryServiceImpl) abandonOrphan(ctx context.Context, rec *domain.DeliveryRecord, reason string) error {
	now := s.now().UTC()
	rec.Status = domain.DeliveryStatusAbandoned
	rec.LastError = &reason
	rec.NextRetryAt = nil
	rec.UpdatedAt = now
	if err := s.deliveryRepo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist orphaned %s: %w", rec.ID, err)
	}
	metrics.DeliveryAttemptsTotal.WithLabelValues("abandoned").Inc()
	s.log.Warn().
		Str("delivery_id", rec.ID.String()).
		Str("webhook_id", rec.WebhookID.String()).
		Str("reason", reason).
		Msg("delivery abandoned without attempt")
	return nil
}

// postpone pushes a record of a paused subscription back without using up
// an attempt. It goes out once the subscription is resumed.
func (s *DeliveryServiceImpl) postpone(ctx context.Context, rec *domain.DeliveryRecord) error {
	now := s.now().UTC()
	next := now.Add(s.cfg.PausedRetryDelay)
	rec.NextRetryAt = &next
	rec.UpdatedAt = now
	if err := s.deliveryRepo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persist postponed %s: %w", rec.ID, err)
	}
	s.log.Debug().
		Str("delivery_id", rec.ID.String()).
		Str("webhook_id", rec.WebhookID.String()).
		Time("next_retry_at", next).
		Msg("webhook paused, delivery postponed")
	return nil
}

func attemptError(res attemptResult) string {
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) {
			return "request timed out: " + res.err.Error()
		}
		return res.err.Error()
	}
	return fmt.Sprintf("non-2xx response: %d", res.statusCode)
}

// sanitizeResponseBody makes a truncated body safe for a text column.
func sanitizeResponseBody(raw []byte) string {
	s := strings.ToValidUTF8(string(raw), "")
	return strings.ReplaceAll(s, "\x00", "")
}

func observeAttempt(outcome string, elapsed time.Duration) {
	metrics.DeliveryAttemptsTotal.WithLabelValues(outcome).Inc()
	metrics.DeliveryAttemptDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}
