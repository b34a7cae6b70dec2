package service

import (
	"context"
	"time"

	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Dispatcher feeds delivery ids to a fixed pool of workers and periodically
// sweeps the ledger for due rows. Retries live in the ledger, so dropping an
// id from a full queue only delays it until the next sweep.
type Dispatcher struct {
	engine       ports.DeliveryEngine
	queue        chan uuid.UUID
	workers      int
	pollInterval time.Duration
	log          zerolog.Logger
}

// NewDispatcher creates a dispatcher. Call Run to start it.
func NewDispatcher(engine ports.DeliveryEngine, workers, queueSize int, pollInterval time.Duration, log zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Dispatcher{
		engine:       engine,
		queue:        make(chan uuid.UUID, queueSize),
		workers:      workers,
		pollInterval: pollInterval,
		log:          log,
	}
}

// Dispatch enqueues ids without blocking.
func (d *Dispatcher) Dispatch(ids ...uuid.UUID) {
	for _, id := range ids {
		select {
		case d.queue <- id:
		default:
			metrics.DispatchQueueOverflow.Inc()
			d.log.Debug().Str("delivery_id", id.String()).Msg("dispatch queue full, leaving delivery to poller")
		}
	}
	metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
}

// Run performs a recovery sweep, then serves the queue and the poll loop
// until ctx is cancelled. Attempts already claimed run to completion before
// Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Int("workers", d.workers).Dur("poll_interval", d.pollInterval).Msg("delivery dispatcher started")
	d.sweep(ctx)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			d.work(gctx)
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(d.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				d.sweep(gctx)
			}
		}
	})

	err := g.Wait()
	d.log.Info().Msg("delivery dispatcher stopped")
	return err
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.queue:
			metrics.DispatchQueueDepth.Set(float64(len(d.queue)))
			// Shutting down: the id stays PENDING in the ledger for the next start.
			if ctx.Err() != nil {
				return
			}
			if err := d.engine.Deliver(ctx, id); err != nil {
				d.log.Warn().Err(err).Str("delivery_id", id.String()).Msg("delivery attempt not recorded")
			}
		}
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	n, err := d.engine.Recover(ctx)
	if err != nil && ctx.Err() == nil {
		d.log.Error().Err(err).Msg("recovery sweep failed")
		return
	}
	if n > 0 {
		d.log.Info().Int("deliveries", n).Msg("recovery sweep processed pending deliveries")
	}
}
