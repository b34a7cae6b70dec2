package main

import (
	"context"
	"fmt"

	"sim-provisioning-notifier/config"
	pgStorage "sim-provisioning-notifier/internal/adapter/storage/postgres"
	redisStorage "sim-provisioning-notifier/internal/adapter/storage/redis"
	kafkaStream "sim-provisioning-notifier/internal/adapter/stream/kafka"
	"sim-provisioning-notifier/internal/core/ports"
	"sim-provisioning-notifier/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// app is the wired object graph shared by serve and recover.
type app struct {
	pool      *pgxpool.Pool
	rdb       *goredis.Client
	publisher *kafkaStream.Publisher

	tokenSvc     ports.TokenService
	lifecycleSvc ports.LifecycleService
	registry     ports.WebhookRegistry
	engine       *service.DeliveryServiceImpl
	dispatcher   *service.Dispatcher
	auditSvc     ports.AuditService
	rateLimit    *redisStorage.RateLimitStore
	health       []ports.HealthChecker
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{}

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.pool = pool
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		a.close(log)
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.rdb = rdb
	log.Info().Msg("Redis connected")

	if cfg.Kafka.Enabled() {
		publisher, err := kafkaStream.NewPublisher(cfg.Kafka)
		if err != nil {
			a.close(log)
			return nil, fmt.Errorf("kafka publisher: %w", err)
		}
		a.publisher = publisher
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka event mirror enabled")
	}

	// Repositories
	simRepo := pgStorage.NewSimRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	webhookRepo := pgStorage.NewWebhookRepository(pool)
	deliveryRepo := pgStorage.NewDeliveryRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	subsCache := redisStorage.NewSubscriptionCache(rdb, cfg.Cache.SubscriptionTTL)
	a.rateLimit = redisStorage.NewRateLimitStore(rdb)

	// Core services
	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		a.close(log)
		return nil, fmt.Errorf("encryption service: %w", err)
	}
	sigSvc := service.NewHMACSignatureService()
	hashSvc := service.NewArgon2HashService()
	a.tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Business services
	var publisher ports.EventPublisher
	if a.publisher != nil {
		publisher = a.publisher
	}
	emitter := service.NewEventEmitter(webhookRepo, deliveryRepo, subsCache, publisher, log)
	a.lifecycleSvc = service.NewLifecycleService(simRepo, eventRepo, emitter, transactor, log)
	a.registry = service.NewRegistryService(webhookRepo, deliveryRepo, hashSvc, encSvc, subsCache, log)
	a.engine = service.NewDeliveryService(
		deliveryRepo,
		webhookRepo,
		encSvc,
		sigSvc,
		subsCache,
		service.NewDeliveryHTTPClient(cfg.Delivery.Timeout),
		deliveryConfig(cfg.Delivery),
		log,
	)
	a.dispatcher = service.NewDispatcher(a.engine, cfg.Delivery.Workers, cfg.Delivery.QueueSize, cfg.Delivery.PollInterval, log)
	emitter.SetDispatcher(a.dispatcher)
	a.auditSvc = service.NewAuditService(auditRepo, log)

	a.health = []ports.HealthChecker{pgStorage.NewHealthCheck(pool), redisStorage.NewHealthCheck(rdb)}
	return a, nil
}

func deliveryConfig(c config.DeliveryConfig) service.DeliveryConfig {
	return service.DeliveryConfig{
		MaxAttempts:       c.MaxAttempts,
		Timeout:           c.Timeout,
		MaxBackoff:        c.MaxBackoff,
		FailureThreshold:  c.FailureThreshold,
		ClaimLease:        c.ClaimLease,
		PausedRetryDelay:  c.PausedRetryDelay,
		BatchSize:         c.BatchSize,
		Concurrency:       c.Workers,
		ResponseBodyLimit: c.ResponseBodyLimit,
		UserAgent:         c.UserAgent,
	}
}

func (a *app) close(log zerolog.Logger) {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("closing kafka publisher")
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("closing redis client")
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
