package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	AES       AESConfig       `mapstructure:"aes"`
	Log       LogConfig       `mapstructure:"log"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type AESConfig struct {
	Key string `mapstructure:"key"` // 32-byte hex-encoded key for AES-256
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// DeliveryConfig tunes webhook delivery and the recovery poller.
type DeliveryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	Workers           int           `mapstructure:"workers"`
	QueueSize         int           `mapstructure:"queue_size"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	BatchSize         int           `mapstructure:"batch_size"`
	ClaimLease        time.Duration `mapstructure:"claim_lease"`
	PausedRetryDelay  time.Duration `mapstructure:"paused_retry_delay"`
	ResponseBodyLimit int64         `mapstructure:"response_body_limit"`
	UserAgent         string        `mapstructure:"user_agent"`
}

type CacheConfig struct {
	SubscriptionTTL time.Duration `mapstructure:"subscription_ttl"`
}

// KafkaConfig enables the event stream mirror when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether a broker list is configured.
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

// RateLimitConfig holds per-group fixed-window limits.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Transitions int64         `mapstructure:"transitions"`
	Webhooks    int64         `mapstructure:"webhooks"`
	Reads       int64         `mapstructure:"reads"`
	Window      time.Duration `mapstructure:"window"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: SPN_ (SIM Provisioning Notifier).
// Nested keys use underscore: SPN_DATABASE_HOST, SPN_DELIVERY_MAX_ATTEMPTS, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "sim_notifier")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "sim-provisioning-notifier")
	v.SetDefault("aes.key", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("delivery.max_attempts", 5)
	v.SetDefault("delivery.timeout", "10s")
	v.SetDefault("delivery.max_backoff", "16s")
	v.SetDefault("delivery.failure_threshold", 10)
	v.SetDefault("delivery.workers", 8)
	v.SetDefault("delivery.queue_size", 1024)
	v.SetDefault("delivery.poll_interval", "1s")
	v.SetDefault("delivery.batch_size", 100)
	v.SetDefault("delivery.claim_lease", "30s")
	v.SetDefault("delivery.paused_retry_delay", "1m")
	v.SetDefault("delivery.response_body_limit", 1024)
	v.SetDefault("delivery.user_agent", "sim-provisioning-notifier/1.0")
	v.SetDefault("cache.subscription_ttl", "60s")
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "sim.lifecycle.events")
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.transitions", 120)
	v.SetDefault("rate_limit.webhooks", 30)
	v.SetDefault("rate_limit.reads", 300)
	v.SetDefault("rate_limit.window", "1m")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: SPN_DATABASE_HOST -> database.host
	v.SetEnvPrefix("SPN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if len(c.AES.Key) != 64 {
		return fmt.Errorf("aes.key must be 64 hex characters")
	}
	if c.Delivery.MaxAttempts < 1 {
		return fmt.Errorf("delivery.max_attempts must be at least 1")
	}
	if c.Delivery.ClaimLease <= c.Delivery.Timeout {
		return fmt.Errorf("delivery.claim_lease must exceed delivery.timeout")
	}
	return nil
}
