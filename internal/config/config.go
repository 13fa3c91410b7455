package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the process configuration, read from MARKET_* variables.
type Config struct {
	ServiceName string `env:"MARKET_SERVICE_NAME" envDefault:"market-core"`
	LogLevel    string `env:"MARKET_LOG_LEVEL"    envDefault:"info"`
	HTTPAddr    string `env:"MARKET_HTTP_ADDR"    envDefault:":8080"`
	GRPCAddr    string `env:"MARKET_GRPC_ADDR"    envDefault:":50051"`

	StoreDriver     string        `env:"MARKET_STORE_DRIVER"       envDefault:"sqlite"`
	StoreDSN        string        `env:"MARKET_STORE_DSN"          envDefault:"market.db"`
	MaxOpenConns    int           `env:"MARKET_STORE_MAX_OPEN"     envDefault:"50"`
	MaxIdleConns    int           `env:"MARKET_STORE_MAX_IDLE"     envDefault:"25"`
	ConnMaxLifetime time.Duration `env:"MARKET_STORE_CONN_MAX_AGE" envDefault:"5m"`

	RedisAddr      string        `env:"MARKET_REDIS_ADDR"`
	RedisPoolSize  int           `env:"MARKET_REDIS_POOL_SIZE"  envDefault:"100"`
	IdempotencyTTL time.Duration `env:"MARKET_IDEMPOTENCY_TTL"  envDefault:"24h"`

	KafkaBrokers []string `env:"MARKET_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"MARKET_KAFKA_TOPIC"   envDefault:"market.events"`
	EventWorkers int      `env:"MARKET_EVENT_WORKERS" envDefault:"4"`
	EventQueue   int      `env:"MARKET_EVENT_QUEUE"   envDefault:"1024"`

	JWTSecret   string `env:"MARKET_JWT_SECRET"`
	JWTAudience string `env:"MARKET_JWT_AUDIENCE" envDefault:"market-core"`

	TxMaxAttempts    uint          `env:"MARKET_TX_MAX_ATTEMPTS"    envDefault:"5"`
	TxInitialBackoff time.Duration `env:"MARKET_TX_INITIAL_BACKOFF" envDefault:"10ms"`
	CouponValidity   time.Duration `env:"MARKET_COUPON_VALIDITY"    envDefault:"720h"`

	OTELEndpoint string `env:"MARKET_OTEL_ENDPOINT"`

	ShutdownTimeout time.Duration `env:"MARKET_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.StoreDriver) {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("MARKET_STORE_DRIVER must be mysql or sqlite, got %q", c.StoreDriver)
	}
	if strings.TrimSpace(c.StoreDSN) == "" {
		return fmt.Errorf("MARKET_STORE_DSN is required")
	}
	if c.TxMaxAttempts == 0 {
		return fmt.Errorf("MARKET_TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.CouponValidity < 24*time.Hour {
		return fmt.Errorf("MARKET_COUPON_VALIDITY must be at least one day, got %s", c.CouponValidity)
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		return fmt.Errorf("MARKET_KAFKA_TOPIC is required when brokers are set")
	}
	if c.EventWorkers <= 0 || c.EventQueue <= 0 {
		return fmt.Errorf("MARKET_EVENT_WORKERS and MARKET_EVENT_QUEUE must be positive")
	}
	if len(c.JWTSecret) > 0 && len(c.JWTSecret) < 16 {
		return fmt.Errorf("MARKET_JWT_SECRET must be at least 16 bytes")
	}
	return nil
}
