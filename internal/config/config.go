package config

import (
	"fmt"
	"time"

	env "github.com/caarlos0/env/v11"

	"github.com/josh-kwaku/sbp-gateway/internal/repository"
)

type Config struct {
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	AppEnv   string `env:"APP_ENV" envDefault:"production"`

	// Empty DatabaseURL selects the in-memory store.
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"DB_AUTO_MIGRATE" envDefault:"true"`
	// Empty RedisURL selects the in-process delivery guard.
	RedisURL         string        `env:"REDIS_URL"`
	WebhookDedupeTTL time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"24h"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	JWTExpiry time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`

	ProviderURL        string        `env:"SBP_API_URL" envDefault:"https://api.swiss-bitcoin-pay.ch"`
	ProviderTimeout    time.Duration `env:"SBP_API_TIMEOUT" envDefault:"5s"`
	WebhookCallbackURL string        `env:"WEBHOOK_CALLBACK_URL" envDefault:"http://app:8080/swiss-bitcoin-pay/v1/payment_complete"`
	SignatureHeader    string        `env:"WEBHOOK_SIGNATURE_HEADER" envDefault:"sbp-sig"`

	MerchantsFile string `env:"MERCHANTS_FILE"`

	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"50"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"100"`

	DBMaxOpenConns     int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns     int `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`
	DBConnMaxLifetimeS int `env:"DB_CONN_MAX_LIFETIME_S" envDefault:"300"`
	DBConnMaxIdleTimeS int `env:"DB_CONN_MAX_IDLE_TIME_S" envDefault:"60"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	if cfg.ProviderTimeout <= 0 {
		return nil, fmt.Errorf("config.Load: SBP_API_TIMEOUT must be positive")
	}
	if cfg.SignatureHeader == "" {
		return nil, fmt.Errorf("config.Load: WEBHOOK_SIGNATURE_HEADER must not be empty")
	}
	return &cfg, nil
}

func (c *Config) Pool() repository.PoolConfig {
	return repository.PoolConfig{
		MaxOpenConns:     c.DBMaxOpenConns,
		MaxIdleConns:     c.DBMaxIdleConns,
		ConnMaxLifetimeS: c.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: c.DBConnMaxIdleTimeS,
	}
}
