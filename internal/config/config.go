// Package config reads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var ErrBrokerRequired = errors.New("RABBITMQ_URL is not set")

// Config holds the settings shared by the api and worker processes
type Config struct {
	DatabaseURL     string        `env:"DATABASE_URL,required,notEmpty"`
	RabbitMQURL     string        `env:"RABBITMQ_URL"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisChannel    string        `env:"REDIS_CHANNEL" envDefault:"auction:bids"`
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr     string        `env:"METRICS_ADDR" envDefault:":9090"`
	MigrateOnStart  bool          `env:"MIGRATE_ON_START" envDefault:"false"`
	LockTimeout     time.Duration `env:"LOCK_TIMEOUT" envDefault:"3s"`
	AuctionDuration time.Duration `env:"AUCTION_DURATION" envDefault:"24h"`
	CloseTimeout    time.Duration `env:"CLOSE_TIMEOUT" envDefault:"30s"`

	SweepPeriod      time.Duration `env:"SWEEP_PERIOD" envDefault:"1h"`
	SweepBatchSize   int           `env:"SWEEP_BATCH_SIZE" envDefault:"100"`
	SweepConcurrency int           `env:"SWEEP_CONCURRENCY" envDefault:"4"`

	OutboxBatchSize int           `env:"OUTBOX_BATCH_SIZE" envDefault:"10"`
	OutboxInterval  time.Duration `env:"OUTBOX_INTERVAL" envDefault:"1s"`

	JWTPublicKeyPath string   `env:"JWT_PUBLIC_KEY_PATH"`
	JWTIssuer        string   `env:"JWT_ISSUER"`
	HubBuffer        int      `env:"HUB_BUFFER" envDefault:"16"`
	WSOriginPatterns []string `env:"WS_ORIGIN_PATTERNS" envSeparator:","`
}

// Load reads .env.local and .env when present, then parses the environment.
// Variables already set in the process win over both files.
func Load() (Config, error) {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()
	return Parse()
}

// Parse reads the configuration from the process environment only
func Parse() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireBroker fails unless a RabbitMQ URL is configured
func (c Config) RequireBroker() error {
	if c.RabbitMQURL == "" {
		return ErrBrokerRequired
	}
	return nil
}

func (c Config) validate() error {
	switch {
	case c.AuctionDuration <= 0:
		return errors.New("AUCTION_DURATION must be positive")
	case c.SweepPeriod <= 0:
		return errors.New("SWEEP_PERIOD must be positive")
	case c.SweepBatchSize <= 0:
		return errors.New("SWEEP_BATCH_SIZE must be positive")
	case c.SweepConcurrency <= 0:
		return errors.New("SWEEP_CONCURRENCY must be positive")
	case c.OutboxBatchSize <= 0:
		return errors.New("OUTBOX_BATCH_SIZE must be positive")
	case c.OutboxInterval <= 0:
		return errors.New("OUTBOX_INTERVAL must be positive")
	}
	return nil
}
