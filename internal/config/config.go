package config

import (
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBUser                 string `env:"DB_USER,required"`
	DBPassword             string `env:"DB_PASSWORD,required"`
	DBHost                 string `env:"DB_HOST,required"` // e.g. tcp(host:3306) or unix(/cloudsql/instance)
	DBName                 string `env:"DB_NAME,required"`
	DBPort                 string `env:"DB_PORT" envDefault:"3306"`
	InstanceConnectionName string `env:"INSTANCE_CONNECTION_NAME"`

	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	LedgerRPCURL      string        `env:"LEDGER_RPC_URL,required"`
	SigningServiceURL string        `env:"SIGNING_SERVICE_URL,required"`
	PlatformPrincipal string        `env:"PLATFORM_PRINCIPAL,required"`
	PollInterval      time.Duration `env:"LEDGER_POLL_INTERVAL" envDefault:"2s"`
	PollBudget        time.Duration `env:"LEDGER_POLL_BUDGET" envDefault:"3m"`

	// Escrow window relative to ledger time at creation. The finish delta
	// must stay strictly below the cancel delta.
	EscrowFinishDelta time.Duration `env:"ESCROW_FINISH_DELTA" envDefault:"65s"`
	EscrowCancelDelta time.Duration `env:"ESCROW_CANCEL_DELTA" envDefault:"24h"`
	SchedulerBackoff  time.Duration `env:"SCHEDULER_BACKOFF" envDefault:"5s"`
	CredentialTTL     time.Duration `env:"CREDENTIAL_TTL" envDefault:"0"`

	ContentBucket string        `env:"CONTENT_BUCKET,required"`
	AccessURLTTL  time.Duration `env:"ACCESS_URL_TTL" envDefault:"15m"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
