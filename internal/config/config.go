package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN        string  `env:"DATABASE_DSN,required=true"`
	RabbitMQURL        string  `env:"RABBITMQ_URL,required=true"`
	RedisURL           string  `env:"REDIS_URL,required=true"`
	GatewayURL         string  `env:"GATEWAY_URL,required=true"`
	GenRateLimitPerSec int     `env:"GEN_RATE_LIMIT_PER_SEC,default=10"`
	MaxParallel        int     `env:"MAX_PARALLEL,default=4"`
	MaxRetries         int     `env:"MAX_RETRIES,default=2"`
	RetryThreshold     float64 `env:"RETRY_THRESHOLD,default=0.6"`
	UnitTimeoutSec     int     `env:"UNIT_TIMEOUT_SEC,default=300"`
	AssetWorkers       int     `env:"ASSET_WORKERS,default=4"`
	APIPort            int     `env:"API_PORT,default=8080"`
	LogLevel           string  `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
