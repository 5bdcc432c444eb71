package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config contains the runtime configuration for the Paydesk server process.
// Subsystem config (sessions, passwords, auth API) is loaded by the
// subsystems themselves; this covers process-level concerns only.
type Config struct {
	HTTPAddr string `env:"PAYDESK_HTTP_ADDR" envDefault:"0.0.0.0:8080" validate:"required"`
	LogLevel string `env:"PAYDESK_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	ReadHeaderTimeout time.Duration `env:"PAYDESK_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	ReadTimeout       time.Duration `env:"PAYDESK_HTTP_READ_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	WriteTimeout      time.Duration `env:"PAYDESK_HTTP_WRITE_TIMEOUT" envDefault:"15s" validate:"gt=0"`
	IdleTimeout       time.Duration `env:"PAYDESK_HTTP_IDLE_TIMEOUT" envDefault:"60s" validate:"gt=0"`
	MaxHeaderBytes    int           `env:"PAYDESK_HTTP_MAX_HEADER_BYTES" envDefault:"1048576" validate:"gt=0"`
	ShutdownTimeout   time.Duration `env:"PAYDESK_SHUTDOWN_TIMEOUT" envDefault:"10s" validate:"gt=0"`

	DatabaseURL string `env:"PAYDESK_DATABASE_URL" validate:"required"`
	DBMaxConns  int32  `env:"PAYDESK_DB_MAX_CONNS" envDefault:"10" validate:"min=1"`
	DBMinConns  int32  `env:"PAYDESK_DB_MIN_CONNS" envDefault:"0" validate:"min=0"`

	// ReadinessRequireDB makes /readyz fail unless the database answers.
	ReadinessRequireDB bool `env:"PAYDESK_READINESS_REQUIRE_DB" envDefault:"true"`

	// KafkaBrokers empty means domain events are dropped (noop producer).
	KafkaBrokers []string `env:"PAYDESK_KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"PAYDESK_KAFKA_TOPIC" envDefault:"paydesk.auth.events"`

	MetricsEnabled bool `env:"PAYDESK_METRICS_ENABLED" envDefault:"true"`
}

// LoadConfig parses and validates process config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("app: parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("app: invalid config: %w", err)
	}
	return cfg, nil
}
