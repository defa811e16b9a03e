package app

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/pamoja-sacco/pamoja-sacco/internal/tenant"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// TenantDSNs is a semicolon separated list of code=dsn pairs, one per
	// organization. Every organization owns its own database.
	TenantDSNs string `envconfig:"TENANT_DSNS" required:"true"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	AuthzCacheTTL time.Duration `envconfig:"AUTHZ_CACHE_TTL" default:"5m"`

	SMSGatewayURL string `envconfig:"SMS_GATEWAY_URL"`
	SMSAPIKey     string `envconfig:"SMS_API_KEY"`
	SMSSenderID   string `envconfig:"SMS_SENDER_ID" default:"PAMOJA"`

	DepositsMatureCron string `envconfig:"DEPOSITS_MATURE_CRON" default:"0 2 * * *"`
	LoansOverdueCron   string `envconfig:"LOANS_OVERDUE_CRON" default:"30 2 * * *"`

	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if _, err := tenant.ParseDSNs(cfg.TenantDSNs); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Organizations parses the configured tenant DSN map.
func (c *Config) Organizations() (map[string]string, error) {
	return tenant.ParseDSNs(c.TenantDSNs)
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
