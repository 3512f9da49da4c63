package app

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds runtime configuration for the portal.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"35s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`
	PublicURL         string        `envconfig:"PUBLIC_URL" default:"http://localhost:8080"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"300"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	APIBaseURL      string        `envconfig:"API_BASE_URL" default:"http://localhost:8000/api"`
	APITimeout      time.Duration `envconfig:"API_TIMEOUT" default:"10s"`
	APICoalesceGets bool          `envconfig:"API_COALESCE_GETS" default:"false"`

	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`
	RedisPassword string        `envconfig:"REDIS_PASSWORD"`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	SessionSecret string        `envconfig:"SESSION_SECRET" required:"true"`
	SessionTTL    time.Duration `envconfig:"SESSION_TTL" default:"720h"`

	CSRFSecret string `envconfig:"CSRF_SECRET" required:"true"`

	// PGDSN enables the session audit trail when set.
	PGDSN      string `envconfig:"PG_DSN"`
	PGMaxConns int32  `envconfig:"PG_MAX_CONNS" default:"4"`

	UserRevalidateInterval time.Duration `envconfig:"USER_REVALIDATE_INTERVAL" default:"5m"`

	LinkTTL            time.Duration `envconfig:"LINK_TTL" default:"15m"`
	LinkVerifyAttempts int           `envconfig:"LINK_VERIFY_ATTEMPTS" default:"10"`
	LinkVerifyDelay    time.Duration `envconfig:"LINK_VERIFY_DELAY" default:"3s"`

	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
	BackendPingSpec   string `envconfig:"BACKEND_PING_SPEC" default:"@every 1m"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.SessionSecret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if cfg.CSRFSecret == "" {
		return nil, errors.New("csrf secret must be provided")
	}
	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		return nil, errors.New("api base url must be provided")
	}
	if cfg.LinkVerifyAttempts <= 0 {
		cfg.LinkVerifyAttempts = 1
	}
	return &cfg, nil
}

// IsProduction returns true when the portal runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// AuditEnabled reports whether the PostgreSQL session audit is configured.
func (c *Config) AuditEnabled() bool {
	return c != nil && strings.TrimSpace(c.PGDSN) != ""
}
