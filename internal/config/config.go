package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config captures runtime configuration values used by the billing service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// StripeSecretKey authenticates outbound provider commands.
	StripeSecretKey string

	// StripeWebhookSecret verifies inbound webhook signatures. The webhook
	// endpoint refuses every request while it is empty.
	StripeWebhookSecret string

	// StripeAPIURL overrides the provider base URL (stripe-mock, tests).
	StripeAPIURL string

	// StripeTimeout bounds every outbound provider call.
	StripeTimeout time.Duration

	// StripeMaxRetries is the provider client's network retry budget.
	StripeMaxRetries int64

	// RedisURL enables the processed-event cache when set.
	RedisURL string

	// EventCacheTTL is how long a processed event id is remembered.
	EventCacheTTL time.Duration

	// PlanCacheTTL bounds how long plan rows are cached in memory.
	PlanCacheTTL time.Duration

	// DriftSweepSchedule is a cron spec for the drift sweep; empty disables it.
	DriftSweepSchedule string

	// WorkerConcurrency is the number of queue processors.
	WorkerConcurrency int

	LogLevel  string
	LogFormat string
}

const (
	defaultServerAddress     = ":18111"
	defaultStripeTimeout     = 10 * time.Second
	defaultStripeMaxRetries  = 2
	defaultEventCacheTTL     = 72 * time.Hour
	defaultPlanCacheTTL      = 5 * time.Minute
	defaultWorkerConcurrency = 2
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"

	envServerAddress       = "BACKEND_ADDR"
	envDatabaseURL         = "DATABASE_URL"
	envStripeSecretKey     = "STRIPE_SECRET_KEY"
	envStripeWebhookSecret = "STRIPE_WEBHOOK_SECRET"
	envStripeAPIURL        = "STRIPE_API_URL"
	envStripeTimeout       = "STRIPE_TIMEOUT"
	envStripeMaxRetries    = "STRIPE_MAX_RETRIES"
	envRedisURL            = "REDIS_URL"
	envEventCacheTTL       = "EVENT_CACHE_TTL"
	envPlanCacheTTL        = "PLAN_CACHE_TTL"
	envDriftSweepSchedule  = "DRIFT_SWEEP_SCHEDULE"
	envWorkerConcurrency   = "WORKER_CONCURRENCY"
	envLogLevel            = "LOG_LEVEL"
	envLogFormat           = "LOG_FORMAT"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:       firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		DatabaseURL:         os.Getenv(envDatabaseURL),
		StripeSecretKey:     os.Getenv(envStripeSecretKey),
		StripeWebhookSecret: os.Getenv(envStripeWebhookSecret),
		StripeAPIURL:        os.Getenv(envStripeAPIURL),
		RedisURL:            os.Getenv(envRedisURL),
		DriftSweepSchedule:  os.Getenv(envDriftSweepSchedule),
		LogLevel:            firstNonEmpty(os.Getenv(envLogLevel), defaultLogLevel),
		LogFormat:           firstNonEmpty(os.Getenv(envLogFormat), defaultLogFormat),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}

	var err error
	if cfg.StripeTimeout, err = durationEnv(envStripeTimeout, defaultStripeTimeout); err != nil {
		return Config{}, err
	}
	if cfg.EventCacheTTL, err = durationEnv(envEventCacheTTL, defaultEventCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.PlanCacheTTL, err = durationEnv(envPlanCacheTTL, defaultPlanCacheTTL); err != nil {
		return Config{}, err
	}

	retries, err := intEnv(envStripeMaxRetries, defaultStripeMaxRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.StripeMaxRetries = int64(retries)

	if cfg.WorkerConcurrency, err = intEnv(envWorkerConcurrency, defaultWorkerConcurrency); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", name)
	}
	return d, nil
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", name)
	}
	return n, nil
}
