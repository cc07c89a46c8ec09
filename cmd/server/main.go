package main

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/billing"
	"github.com/PortNumber53/design-feedback/backend/internal/config"
	"github.com/PortNumber53/design-feedback/backend/internal/entitlements"
	"github.com/PortNumber53/design-feedback/backend/internal/eventcache"
	"github.com/PortNumber53/design-feedback/backend/internal/handlers"
	"github.com/PortNumber53/design-feedback/backend/internal/httpserver"
	"github.com/PortNumber53/design-feedback/backend/internal/logging"
	"github.com/PortNumber53/design-feedback/backend/internal/migrations"
	"github.com/PortNumber53/design-feedback/backend/internal/reconciler"
	"github.com/PortNumber53/design-feedback/backend/internal/store"
	"github.com/PortNumber53/design-feedback/backend/internal/stripe"
	"github.com/PortNumber53/design-feedback/backend/internal/usage"
	"github.com/PortNumber53/design-feedback/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Component: "backend"})
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "backend"})

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	logDBTarget("primary", cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}

	if err := runMigrationsWithDirtyFix(db, "primary"); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database migrations")
	}

	st, err := store.New(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create store")
	}
	jobStore, err := store.NewJobStore(db)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create job store")
	}

	plans := store.NewPlanCache(st, 32, cfg.PlanCacheTTL)
	resolver := entitlements.NewResolver(st, plans, st)
	rec := reconciler.New(st)

	jobWorker := worker.New(worker.Config{MaxConcurrent: cfg.WorkerConcurrency}, jobStore, nil)
	jobWorker.SetInstrumentation(worker.MetricsInstrumentation())

	health := map[string]handlers.Pinger{"database": db}

	var processed eventcache.Marker = eventcache.Noop{}
	if cfg.RedisURL != "" {
		cache, err := eventcache.Open(ctx, cfg.RedisURL, cfg.EventCacheTTL)
		if err != nil {
			// The cache only short-circuits duplicates; the reconciler is
			// idempotent without it.
			log.Warn().Err(err).Msg("processed-event cache unavailable; continuing without it")
		} else {
			defer cache.Close()
			processed = cache
			health["redis"] = handlers.PingFunc(cache.Ping)
		}
	}
	if cfg.StripeWebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET is not set; webhook deliveries will be refused")
	}

	deps := httpserver.Deps{
		Entitlements: resolver,
		Usage:        usage.NewAccountant(st, resolver),
		Gate:         entitlements.NewGate(resolver, st),
		Overrides:    st,
		Jobs:         jobStore,
		Stripe:       handlers.NewStripeHandler(st, rec, processed, cfg.StripeWebhookSecret),
		Health:       health,
		Worker:       jobWorker,
	}

	stripeClient, err := stripe.NewClient(stripe.Config{
		SecretKey:         cfg.StripeSecretKey,
		APIURL:            cfg.StripeAPIURL,
		Timeout:           cfg.StripeTimeout,
		MaxNetworkRetries: cfg.StripeMaxRetries,
	})
	if err != nil {
		log.Warn().Err(err).Msg("payment provider client disabled; billing commands and drift repair are off")
	} else {
		deps.Billing = billing.NewService(stripeClient, st, jobWorker)
		worker.RegisterReconcileJobs(jobWorker, stripeClient, st, rec)

		if cfg.DriftSweepSchedule != "" {
			sweeper, err := worker.NewSweeper(cfg.DriftSweepSchedule, st, jobWorker)
			if err != nil {
				log.Fatal().Err(err).Msg("invalid drift sweep schedule")
			}
			deps.Sweeper = sweeper
		}
	}

	srv := httpserver.New(cfg, deps)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("addr", cfg.ServerAddress).Msg("backend starting")
	if err := srv.Start(); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		os.Exit(1)
	}
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, name string) error {
	err := migrations.Up(db)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "Dirty database version") {
		return err
	}

	log.Warn().Str("db", name).Err(err).Msg("dirty database detected, attempting to fix")
	if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
		log.Error().Str("db", name).Err(fixErr).Msg("failed to fix dirty database")
		return err
	}
	return migrations.Up(db)
}

func logDBTarget(name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Info().Str("db", name).Err(err).Msg("database configured (dsn parse error)")
		return
	}
	log.Info().Str("db", name).Str("host", u.Hostname()).Str("database", strings.TrimPrefix(u.Path, "/")).Msg("database configured")
}
