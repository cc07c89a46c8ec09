package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/config"
	"github.com/PortNumber53/design-feedback/backend/internal/handlers"
	requestlogging "github.com/PortNumber53/design-feedback/backend/internal/middleware"
	"github.com/PortNumber53/design-feedback/backend/internal/worker"
)

// Deps are the collaborators behind the routes. Nil members leave their
// routes unregistered.
type Deps struct {
	Entitlements handlers.EntitlementResolver
	Usage        handlers.UsageReporter
	Gate         handlers.Gatekeeper
	Billing      handlers.BillingService
	Overrides    handlers.OverrideStore
	Jobs         handlers.JobStatsReader
	Stripe       *handlers.StripeHandler
	Health       map[string]handlers.Pinger

	Worker  *worker.Worker
	Sweeper *worker.Sweeper
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
	sweeper    *worker.Sweeper
	stopJobs   context.CancelFunc
}

// New constructs an HTTP server using the provided configuration and collaborators.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestlogging.RequestLogger())
	router.Use(middleware.Recoverer)

	router.Get("/healthz", handlers.Health(deps.Health))
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	router.Route("/api/users/{userID}", func(r chi.Router) {
		if deps.Entitlements != nil {
			r.Get("/entitlements", handlers.Entitlements(deps.Entitlements))
		}
		if deps.Usage != nil {
			r.Get("/usage", handlers.Usage(deps.Usage))
		}
		if deps.Gate != nil {
			r.Get("/can/create-project", handlers.CanCreateProject(deps.Gate))
			r.Get("/can/create-query", handlers.CanCreateQuery(deps.Gate))
			r.Get("/can/use/{feature}", handlers.CanUseFeature(deps.Gate))
		}
		if deps.Billing != nil {
			r.Post("/subscription/cancel", handlers.CancelSubscription(deps.Billing))
			r.Post("/subscription/free", handlers.StartFreeSubscription(deps.Billing))
			r.Get("/invoices", handlers.Invoices(deps.Billing))
			r.Get("/transactions", handlers.Transactions(deps.Billing))
		}
	})

	router.Route("/api/admin", func(r chi.Router) {
		if deps.Overrides != nil {
			r.Put("/overrides/{userID}/{feature}", handlers.PutOverride(deps.Overrides))
			r.Delete("/overrides/{userID}/{feature}", handlers.DeleteOverride(deps.Overrides))
		}
		if deps.Jobs != nil {
			r.Get("/jobs/stats", handlers.GetJobStats(deps.Jobs))
		}
	})

	// Plan catalog and provider webhooks
	if deps.Stripe != nil {
		deps.Stripe.RegisterRoutes(router)
	}

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker, sweeper: deps.Sweeper}
}

// Start begins serving HTTP traffic and starts the background jobs. It
// blocks until the listener closes; a clean Shutdown returns nil.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopJobs = cancel

	if s.worker != nil {
		s.worker.Start(ctx)
	}
	if s.sweeper != nil {
		log.Info().Msg("drift sweep scheduled")
		s.sweeper.Start()
	}

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains HTTP traffic first so in-flight webhooks finish, then stops
// the sweep and the worker.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.sweeper != nil {
		s.sweeper.Stop(ctx)
	}
	if s.worker != nil {
		if werr := s.worker.Stop(ctx); werr != nil {
			log.Error().Err(werr).Msg("worker shutdown error")
		}
	}
	if s.stopJobs != nil {
		s.stopJobs()
	}
	return err
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
