package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/design-feedback/backend/internal/entitlements"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/usage"
)

// EntitlementResolver resolves a user's effective entitlements.
type EntitlementResolver interface {
	Resolve(ctx context.Context, userID string, now time.Time) models.Entitlements
}

// UsageReporter reports consumption against limits.
type UsageReporter interface {
	Usage(ctx context.Context, userID string, now time.Time) (usage.Usage, error)
}

// Gatekeeper answers permission checks.
type Gatekeeper interface {
	CanCreateProject(ctx context.Context, userID string) entitlements.Decision
	CanCreateFeedbackQuery(ctx context.Context, userID string) entitlements.Decision
	CanUseFeature(ctx context.Context, userID, feature string) entitlements.Decision
}

// Entitlements returns the resolved entitlements for {userID}.
func Entitlements(resolver EntitlementResolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			http.Error(w, "user id is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, resolver.Resolve(r.Context(), userID, time.Now()))
	}
}

// Usage returns current counts and remaining allowance for {userID}.
func Usage(reporter UsageReporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			http.Error(w, "user id is required", http.StatusBadRequest)
			return
		}

		u, err := reporter.Usage(r.Context(), userID, time.Now())
		if err != nil {
			log.Error().Err(err).Str("user_id", userID).Msg("Usage: failed to compute usage")
			http.Error(w, "failed to compute usage", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

// CanCreateProject answers whether {userID} may create another project.
func CanCreateProject(gate Gatekeeper) http.HandlerFunc {
	return decisionHandler(func(r *http.Request, userID string) entitlements.Decision {
		return gate.CanCreateProject(r.Context(), userID)
	})
}

// CanCreateQuery answers whether {userID} may run another feedback query.
func CanCreateQuery(gate Gatekeeper) http.HandlerFunc {
	return decisionHandler(func(r *http.Request, userID string) entitlements.Decision {
		return gate.CanCreateFeedbackQuery(r.Context(), userID)
	})
}

// CanUseFeature answers whether {userID} may use {feature}.
func CanUseFeature(gate Gatekeeper) http.HandlerFunc {
	return decisionHandler(func(r *http.Request, userID string) entitlements.Decision {
		return gate.CanUseFeature(r.Context(), userID, chi.URLParam(r, "feature"))
	})
}

// Denials are ordinary answers and are returned with 200.
func decisionHandler(decide func(r *http.Request, userID string) entitlements.Decision) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")
		if userID == "" {
			http.Error(w, "user id is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, decide(r, userID))
	}
}
