package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/PortNumber53/design-feedback/backend/internal/entitlements"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
	"github.com/PortNumber53/design-feedback/backend/internal/usage"
)

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, userID string, now time.Time) models.Entitlements {
	e := models.FreeTierDefaults()
	e.MaxQueries = models.Unlimited
	return e
}

type stubUsage struct{ err error }

func (s stubUsage) Usage(ctx context.Context, userID string, now time.Time) (usage.Usage, error) {
	return usage.Usage{
		CurrentProjects:   3,
		RemainingProjects: usage.NewRemaining(3, 3),
		RemainingQueries:  usage.UnlimitedRemaining(),
	}, s.err
}

type stubGate struct{ feature string }

func (g *stubGate) CanCreateProject(ctx context.Context, userID string) entitlements.Decision {
	return entitlements.Decision{Reason: "project limit reached (3 of 3)", UpgradeRequired: true}
}

func (g *stubGate) CanCreateFeedbackQuery(ctx context.Context, userID string) entitlements.Decision {
	return entitlements.Decision{Allowed: true}
}

func (g *stubGate) CanUseFeature(ctx context.Context, userID, feature string) entitlements.Decision {
	g.feature = feature
	return entitlements.Decision{Allowed: true}
}

func entitlementsRouter(gate Gatekeeper, reporter UsageReporter) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/users/{userID}/entitlements", Entitlements(stubResolver{}))
	r.Get("/api/users/{userID}/usage", Usage(reporter))
	r.Get("/api/users/{userID}/can/create-project", CanCreateProject(gate))
	r.Get("/api/users/{userID}/can/create-query", CanCreateQuery(gate))
	r.Get("/api/users/{userID}/can/use/{feature}", CanUseFeature(gate))
	return r
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestEntitlementsRoute(t *testing.T) {
	rr := get(entitlementsRouter(&stubGate{}, stubUsage{}), "/api/users/u1/entitlements")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"maxProjects":3`)
	assert.Contains(t, rr.Body.String(), `"maxQueries":-1`)
	assert.Contains(t, rr.Body.String(), `"aiModel":"basic"`)
}

func TestUsageRoute(t *testing.T) {
	rr := get(entitlementsRouter(&stubGate{}, stubUsage{}), "/api/users/u1/usage")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"remainingProjects":0`)
	assert.Contains(t, rr.Body.String(), `"remainingQueries":"unlimited"`)

	rr = get(entitlementsRouter(&stubGate{}, stubUsage{err: errors.New("db down")}), "/api/users/u1/usage")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestDecisionRoutes(t *testing.T) {
	gate := &stubGate{}
	h := entitlementsRouter(gate, stubUsage{})

	rr := get(h, "/api/users/u1/can/create-project")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"allowed":false,"reason":"project limit reached (3 of 3)","upgradeRequired":true}`, rr.Body.String())

	rr = get(h, "/api/users/u1/can/create-query")
	assert.True(t, strings.Contains(rr.Body.String(), `"allowed":true`))

	rr = get(h, "/api/users/u1/can/use/exportToPDF")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "exportToPDF", gate.feature)
}
