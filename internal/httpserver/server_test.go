package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/design-feedback/backend/internal/config"
	"github.com/PortNumber53/design-feedback/backend/internal/handlers"
	"github.com/PortNumber53/design-feedback/backend/internal/models"
)

type stubResolver struct{}

func (stubResolver) Resolve(ctx context.Context, userID string, now time.Time) models.Entitlements {
	return models.FreeTierDefaults()
}

type stubJobs struct{}

func (stubJobs) GetStats(ctx context.Context) (*models.JobStats, error) {
	return &models.JobStats{Pending: 2, Total: 2}, nil
}

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthRoute(t *testing.T) {
	server := New(config.Config{ServerAddress: ":0"}, Deps{})

	rr := serve(t, server.Handler(), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealthRouteReportsFailingDependency(t *testing.T) {
	server := New(config.Config{ServerAddress: ":0"}, Deps{
		Health: map[string]handlers.Pinger{
			"database": handlers.PingFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
		},
	})

	rr := serve(t, server.Handler(), http.MethodGet, "/healthz")

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}

func TestMetricsRoute(t *testing.T) {
	server := New(config.Config{ServerAddress: ":0"}, Deps{})

	rr := serve(t, server.Handler(), http.MethodGet, "/metrics")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestUserRoutesAreMounted(t *testing.T) {
	server := New(config.Config{ServerAddress: ":0"}, Deps{Entitlements: stubResolver{}, Jobs: stubJobs{}})

	rr := serve(t, server.Handler(), http.MethodGet, "/api/users/u1/entitlements")
	require.Equal(t, http.StatusOK, rr.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.EqualValues(t, 3, got["maxProjects"])

	rr = serve(t, server.Handler(), http.MethodGet, "/api/admin/jobs/stats")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"pending":2`)
}

func TestMissingDepsLeaveRoutesUnregistered(t *testing.T) {
	server := New(config.Config{ServerAddress: ":0"}, Deps{})

	rr := serve(t, server.Handler(), http.MethodGet, "/api/users/u1/usage")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWebhookRouteRequiresSecret(t *testing.T) {
	stripeHandler := handlers.NewStripeHandler(nil, nil, nil, "")
	server := New(config.Config{ServerAddress: ":0"}, Deps{Stripe: stripeHandler})

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
